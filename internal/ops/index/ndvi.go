// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package index derives vegetation index rasters and site time series, and flags cloudy
// acquisitions from the raw series.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mlnoga/geofuse/internal/dates"
	"github.com/mlnoga/geofuse/internal/layout"
	"github.com/mlnoga/geofuse/internal/ndvi"
	"github.com/mlnoga/geofuse/internal/ops"
	"github.com/mlnoga/geofuse/internal/preview"
	"github.com/mlnoga/geofuse/internal/raster"
)

// Index computation, built-in NDVI unless the configuration names an expression
type indexFunc func(r *raster.Raster) (*raster.Raster, error)

func indexer(c *ops.Context) (indexFunc, error) {
	if c.Config.NDVIExpression == "" {
		return ndvi.NDVI, nil
	}
	e, err := ndvi.ParseExpression(c.Config.NDVIExpression)
	if err != nil {
		return nil, err
	}
	return e.Apply, nil
}

// A source raster and the index raster derived from it
type job struct {
	src, dst string
}

func runJobs(ctx context.Context, c *ops.Context, prefix, stage string, jobs []job) error {
	f, err := indexer(c)
	if err != nil {
		return err
	}
	units := make([]ops.Unit, 0, len(jobs))
	unitMB := 1
	for _, j := range jobs {
		if c.Store.Exists(j.dst) {
			fmt.Fprintf(c.Log, "[%s] Skipping %s (exists)\n", prefix, filepath.Base(j.dst))
			continue
		}
		if err := c.Store.MakeDir(filepath.Dir(j.dst)); err != nil {
			return err
		}
		j := j
		units = append(units, func() error {
			return c.Isolate(prefix, filepath.Base(j.src), indexOne(c, f, prefix, j))
		})
	}
	if len(units) > 0 {
		if r, err := c.Store.Open(jobs[0].src); err == nil {
			unitMB = ops.EstimateMB(r.Width, r.Height, r.NumBands()+2)
		}
	}
	err = c.RunStage(ctx, stage, units, unitMB)
	fmt.Fprintf(c.Log, "[%s] Completed %d of %d rasters\n", prefix, len(units), len(jobs))
	return err
}

func indexOne(c *ops.Context, f indexFunc, prefix string, j job) error {
	r, err := c.Store.Open(j.src)
	if err != nil {
		return err
	}
	out, err := f(r)
	if err != nil {
		return err
	}
	if err := c.Store.Write(j.dst, out); err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "[%s] Saved %s\n", prefix, j.dst)
	if c.Config.Preview {
		return writePreviews(out, j.dst)
	}
	return nil
}

// Writes a 16-bit grey TIFF and a colour ramp JPEG of band 1 into a preview subdirectory
func writePreviews(r *raster.Raster, dst string) error {
	dir := filepath.Join(filepath.Dir(dst), "preview")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := filepath.Join(dir, strings.TrimSuffix(filepath.Base(dst), filepath.Ext(dst)))
	if err := preview.WriteMonoTIFF16ToFile(r, 1, base+".tif", -1, 1, 1); err != nil {
		return err
	}
	return preview.WriteRampJPGToFile(r, 1, base+".jpg", 0, 1, preview.NDVIRamp, 90)
}

// Computes index rasters for all raw acquisitions, keeping their file names
type OpNDVIRaw struct {
	ops.OpBase
}

var _ ops.Operator = (*OpNDVIRaw)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpNDVIRaw() }) } // register the operator for JSON decoding

func NewOpNDVIRaw() *OpNDVIRaw {
	return &OpNDVIRaw{OpBase: ops.OpBase{Type: "ndviRaw", Active: true}}
}

func (op *OpNDVIRaw) Run(ctx context.Context, c *ops.Context) error {
	var jobs []job
	for _, sensor := range []string{layout.S2, layout.S3} {
		files, err := c.Store.Glob(c.Layout.RawGlob(sensor))
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintf(c.Log, "[NDVI] No raw %s rasters in %s\n", strings.ToUpper(sensor), c.Layout.RawDir(sensor))
		}
		for _, f := range files {
			jobs = append(jobs, job{src: f, dst: c.Layout.RawNDVIFile(sensor, f)})
		}
	}
	return runJobs(ctx, c, "NDVI", "ndvi raw", jobs)
}

// Computes index rasters for fine reflectances, coarse composites and fused products
type OpNDVIPrepared struct {
	ops.OpBase
}

var _ ops.Operator = (*OpNDVIPrepared)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpNDVIPrepared() }) } // register the operator for JSON decoding

func NewOpNDVIPrepared() *OpNDVIPrepared {
	return &OpNDVIPrepared{OpBase: ops.OpBase{Type: "ndviPrepared", Active: true}}
}

func (op *OpNDVIPrepared) Run(ctx context.Context, c *ops.Context) error {
	l := c.Layout
	families := []struct {
		kind, pattern string
		datePos       int
	}{
		{layout.S2, l.ReflGlob(), layout.ReflDatePos},
		{layout.S3, l.CompositeGlob(), layout.CompositeDatePos},
		{layout.Fusion, l.FusedGlob(), layout.FusedDatePos},
	}
	var jobs []job
	for _, fam := range families {
		files, err := c.Store.Glob(fam.pattern)
		if err != nil {
			return err
		}
		seen := map[time.Time]bool{}
		for _, f := range files {
			d, err := dates.FromFileName(f, fam.datePos)
			if err != nil {
				fmt.Fprintf(c.Log, "[NDVI-PREPARED] Skipping %s: %s\n", filepath.Base(f), err.Error())
				continue
			}
			if d = dates.Day(d); seen[d] {
				continue
			}
			seen[d] = true
			jobs = append(jobs, job{src: f, dst: l.PreparedNDVIFile(fam.kind, d)})
		}
	}
	return runJobs(ctx, c, "NDVI-PREPARED", "ndvi prepared", jobs)
}
