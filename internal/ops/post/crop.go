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


// Package post crops fused products and their inputs to the rows with valid fused data.
package post

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mlnoga/geofuse/internal/crop"
	"github.com/mlnoga/geofuse/internal/dates"
	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/layout"
	"github.com/mlnoga/geofuse/internal/ops"
	"github.com/mlnoga/geofuse/internal/raster"
)

// Crops every fused product, and the fine reflectance and coarse composite of the same date
// where present, to the bounds of the cloud distance field of that date, with the bottom
// raised to the last row holding valid fused data. Writes the family into processed/
type OpCrop struct {
	ops.OpBase
	Epsilon float64 `json:"epsilon"` // 0 for the configured scan epsilon
}

var _ ops.Operator = (*OpCrop)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpCrop() }) } // register the operator for JSON decoding

func NewOpCrop() *OpCrop {
	return &OpCrop{OpBase: ops.OpBase{Type: "crop", Active: true}}
}

func (op *OpCrop) Run(ctx context.Context, c *ops.Context) error {
	l := c.Layout
	fused, err := c.Glob(l.FusedGlob(), nil)
	if err != nil {
		return err
	}
	if len(fused) == 0 {
		fmt.Fprintf(c.Log, "[CROP] No fused products in %s\n", l.PreparedDir(layout.Fusion))
		return nil
	}
	refs, err := c.Glob(l.DistCloudGlob(), nil)
	if err != nil {
		return err
	}
	refDays, refFiles := dayIndex(refs, layout.ReflDatePos)
	if len(refDays) == 0 {
		return &ops.MissingReferenceError{What: "S2 DIST_CLOUD product for crop bounds", Pattern: l.DistCloudGlob()}
	}
	for _, kind := range []string{layout.S2, layout.S3, layout.Fusion} {
		if err := c.Store.MakeDir(l.ProcessedDir(kind)); err != nil {
			return err
		}
	}
	eps := op.Epsilon
	if eps <= 0 {
		eps = c.Config.ScanEpsilon
	}

	units := make([]ops.Unit, 0, len(fused))
	for _, f := range fused {
		d, err := dates.FromFileName(f, layout.FusedDatePos)
		if err != nil {
			fmt.Fprintf(c.Log, "[CROP] Skipping %s: %s\n", filepath.Base(f), err.Error())
			continue
		}
		d = dates.Day(d)
		refDay, _ := dates.Nearest(d, refDays)
		f, ref := f, refFiles[refDay]
		units = append(units, func() error {
			return c.Isolate("CROP", dates.Token(d), cropDate(c, d, f, ref, eps))
		})
	}
	unitMB := 1
	if r, err := c.Store.Open(refs[0]); err == nil {
		ratio := c.Config.FusionParams().Ratio
		unitMB = ops.EstimateMB(r.Width*ratio, r.Height*ratio, 12)
	}
	err = c.RunStage(ctx, "crop", units, unitMB)
	fmt.Fprintf(c.Log, "[CROP] Completed %d dates\n", len(units))
	return err
}

// Sorted unique days of the given files, and the first file per day
func dayIndex(files []string, pos int) ([]time.Time, map[time.Time]string) {
	byDay := map[time.Time]string{}
	var days []time.Time
	for _, f := range files {
		d, err := dates.FromFileName(f, pos)
		if err != nil {
			continue
		}
		d = dates.Day(d)
		if _, ok := byDay[d]; !ok {
			byDay[d] = f
			days = append(days, d)
		}
	}
	return dates.Unique(days), byDay
}

type member struct {
	src, dst string
}

func cropDate(c *ops.Context, d time.Time, fusedFile, refFile string, eps float64) error {
	l := c.Layout
	family := []member{{fusedFile, l.ProcessedFile(layout.Fusion, d)}}
	if reflFile := l.ReflFile(d); c.Store.Exists(reflFile) {
		family = append(family, member{reflFile, l.ProcessedFile(layout.S2, d)})
	}
	if compFile := l.CompositeFile(d); c.Store.Exists(compFile) {
		family = append(family, member{compFile, l.ProcessedFile(layout.S3, d)})
	}
	pending := family[:0]
	for _, m := range family {
		if !c.Store.Exists(m.dst) {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		fmt.Fprintf(c.Log, "[CROP] Skipping %s (exists)\n", dates.Token(d))
		return nil
	}

	fused, err := c.Store.Open(fusedFile)
	if err != nil {
		return err
	}
	ref, err := c.Store.Open(refFile)
	if err != nil {
		return err
	}
	b, err := crop.ValidBounds(fused, ref.Bounds(), eps)
	if err != nil {
		return err
	}
	return cropMembers(c, b, pending)
}

func cropMembers(c *ops.Context, b grid.Bounds, family []member) error {
	rs := make([]*raster.Raster, len(family))
	for i, m := range family {
		r, err := c.Store.Open(m.src)
		if err != nil {
			return err
		}
		rs[i] = r
	}
	cropped, err := crop.CropFamily(b, rs...)
	if err != nil {
		return err
	}
	for i, m := range family {
		if err := c.Store.Write(m.dst, cropped[i]); err != nil {
			return err
		}
		fmt.Fprintf(c.Log, "[CROP] Saved %s\n", m.dst)
	}
	return nil
}
