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


// Package pre prepares raw acquisitions for fusion: fine reflectances and cloud distance
// fields on grids derived from a coarse reference, and same-date coarse composites.
package pre

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mlnoga/geofuse/internal/clouds"
	"github.com/mlnoga/geofuse/internal/composite"
	"github.com/mlnoga/geofuse/internal/dates"
	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/layout"
	"github.com/mlnoga/geofuse/internal/mask"
	"github.com/mlnoga/geofuse/internal/ops"
	"github.com/mlnoga/geofuse/internal/raster"
	"github.com/mlnoga/geofuse/internal/reproject"
)

// Loads the exclusion set of the season
func loadClouds(c *ops.Context) (clouds.Set, error) {
	return clouds.Load(c.Layout.CloudsFile())
}

// Groups file names by the date token at the given position. Files without a date are skipped
func byDate(files []string, pos int) ([]time.Time, map[time.Time][]string) {
	groups := map[time.Time][]string{}
	var days []time.Time
	for _, f := range files {
		d, err := dates.FromFileName(f, pos)
		if err != nil {
			continue
		}
		d = dates.Day(d)
		if _, ok := groups[d]; !ok {
			days = append(days, d)
		}
		groups[d] = append(groups[d], f)
	}
	return dates.Unique(days), groups
}

// Prepares fine reflectances and cloud distance fields. Takes the first non-excluded raw
// coarse acquisition as reference, derives the fine grid with the configured ratio, and
// for every non-excluded raw fine acquisition writes REFL and DIST_CLOUD products
type OpPrepareS2 struct {
	ops.OpBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpPrepareS2() }) } // register the operator for JSON decoding

func NewOpPrepareS2() *OpPrepareS2 {
	return &OpPrepareS2{OpBase: ops.OpBase{Type: "prepareS2", Active: true}}
}

func (op *OpPrepareS2) Run(ctx context.Context, c *ops.Context) error {
	set, err := loadClouds(c)
	if err != nil {
		return err
	}
	excludedS3 := func(name string) bool { return set.Excluded(clouds.S3, name) }
	excludedS2 := func(name string) bool { return set.Excluded(clouds.S2, name) }

	refs, err := c.Glob(c.Layout.RawGlob(layout.S3), excludedS3)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return &ops.MissingReferenceError{What: "non-cloud S3 raster for reference bounds", Pattern: c.Layout.RawGlob(layout.S3)}
	}
	ref, err := c.Store.Open(refs[0])
	if err != nil {
		return fmt.Errorf("opening reference: %w", err)
	}
	ratio, err := grid.ParseRatio(c.Config.Ratio)
	if err != nil {
		return err
	}
	coarse := ref.Grid()
	fine := ratio.FineSize(coarse)
	fmt.Fprintf(c.Log, "[PREPARE-S2] Reference %s, coarse grid %v, fine grid %dx%d\n",
		filepath.Base(refs[0]), coarse, fine.Width, fine.Height)

	files, err := c.Glob(c.Layout.RawGlob(layout.S2), excludedS2)
	if err != nil {
		return err
	}
	days, groups := byDate(files, layout.RawDatePos)
	units := make([]ops.Unit, len(days))
	for i, d := range days {
		d, src := d, groups[d][0]
		units[i] = func() error {
			return c.Isolate("PREPARE-S2", filepath.Base(src), prepareS2(c, src, d, fine, coarse))
		}
	}
	err = c.RunStage(ctx, "prepare S2", units, ops.EstimateMB(fine.Width, fine.Height, 14))
	fmt.Fprintf(c.Log, "[PREPARE-S2] Completed %d dates\n", len(days))
	return err
}

func prepareS2(c *ops.Context, src string, d time.Time, fine, coarse grid.Grid) error {
	reflFile, distFile := c.Layout.ReflFile(d), c.Layout.DistCloudFile(d)
	var refl *raster.Raster
	if c.Store.Exists(reflFile) {
		fmt.Fprintf(c.Log, "[PREPARE-S2] Skipping %s (exists)\n", filepath.Base(reflFile))
	} else {
		raw, err := c.Store.Open(src)
		if err != nil {
			return err
		}
		refl, err = Reflectance(raw, fine, float32(c.Config.S2Scale), c.Config.Kernel())
		if err != nil {
			return err
		}
		if err := c.Store.Write(reflFile, refl); err != nil {
			return err
		}
		fmt.Fprintf(c.Log, "[PREPARE-S2] Saved %s\n", reflFile)
	}

	if c.Store.Exists(distFile) {
		fmt.Fprintf(c.Log, "[PREPARE-S2] Skipping %s (exists)\n", filepath.Base(distFile))
		return nil
	}
	if refl == nil {
		var err error
		if refl, err = c.Store.Open(reflFile); err != nil {
			return err
		}
	}
	dist, err := mask.BuildDistanceField(refl, coarse, c.Mask)
	if err != nil {
		return err
	}
	if err := c.Store.Write(distFile, dist); err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "[PREPARE-S2] Saved %s\n", distFile)
	return nil
}

// Scales raw digital numbers to reflectances and resamples them onto the fine grid.
// The result has no-data 0
func Reflectance(raw *raster.Raster, fine grid.Grid, scale float32, kernel reproject.Kernel) (*raster.Raster, error) {
	scaled := raw.Clone()
	scaled.ApplyScaleOffset(1/scale, 0)
	res, err := reproject.Reproject(scaled, fine, kernel)
	if err != nil {
		return nil, err
	}
	res.SetNoData(0)
	return res, nil
}

// Reference products for the composite grid
const (
	ReferenceDistCloud = "distCloud" // grid of the first cloud distance field
	ReferenceRefl      = "refl"      // bounds of the first fine reflectance, at the coarse resolution
)

// Builds one composite per date from the non-excluded raw coarse acquisitions, on the grid of
// the first cloud distance field, or one derived from the first fine reflectance
type OpPrepareS3 struct {
	ops.OpBase
	Reference string `json:"reference"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpPrepareS3() }) } // register the operator for JSON decoding

func NewOpPrepareS3() *OpPrepareS3 {
	return &OpPrepareS3{OpBase: ops.OpBase{Type: "prepareS3", Active: true}, Reference: ReferenceDistCloud}
}

func (op *OpPrepareS3) Run(ctx context.Context, c *ops.Context) error {
	set, err := loadClouds(c)
	if err != nil {
		return err
	}
	var target grid.Grid
	switch op.Reference {
	case "", ReferenceDistCloud:
		target, err = distCloudGrid(c)
	case ReferenceRefl:
		target, err = reflGrid(c)
	default:
		err = fmt.Errorf("unknown composite reference %q", op.Reference)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "[PREPARE-S3] Target grid %v\n", target)

	files, err := c.Glob(c.Layout.RawGlob(layout.S3), func(name string) bool { return set.Excluded(clouds.S3, name) })
	if err != nil {
		return err
	}
	var acqs []composite.Acquisition
	for _, f := range files {
		d, err := dates.FromFileName(f, layout.RawDatePos)
		if err != nil {
			fmt.Fprintf(c.Log, "[PREPARE-S3] Skipping %s: %s\n", filepath.Base(f), err.Error())
			continue
		}
		seq := 0
		if tok, err := dates.TokenAt(f, 1); err == nil {
			seq, _ = strconv.Atoi(tok)
		}
		acqs = append(acqs, composite.Acquisition{Date: d, Seq: seq, Name: f})
	}
	groups := composite.GroupByDate(acqs)

	opts := composite.Options{OutlierThreshold: c.Config.OutlierThreshold, Kernel: c.Config.Kernel()}
	units := make([]ops.Unit, len(groups))
	for i, g := range groups {
		g := g
		units[i] = func() error {
			return c.Isolate("PREPARE-S3", dates.Token(g.Date), prepareS3(c, g, target, opts))
		}
	}
	err = c.RunStage(ctx, "prepare S3", units, ops.EstimateMB(target.Width, target.Height, 4*(maxMembers(groups)+1)))
	fmt.Fprintf(c.Log, "[PREPARE-S3] Completed %d dates\n", len(groups))
	return err
}

func distCloudGrid(c *ops.Context) (grid.Grid, error) {
	refs, err := c.Glob(c.Layout.DistCloudGlob(), nil)
	if err != nil {
		return grid.Grid{}, err
	}
	if len(refs) == 0 {
		return grid.Grid{}, &ops.MissingReferenceError{What: "S2 DIST_CLOUD product, run prepare-s2 first", Pattern: c.Layout.DistCloudGlob()}
	}
	ref, err := c.Store.Open(refs[0])
	if err != nil {
		return grid.Grid{}, fmt.Errorf("opening reference: %w", err)
	}
	return ref.Grid(), nil
}

// Covers the bounds of the first REFL product at its resolution times the ratio.
// Sizes are truncated
func reflGrid(c *ops.Context) (grid.Grid, error) {
	refs, err := c.Glob(c.Layout.ReflGlob(), nil)
	if err != nil {
		return grid.Grid{}, err
	}
	if len(refs) == 0 {
		return grid.Grid{}, &ops.MissingReferenceError{What: "S2 REFL product, run prepare-s2 first", Pattern: c.Layout.ReflGlob()}
	}
	ref, err := c.Store.Open(refs[0])
	if err != nil {
		return grid.Grid{}, fmt.Errorf("opening reference: %w", err)
	}
	ratio, err := grid.ParseRatio(c.Config.Ratio)
	if err != nil {
		return grid.Grid{}, err
	}
	px, _ := ref.Transform.PixelSize()
	w, h, err := grid.DeriveSize(ref.Bounds(), ratio.CoarseResolution(px))
	if err != nil {
		return grid.Grid{}, err
	}
	target, err := grid.New(ref.Bounds(), ref.CRS, w, h)
	if err != nil {
		return grid.Grid{}, fmt.Errorf("coarse grid for %s: %w", filepath.Base(refs[0]), err)
	}
	if div := ratio.CoarseSize(ref.Grid()); div.Width != w || div.Height != h {
		fmt.Fprintf(c.Log, "[PREPARE-S3] Warning: coarse grid %dx%d differs from %s divided by %d\n",
			w, h, ref.DimensionsToString(), int(ratio))
	}
	return target, nil
}

func maxMembers(groups []composite.DateGroup) int {
	n := 1
	for _, g := range groups {
		if len(g.Members) > n {
			n = len(g.Members)
		}
	}
	return n
}

func prepareS3(c *ops.Context, g composite.DateGroup, target grid.Grid, opts composite.Options) error {
	out := c.Layout.CompositeFile(g.Date)
	if c.Store.Exists(out) {
		fmt.Fprintf(c.Log, "[PREPARE-S3] Skipping %s (exists)\n", filepath.Base(out))
		return nil
	}
	members := make([]*raster.Raster, len(g.Members))
	for i, m := range g.Members {
		r, err := c.Store.Open(m.Name)
		if err != nil {
			return err
		}
		members[i] = r
	}
	res, err := composite.Build(members, target, opts)
	if err != nil {
		return err
	}
	if err := c.Store.Write(out, res); err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "[PREPARE-S3] Saved %s from %d acquisitions\n", out, len(members))
	return nil
}
