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


// Package fuse runs the fusion operation for every date of the season.
package fuse

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mlnoga/geofuse/internal/dates"
	"github.com/mlnoga/geofuse/internal/fusion"
	"github.com/mlnoga/geofuse/internal/layout"
	"github.com/mlnoga/geofuse/internal/ops"
)

// Outcome counts of a fusion loop
type Summary struct {
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"` // output existed
	Empty   int `json:"empty"`   // insufficient nearby data
	Failed  int `json:"failed"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d saved, %d skipped, %d without output, %d failed", s.Saved, s.Skipped, s.Empty, s.Failed)
}

// Calls the fusion strategy for every date of the range, in order
type OpFuse struct {
	ops.OpBase
	DateRange string `json:"dateRange"` // overrides the configured range if set
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpFuse("") }) } // register the operator for JSON decoding

func NewOpFuse(dateRange string) *OpFuse {
	return &OpFuse{OpBase: ops.OpBase{Type: "fuse", Active: true}, DateRange: dateRange}
}

func (op *OpFuse) Run(ctx context.Context, c *ops.Context) error {
	_, err := op.Fuse(ctx, c)
	return err
}

// Runs the loop and returns the outcome counts. Failures of single dates are logged and counted
func (op *OpFuse) Fuse(ctx context.Context, c *ops.Context) (Summary, error) {
	var sum Summary
	dateRange := op.DateRange
	if dateRange == "" {
		dateRange = c.Config.Range()
	}
	start, end, err := dates.ParseRange(dateRange)
	if err != nil {
		return sum, err
	}
	l := c.Layout
	if refl, err := c.Store.Glob(l.ReflGlob()); err != nil {
		return sum, err
	} else if len(refl) == 0 {
		return sum, &ops.MissingReferenceError{What: "prepared S2 REFL product, run prepare-s2 first", Pattern: l.ReflGlob()}
	}
	outDir := l.PreparedDir(layout.Fusion)
	if err := c.Store.MakeDir(outDir); err != nil {
		return sum, err
	}
	p := c.Config.FusionParams()
	fmt.Fprintf(c.Log, "[FUSION] Starting fusion: %s (%.6f, %.6f), %s\n", c.Config.Site, c.Config.Lat, c.Config.Lon, dateRange)

	days := dates.Range(start, end)
	if c.Progress != nil {
		c.Progress.Start("fuse", len(days))
		defer c.Progress.Finish()
	}
	for _, d := range days {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		op.fuseDate(ctx, c, d, outDir, p, &sum)
		if c.Progress != nil {
			c.Progress.Step()
		}
	}
	fmt.Fprintf(c.Log, "[FUSION] Completed: %v\n", sum)
	return sum, nil
}

func (op *OpFuse) fuseDate(ctx context.Context, c *ops.Context, d time.Time, outDir string, p fusion.Params, sum *Summary) {
	out := layout.FusedFile(outDir, p.Product, d, c.Layout.Suffix)
	if c.Store.Exists(out) {
		fmt.Fprintf(c.Log, "[FUSION] Skipping %s (exists)\n", dates.Token(d))
		sum.Skipped++
		return
	}
	err := c.Fusion.Fuse(ctx, d, c.Layout.PreparedDir(layout.S3), c.Layout.PreparedDir(layout.S2), outDir, p)
	if err != nil {
		var foe *fusion.FusionOperationError
		if !errors.As(err, &foe) {
			err = &fusion.FusionOperationError{Date: d, Err: err}
		}
		fmt.Fprintf(c.Log, "[FUSION] Error processing %s: %s\n", dates.Token(d), err.Error())
		sum.Failed++
		return
	}
	if c.Store.Exists(out) {
		fmt.Fprintf(c.Log, "[FUSION] Saved %s\n", filepath.Base(out))
		sum.Saved++
	} else {
		fmt.Fprintf(c.Log, "[FUSION] No output for %s (insufficient nearby data)\n", dates.Token(d))
		sum.Empty++
	}
}
