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


// Package fusion defines the injected fusion operation that combines prepared fine and
// coarse products into one fused product per date, with a deterministic stub and an
// implementation that runs an external command.
package fusion

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mlnoga/geofuse/internal/dates"
	"github.com/mlnoga/geofuse/internal/layout"
	"github.com/mlnoga/geofuse/internal/raster"
)

// Parameters passed to every fusion call
type Params struct {
	Product       string  `json:"product"       yaml:"product"`
	MaxDays       int     `json:"maxDays"       yaml:"maxDays"`
	DatePosition  int     `json:"datePosition"  yaml:"datePosition"`
	MinImportance float64 `json:"minImportance" yaml:"minImportance"`
	Ratio         int     `json:"ratio"         yaml:"ratio"`
}

func DefaultParams(ratio int) Params {
	return Params{Product: layout.ProductREFL, MaxDays: 30, DatePosition: layout.ReflDatePos, MinImportance: 0, Ratio: ratio}
}

// Fuses the products around the given date and writes <Product>_<date> into outDir.
// Writing nothing is a valid outcome, meaning there was insufficient nearby data
type Strategy interface {
	Fuse(ctx context.Context, date time.Time, coarseDir, fineDir, outDir string, p Params) error
}

// Wraps a failure of the fusion operation for one date
type FusionOperationError struct {
	Date time.Time
	Err  error
}

func (e *FusionOperationError) Error() string {
	return fmt.Sprintf("fusion for %s failed: %v", dates.Token(e.Date), e.Err)
}

func (e *FusionOperationError) Unwrap() error { return e.Err }

// A deterministic fusion for tests and dry runs. Writes the nearest fine product within
// MaxDays, scaled by a temporal importance weight that falls linearly with the day distance.
// Writes nothing when no fine product is close enough or the weight is below MinImportance
type Stub struct {
	Store  raster.Store
	Suffix string // Suffix of fine products and of the output
}

func (s Stub) Fuse(ctx context.Context, date time.Time, coarseDir, fineDir, outDir string, p Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	files, err := s.Store.Glob(filepath.Join(fineDir, "*_"+p.Product+s.Suffix))
	if err != nil {
		return err
	}
	byDay := map[time.Time]string{}
	var days []time.Time
	for _, f := range files {
		d, err := dates.FromFileName(f, p.DatePosition)
		if err != nil {
			continue
		}
		if dates.DaysBetween(d, date) <= p.MaxDays {
			byDay[dates.Day(d)] = f
			days = append(days, dates.Day(d))
		}
	}
	nearest, ok := dates.Nearest(date, days)
	if !ok {
		return nil
	}
	weight := 1 - float64(dates.DaysBetween(nearest, date))/float64(p.MaxDays+1)
	if weight < p.MinImportance {
		return nil
	}

	fine, err := s.Store.Open(byDay[nearest])
	if err != nil {
		return err
	}
	out := fine.Clone()
	out.ApplyScaleOffset(float32(weight), 0)
	return s.Store.Write(layout.FusedFile(outDir, p.Product, date, s.Suffix), out)
}
