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


// Package mask derives validity masks from rasters, and turns them into distance fields
// on the coarse grid: how far each pixel is from the nearest invalid (cloudy or no-data) pixel.
package mask

import (
	"fmt"
	"math"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
)

// Distances are clipped to this many pixels
const MaxDistance = 255

// Distance transform and downsampling, with interchangeable implementations
type Ops interface {
	// Euclidean distance in pixels from every pixel to the nearest invalid pixel, clipped to
	// [0, MaxDistance]. Invalid pixels are 0. Without any invalid pixel, all pixels are MaxDistance
	Distance(valid []bool, width, height int) []float32

	// Area average of a single band field onto the coarse grid
	AreaAverage(field *raster.Raster, coarse grid.Grid) (*raster.Raster, error)
}

// Returns the validity mask of the first band: valid iff the value is not 0
func ValidityMask(r *raster.Raster) []bool {
	valid := make([]bool, r.Pixels())
	for i, v := range r.Bands[0] {
		valid[i] = v != 0
	}
	return valid
}

// Builds the coarse distance field for the given fine raster: validity mask from band 1,
// distance transform on the fine grid, area average onto the coarse grid
func BuildDistanceField(r *raster.Raster, coarse grid.Grid, ops Ops) (*raster.Raster, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	valid := ValidityMask(r)
	dist := ops.Distance(valid, r.Width, r.Height)
	field, err := raster.FromBands(r.Width, r.Height, [][]float32{dist}, r.Transform, r.CRS)
	if err != nil {
		return nil, err
	}
	field.ID, field.FileName = r.ID, r.FileName
	res, err := ops.AreaAverage(field, coarse)
	if err != nil {
		return nil, fmt.Errorf("averaging distance field onto %v: %w", coarse, err)
	}
	return res, nil
}

// Clips a squared distance to [0, MaxDistance] after taking the root
func clipSqrt(d2 float64) float32 {
	d := math.Sqrt(d2)
	if d > MaxDistance {
		return MaxDistance
	}
	return float32(d)
}
