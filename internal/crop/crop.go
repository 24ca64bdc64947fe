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


// Package crop finds the valid extent of a fused raster and crops families of
// co-registered rasters to it.
package crop

import (
	"fmt"
	"math"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
)

// Values with a magnitude at or below this are treated as noise when scanning
const DefaultEpsilon = 0.001

// Returned when bounds and raster do not overlap, or no valid data remains
type EmptyIntersectionError struct {
	FileName string
	Bounds   grid.Bounds
	Reason   string
}

func (e *EmptyIntersectionError) Error() string {
	if e.FileName != "" {
		return fmt.Sprintf("empty intersection for %s with %v: %s", e.FileName, e.Bounds, e.Reason)
	}
	return fmt.Sprintf("empty intersection with %v: %s", e.Bounds, e.Reason)
}

// Scans rows from the bottom edge upward, and returns the first row containing a
// non-NaN value in any band whose magnitude exceeds epsilon. Returns false if no row qualifies
func LastValidRow(r *raster.Raster, epsilon float64) (int, bool) {
	for row := r.Height - 1; row >= 0; row-- {
		lo, hi := row*r.Width, (row+1)*r.Width
		for _, band := range r.Bands {
			for _, v := range band[lo:hi] {
				if !math.IsNaN(float64(v)) && math.Abs(float64(v)) > epsilon {
					return row, true
				}
			}
		}
	}
	return 0, false
}

// Computes the crop bounds for a fused raster against the reference extent: left, right and top
// come from the reference, bottom is the higher of the reference bottom and the lower edge
// of the last valid row
func ValidBounds(fused *raster.Raster, reference grid.Bounds, epsilon float64) (grid.Bounds, error) {
	row, ok := LastValidRow(fused, epsilon)
	if !ok {
		return grid.Bounds{}, &EmptyIntersectionError{FileName: fused.FileName, Bounds: reference, Reason: "no valid row"}
	}
	_, validBottom := fused.Transform.ApplyXY(0, float64(row+1))
	b := reference
	b.Bottom = math.Max(reference.Bottom, validBottom)
	if !b.Valid() {
		return grid.Bounds{}, &EmptyIntersectionError{FileName: fused.FileName, Bounds: b, Reason: "degenerate bounds"}
	}
	return b, nil
}

// Copies the part of the raster covered by the bounds. The window is derived from the raster's
// own transform and clipped to its pixels. The result carries a transform spanning exactly the
// given bounds, so all rasters cropped to the same bounds report identical extents
func Crop(r *raster.Raster, b grid.Bounds) (*raster.Raster, error) {
	w, err := grid.WindowFromBounds(b, r.Transform)
	if err != nil {
		return nil, fmt.Errorf("crop %s: %w", r.FileName, err)
	}
	w = w.Intersect(grid.Window{Width: r.Width, Height: r.Height})
	if w.Empty() {
		return nil, &EmptyIntersectionError{FileName: r.FileName, Bounds: b, Reason: "zero area window"}
	}
	res, err := r.Window(w)
	if err != nil {
		return nil, err
	}
	res.Transform = grid.FromBoundsAndSize(b, w.Width, w.Height)
	return res, nil
}

// Crops every raster to the same bounds. Fails on the first member that does not intersect
func CropFamily(b grid.Bounds, rs ...*raster.Raster) ([]*raster.Raster, error) {
	res := make([]*raster.Raster, len(rs))
	for i, r := range rs {
		c, err := Crop(r, b)
		if err != nil {
			return nil, err
		}
		res[i] = c
	}
	return res, nil
}
