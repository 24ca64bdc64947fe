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

package grid

import (
	"errors"
	"fmt"
	"math"
)

// A 2D affine transformation from pixel space (col, row) into map space (x, y):
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Transform struct {
	A float64
	B float64
	C float64
	D float64
	E float64
	F float64
}

// A point with floating point coordinates, either in pixel or in map space.
type Point struct {
	X float64
	Y float64
}

func (p Point) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.X, p.Y)
}

func (t Transform) String() string {
	return fmt.Sprintf("x'=%.6gx %+.6gy %+.6g, y'=%.6gx %+.6gy %+.6g",
		t.A, t.B, t.C, t.D, t.E, t.F)
}

func IdentityTransform() Transform {
	return Transform{1, 0, 0, 0, 1, 0}
}

// Returns the transform mapping a width x height pixel raster onto the given bounds,
// with the origin at the top left corner and rows growing southwards.
func FromBoundsAndSize(b Bounds, width, height int) Transform {
	return Transform{
		A: (b.Right - b.Left) / float64(width),
		B: 0,
		C: b.Left,
		D: 0,
		E: -(b.Top - b.Bottom) / float64(height),
		F: b.Top,
	}
}

// Converts from GDAL geotransform order (c, a, b, f, d, e)
func FromGeoTransform(gt [6]float64) Transform {
	return Transform{A: gt[1], B: gt[2], C: gt[0], D: gt[4], E: gt[5], F: gt[3]}
}

// Converts to GDAL geotransform order (c, a, b, f, d, e)
func (t Transform) GeoTransform() [6]float64 {
	return [6]float64{t.C, t.A, t.B, t.F, t.D, t.E}
}

// Apply the transformation to the given point
func (t Transform) Apply(p Point) Point {
	return Point{
		X: t.A*p.X + t.B*p.Y + t.C,
		Y: t.D*p.X + t.E*p.Y + t.F,
	}
}

// Apply the transformation to the given column and row
func (t Transform) ApplyXY(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Determinant of the linear part
func (t Transform) Det() float64 {
	return t.A*t.E - t.B*t.D
}

// Invert the transformation. Returns an error if the linear part is singular.
func (t Transform) Invert() (Transform, error) {
	det := t.Det()
	if math.Abs(det) < 1e-300 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Transform{}, errors.New(fmt.Sprintf("matrix has no inverse, det=%g", det))
	}
	/*	x' = a*x + b*y + c
		y' = d*x + e*y + f
	    => x = ( e*x' - b*y' + (b*f - c*e)) / det
	       y = (-d*x' + a*y' + (c*d - a*f)) / det */
	return Transform{
		A: t.E / det,
		B: -t.B / det,
		C: (t.B*t.F - t.C*t.E) / det,
		D: -t.D / det,
		E: t.A / det,
		F: (t.C*t.D - t.A*t.F) / det,
	}, nil
}

// Returns a transform with the same pixel size and rotation, with the origin moved to the given pixel offset
func (t Transform) Translate(colOff, rowOff float64) Transform {
	x, y := t.ApplyXY(colOff, rowOff)
	res := t
	res.C, res.F = x, y
	return res
}

// Pixel size along x and y, always positive
func (t Transform) PixelSize() (x, y float64) {
	return math.Hypot(t.A, t.D), math.Hypot(t.B, t.E)
}

// True if the transform has no rotation or shear terms
func (t Transform) IsRectilinear() bool {
	return t.B == 0 && t.D == 0
}
