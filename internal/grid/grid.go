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

// Package grid models rectangular georeferenced pixel grids: bounds, affine
// transforms, pixel windows and the fixed fine/coarse resolution ratio.
package grid

import (
	"errors"
	"fmt"
	"math"
)

// A geographic bounding box in the units of its coordinate reference system
type Bounds struct {
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%.6g %.6g %.6g %.6g]", b.Left, b.Bottom, b.Right, b.Top)
}

func (b Bounds) Width() float64  { return b.Right - b.Left }
func (b Bounds) Height() float64 { return b.Top - b.Bottom }

// True if right>left and top>bottom
func (b Bounds) Valid() bool {
	return b.Right > b.Left && b.Top > b.Bottom
}

// Returns the bounding box of the given transform applied to a width x height pixel area
func BoundsOf(t Transform, width, height int) Bounds {
	w, h := float64(width), float64(height)
	corners := [4]Point{
		t.Apply(Point{0, 0}),
		t.Apply(Point{w, 0}),
		t.Apply(Point{0, h}),
		t.Apply(Point{w, h}),
	}
	b := Bounds{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, c := range corners {
		b.Left, b.Right = math.Min(b.Left, c.X), math.Max(b.Right, c.X)
		b.Bottom, b.Top = math.Min(b.Bottom, c.Y), math.Max(b.Top, c.Y)
	}
	return b
}

// Almost-equality with an absolute tolerance per edge
func (b Bounds) ApproxEqual(o Bounds, tol float64) bool {
	return math.Abs(b.Left-o.Left) <= tol && math.Abs(b.Bottom-o.Bottom) <= tol &&
		math.Abs(b.Right-o.Right) <= tol && math.Abs(b.Top-o.Top) <= tol
}

// A target grid: geographic extent, coordinate reference and pixel dimensions
type Grid struct {
	Bounds Bounds `json:"bounds"`
	CRS    string `json:"crs"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func New(b Bounds, crs string, width, height int) (Grid, error) {
	g := Grid{Bounds: b, CRS: crs, Width: width, Height: height}
	return g, g.Validate()
}

// Returns the grid covered by a raster with the given transform and size
func Of(t Transform, width, height int, crs string) Grid {
	return Grid{Bounds: BoundsOf(t, width, height), CRS: crs, Width: width, Height: height}
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d %v %s", g.Width, g.Height, g.Bounds, g.CRS)
}

func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid size %dx%d must be positive", g.Width, g.Height)
	}
	if !g.Bounds.Valid() {
		return fmt.Errorf("grid bounds %v are degenerate", g.Bounds)
	}
	return nil
}

// The pixel-to-geography transform of this grid
func (g Grid) Transform() Transform {
	return FromBoundsAndSize(g.Bounds, g.Width, g.Height)
}

// Pixel size along x and y
func (g Grid) Resolution() (x, y float64) {
	return g.Bounds.Width() / float64(g.Width), g.Bounds.Height() / float64(g.Height)
}

var ErrResolution = errors.New("resolution must be strictly positive")

// Derives pixel dimensions for the given bounds and resolution by truncating extent/resolution
func DeriveSize(b Bounds, resolution float64) (width, height int, err error) {
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return 0, 0, fmt.Errorf("%w: got %g", ErrResolution, resolution)
	}
	return int(b.Width() / resolution), int(b.Height() / resolution), nil
}
