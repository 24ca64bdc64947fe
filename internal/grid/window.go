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
	"fmt"
	"math"
)

// An integer pixel rectangle within a raster
type Window struct {
	ColOff int `json:"colOff"`
	RowOff int `json:"rowOff"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (w Window) String() string {
	return fmt.Sprintf("cols %d+%d rows %d+%d", w.ColOff, w.Width, w.RowOff, w.Height)
}

func (w Window) Empty() bool {
	return w.Width <= 0 || w.Height <= 0
}

// Intersection of two windows. The result may be empty
func (w Window) Intersect(o Window) Window {
	c0, r0 := max(w.ColOff, o.ColOff), max(w.RowOff, o.RowOff)
	c1, r1 := min(w.ColOff+w.Width, o.ColOff+o.Width), min(w.RowOff+w.Height, o.RowOff+o.Height)
	if c1 <= c0 || r1 <= r0 {
		return Window{ColOff: c0, RowOff: r0}
	}
	return Window{ColOff: c0, RowOff: r0, Width: c1 - c0, Height: r1 - r0}
}

// The geographic bounds covered by the window under the given transform
func (w Window) Bounds(t Transform) Bounds {
	return BoundsOf(t.Translate(float64(w.ColOff), float64(w.RowOff)), w.Width, w.Height)
}

// Computes the pixel window covering the given bounds in a rectilinear raster with the given
// transform. Offsets are rounded to the nearest pixel, and width and height are derived from
// the extent and the pixel size, so windows for the same bounds have consistent sizes no
// matter where the bounds fall relative to the pixel lattice.
func WindowFromBounds(b Bounds, t Transform) (Window, error) {
	inv, err := t.Invert()
	if err != nil {
		return Window{}, err
	}
	// the top left corner in pixel space, for north-up or south-up rasters
	ul := inv.Apply(Point{b.Left, b.Top})
	ll := inv.Apply(Point{b.Left, b.Bottom})
	colOff := math.Min(ul.X, ll.X)
	rowOff := math.Min(ul.Y, ll.Y)

	px, py := t.PixelSize()
	return Window{
		ColOff: int(math.Round(colOff)),
		RowOff: int(math.Round(rowOff)),
		Width:  int(math.Round(b.Width() / px)),
		Height: int(math.Round(b.Height() / py)),
	}, nil
}
