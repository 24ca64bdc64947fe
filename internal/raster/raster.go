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

// Package raster holds the in-memory multi-band raster type shared by all
// processing stages, and the store abstraction used to load and save it.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/geofuse/internal/grid"
)

// A georeferenced multi-band raster with float32 samples.
type Raster struct {
	ID       int    // Sequential ID number, for log output
	FileName string // Original file name, if any, for log output

	Width  int         // Pixels per row
	Height int         // Number of rows
	Bands  [][]float32 // Band data, row-major, each of size Width*Height

	Transform grid.Transform // Pixel to map coordinates
	CRS       string         // Coordinate reference, as EPSG code, PROJ4 or WKT string

	NoData    float64 // No-data sentinel, only meaningful if HasNoData is set
	HasNoData bool
}

// Creates a raster with the given dimensions and number of bands. Data is allocated and zeroed
func New(width, height, numBands int, t grid.Transform, crs string) *Raster {
	bands := make([][]float32, numBands)
	for i := range bands {
		bands[i] = make([]float32, width*height)
	}
	return &Raster{
		Width:     width,
		Height:    height,
		Bands:     bands,
		Transform: t,
		CRS:       crs,
	}
}

// Creates a raster covering the given grid
func NewOnGrid(g grid.Grid, numBands int) *Raster {
	return New(g.Width, g.Height, numBands, g.Transform(), g.CRS)
}

// Creates a raster from existing band data. Data is not copied
func FromBands(width, height int, bands [][]float32, t grid.Transform, crs string) (*Raster, error) {
	r := &Raster{Width: width, Height: height, Bands: bands, Transform: t, CRS: crs}
	return r, r.Validate()
}

// Checks structural invariants: positive size, at least one band, equal band sizes
func (r *Raster) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("raster size %dx%d must be positive", r.Width, r.Height)
	}
	if len(r.Bands) == 0 {
		return errors.New("raster has no bands")
	}
	for i, b := range r.Bands {
		if len(b) != r.Width*r.Height {
			return fmt.Errorf("band %d has %d pixels, want %d", i+1, len(b), r.Width*r.Height)
		}
	}
	return nil
}

func (r *Raster) NumBands() int { return len(r.Bands) }

func (r *Raster) Pixels() int { return r.Width * r.Height }

func (r *Raster) DimensionsToString() string {
	return fmt.Sprintf("%dx%dx%d", r.Width, r.Height, len(r.Bands))
}

// The grid covered by this raster
func (r *Raster) Grid() grid.Grid {
	return grid.Of(r.Transform, r.Width, r.Height, r.CRS)
}

func (r *Raster) Bounds() grid.Bounds {
	return grid.BoundsOf(r.Transform, r.Width, r.Height)
}

// Value of the given band (0-based) at the given column and row
func (r *Raster) At(band, col, row int) float32 {
	return r.Bands[band][row*r.Width+col]
}

func (r *Raster) Set(band, col, row int, v float32) {
	r.Bands[band][row*r.Width+col] = v
}

func (r *Raster) SetNoData(v float64) {
	r.NoData, r.HasNoData = v, true
}

// True if the value is NaN or equals the no-data sentinel
func (r *Raster) IsMissing(v float32) bool {
	if math.IsNaN(float64(v)) {
		return true
	}
	return r.HasNoData && float64(v) == r.NoData
}

// Deep copy, including band data
func (r *Raster) Clone() *Raster {
	res := *r
	res.Bands = make([][]float32, len(r.Bands))
	for i, b := range r.Bands {
		res.Bands[i] = append([]float32(nil), b...)
	}
	return &res
}

// Copies the given pixel window into a new raster, with the transform anchored at the
// window origin. The window must lie within the raster
func (r *Raster) Window(w grid.Window) (*Raster, error) {
	full := grid.Window{Width: r.Width, Height: r.Height}
	if w.Empty() || w.Intersect(full) != w {
		return nil, fmt.Errorf("window %v outside raster %s", w, r.DimensionsToString())
	}
	res := New(w.Width, w.Height, len(r.Bands), r.Transform.Translate(float64(w.ColOff), float64(w.RowOff)), r.CRS)
	res.ID, res.FileName = r.ID, r.FileName
	res.NoData, res.HasNoData = r.NoData, r.HasNoData
	for b, src := range r.Bands {
		dst := res.Bands[b]
		for row := 0; row < w.Height; row++ {
			srcOff := (row+w.RowOff)*r.Width + w.ColOff
			copy(dst[row*w.Width:(row+1)*w.Width], src[srcOff:srcOff+w.Width])
		}
	}
	return res, nil
}
