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


// Package reproject resamples rasters onto target grids, converting between coordinate
// reference systems as needed.
package reproject

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
)

// Resampling kernel
type Kernel int

const (
	Nearest  Kernel = iota // nearest neighbour
	Bilinear               // bilinear interpolation of the 2x2 neighbourhood
	Cubic                  // Keys cubic convolution of the 4x4 neighbourhood, a=-0.5
	Average                // average of all source pixels under the target pixel, weighted by overlap
)

var kernelNames = []string{"nearest", "bilinear", "cubic", "average"}

func (k Kernel) String() string {
	if k < 0 || int(k) >= len(kernelNames) {
		return fmt.Sprintf("Kernel(%d)", int(k))
	}
	return kernelNames[k]
}

// Parses a kernel name, case-insensitively
func ParseKernel(s string) (Kernel, error) {
	for i, n := range kernelNames {
		if strings.EqualFold(s, n) {
			return Kernel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resampling kernel '%s'", s)
}

// Raised when a raster cannot be brought onto a target grid
type ReprojectionError struct {
	FileName string
	SrcCRS   string
	DstCRS   string
	Err      error
}

func (e *ReprojectionError) Error() string {
	name := e.FileName
	if name == "" {
		name = "raster"
	}
	return fmt.Sprintf("reprojecting %s from %q to %q: %v", name, abbrev(e.SrcCRS), abbrev(e.DstCRS), e.Err)
}

func (e *ReprojectionError) Unwrap() error { return e.Err }

func abbrev(crs string) string {
	if len(crs) > 40 {
		return crs[:37] + "..."
	}
	return crs
}

// Coefficient of the Keys cubic convolution kernel
const cubicA = -0.5

// Resamples all bands of src onto the destination grid with the given kernel. Destination
// pixel centres are mapped into the source. Pixels falling outside the source are 0.
// NaN and no-data source values never contribute; where a bilinear or cubic neighbourhood
// touches one, the nearest source value is used instead. The result has no-data value 0.
func Reproject(src *raster.Raster, dst grid.Grid, kernel Kernel) (*raster.Raster, error) {
	fail := func(err error) (*raster.Raster, error) {
		return nil, &ReprojectionError{FileName: src.FileName, SrcCRS: src.CRS, DstCRS: dst.CRS, Err: err}
	}
	if err := src.Validate(); err != nil {
		return fail(err)
	}
	if err := dst.Validate(); err != nil {
		return fail(err)
	}
	if kernel < Nearest || kernel > Average {
		return fail(fmt.Errorf("unsupported kernel %v", kernel))
	}
	srcInv, err := src.Transform.Invert()
	if err != nil {
		return fail(err)
	}
	if b := src.Bounds(); !b.Valid() {
		return fail(fmt.Errorf("source has zero extent %v", b))
	}
	dstT := dst.Transform()
	centre := dstT.Apply(grid.Point{X: float64(dst.Width) / 2, Y: float64(dst.Height) / 2})
	toSrc, err := NewTransformer(dst.CRS, src.CRS, centre)
	if err != nil {
		var re *ReprojectionError
		if errors.As(err, &re) {
			re.FileName = src.FileName
		}
		return nil, err
	}

	res := raster.NewOnGrid(dst, len(src.Bands))
	res.ID, res.FileName = src.ID, src.FileName
	res.SetNoData(0)

	var projected atomic.Int64
	// maps a destination pixel space location into source pixel space
	project := func(col, row float64) (sx, sy float64, ok bool) {
		x, y := dstT.ApplyXY(col, row)
		x, y, err := toSrc(x, y)
		if err != nil || !finite(x, y) {
			return 0, 0, false
		}
		projected.Add(1)
		sx, sy = srcInv.ApplyXY(x, y)
		return sx, sy, true
	}

	s := sampler{src: src}
	raster.ParallelRows(dst.Height, func(row int) {
		for col := 0; col < dst.Width; col++ {
			offset := row*dst.Width + col
			if kernel == Average {
				fp, ok := footprint(project, float64(col), float64(row))
				if !ok {
					continue
				}
				for b := range src.Bands {
					res.Bands[b][offset] = s.average(b, fp)
				}
				continue
			}

			sx, sy, ok := project(float64(col)+0.5, float64(row)+0.5)
			if !ok || sx < 0 || sy < 0 || sx >= float64(src.Width) || sy >= float64(src.Height) {
				continue // out of bounds stays 0
			}
			for b := range src.Bands {
				var v float32
				switch kernel {
				case Nearest:
					v = s.nearest(b, sx, sy)
				case Bilinear:
					v = s.bilinear(b, sx, sy)
				case Cubic:
					v = s.cubic(b, sx, sy)
				}
				res.Bands[b][offset] = v
			}
		}
	})
	if projected.Load() == 0 {
		return fail(errors.New("no destination pixel maps into the source CRS"))
	}
	return res, nil
}

// A rectangle in source pixel space
type rect struct {
	x0, y0, x1, y1 float64
}

// Bounding box of the destination pixel's corners in source pixel space
func footprint(project func(col, row float64) (float64, float64, bool), col, row float64) (rect, bool) {
	r := rect{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, c := range [4][2]float64{{col, row}, {col + 1, row}, {col, row + 1}, {col + 1, row + 1}} {
		sx, sy, ok := project(c[0], c[1])
		if !ok {
			return r, false
		}
		r.x0, r.x1 = math.Min(r.x0, sx), math.Max(r.x1, sx)
		r.y0, r.y1 = math.Min(r.y0, sy), math.Max(r.y1, sy)
	}
	return r, true
}

// Samples source bands at continuous pixel space locations
type sampler struct {
	src *raster.Raster
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Nearest source value, or 0 if that is missing
func (s *sampler) nearest(b int, sx, sy float64) float32 {
	i, j := clamp(int(math.Floor(sx)), s.src.Width), clamp(int(math.Floor(sy)), s.src.Height)
	v := s.src.Bands[b][j*s.src.Width+i]
	if s.src.IsMissing(v) {
		return 0
	}
	return v
}

func (s *sampler) bilinear(b int, sx, sy float64) float32 {
	w, h := s.src.Width, s.src.Height
	data := s.src.Bands[b]
	fx, fy := sx-0.5, sy-0.5
	x0, y0 := math.Floor(fx), math.Floor(fy)
	tx, ty := fx-x0, fy-y0
	xl, yl := clamp(int(x0), w), clamp(int(y0), h)
	xh, yh := clamp(int(x0)+1, w), clamp(int(y0)+1, h)

	vll, vhl := data[yl*w+xl], data[yl*w+xh]
	vlh, vhh := data[yh*w+xl], data[yh*w+xh]
	if s.src.IsMissing(vll) || s.src.IsMissing(vhl) || s.src.IsMissing(vlh) || s.src.IsMissing(vhh) {
		return s.nearest(b, sx, sy)
	}
	vyl := float64(vll)*(1-tx) + float64(vhl)*tx
	vyh := float64(vlh)*(1-tx) + float64(vhh)*tx
	return float32(vyl*(1-ty) + vyh*ty)
}

// Keys cubic convolution weight
func cubicWeight(x float64) float64 {
	x = math.Abs(x)
	switch {
	case x <= 1:
		return ((cubicA+2)*x-(cubicA+3))*x*x + 1
	case x < 2:
		return ((cubicA*x-5*cubicA)*x+8*cubicA)*x - 4*cubicA
	}
	return 0
}

func (s *sampler) cubic(b int, sx, sy float64) float32 {
	w, h := s.src.Width, s.src.Height
	data := s.src.Bands[b]
	fx, fy := sx-0.5, sy-0.5
	x0, y0 := math.Floor(fx), math.Floor(fy)
	tx, ty := fx-x0, fy-y0

	var wx, wy [4]float64
	for k := 0; k < 4; k++ {
		wx[k] = cubicWeight(tx - float64(k-1))
		wy[k] = cubicWeight(ty - float64(k-1))
	}
	sum := 0.0
	for m := 0; m < 4; m++ {
		row := clamp(int(y0)+m-1, h) * w
		rowSum := 0.0
		for k := 0; k < 4; k++ {
			v := data[row+clamp(int(x0)+k-1, w)]
			if s.src.IsMissing(v) {
				return s.nearest(b, sx, sy)
			}
			rowSum += wx[k] * float64(v)
		}
		sum += wy[m] * rowSum
	}
	return float32(sum)
}

// Overlap-weighted average of valid source pixels under the footprint, or 0 if there are none
func (s *sampler) average(b int, fp rect) float32 {
	w, h := s.src.Width, s.src.Height
	data := s.src.Bands[b]
	i0, i1 := max(int(math.Floor(fp.x0)), 0), min(int(math.Ceil(fp.x1)), w)
	j0, j1 := max(int(math.Floor(fp.y0)), 0), min(int(math.Ceil(fp.y1)), h)
	sum, weight := 0.0, 0.0
	for j := j0; j < j1; j++ {
		oy := math.Min(float64(j+1), fp.y1) - math.Max(float64(j), fp.y0)
		if oy <= 0 {
			continue
		}
		for i := i0; i < i1; i++ {
			ox := math.Min(float64(i+1), fp.x1) - math.Max(float64(i), fp.x0)
			if ox <= 0 {
				continue
			}
			v := data[j*w+i]
			if s.src.IsMissing(v) {
				continue
			}
			sum += ox * oy * float64(v)
			weight += ox * oy
		}
	}
	if weight == 0 {
		return 0
	}
	return float32(sum / weight)
}
