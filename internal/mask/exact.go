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


package mask

import (
	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
	"github.com/mlnoga/geofuse/internal/reproject"
)

// Exact operations: separable squared Euclidean distance transform after Felzenszwalb and
// Huttenlocher, "Distance Transforms of Sampled Functions", parallel over columns and rows,
// and area averaging with the reprojector's average kernel
type Exact struct{}

// Stands in for infinity, keeps the parabola intersection arithmetic finite
const far = 1e20

func (Exact) Distance(valid []bool, width, height int) []float32 {
	d2 := make([]float64, width*height)
	for i, v := range valid {
		if v {
			d2[i] = far
		}
	}

	// columns first
	raster.ParallelRows(width, func(col int) {
		f := make([]float64, height)
		for y := 0; y < height; y++ {
			f[y] = d2[y*width+col]
		}
		out := make([]float64, height)
		transform1D(f, out)
		for y := 0; y < height; y++ {
			d2[y*width+col] = out[y]
		}
	})

	// then rows
	res := make([]float32, width*height)
	raster.ParallelRows(height, func(row int) {
		f := d2[row*width : (row+1)*width]
		out := make([]float64, width)
		transform1D(f, out)
		for x, v := range out {
			res[row*width+x] = clipSqrt(v)
		}
	})
	return res
}

// One-dimensional squared distance transform of the sampled function f, via the lower envelope of parabolas
func transform1D(f, d []float64) {
	n := len(f)
	if n == 0 {
		return
	}
	v := make([]int, n)       // locations of parabolas in the lower envelope
	z := make([]float64, n+1) // boundaries between parabolas
	k := 0
	v[0] = 0
	z[0], z[1] = -far, far
	for q := 1; q < n; q++ {
		fq := f[q] + float64(q*q)
		s := (fq - (f[v[k]] + float64(v[k]*v[k]))) / float64(2*q-2*v[k])
		for s <= z[k] {
			k--
			s = (fq - (f[v[k]] + float64(v[k]*v[k]))) / float64(2*q-2*v[k])
		}
		k++
		v[k] = q
		z[k], z[k+1] = s, far
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

func (Exact) AreaAverage(field *raster.Raster, coarse grid.Grid) (*raster.Raster, error) {
	return reproject.Reproject(field, coarse, reproject.Average)
}
