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
	"math"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
	"github.com/mlnoga/geofuse/internal/reproject"
)

// Fallback operations: brute force distance transform over the list of invalid pixels,
// and NxN block binning where the coarse grid is an integer subdivision of the fine grid.
// Slow, but simple enough to check the exact operations against
type Fallback struct{}

func (Fallback) Distance(valid []bool, width, height int) []float32 {
	var invalid [][2]int
	for i, v := range valid {
		if !v {
			invalid = append(invalid, [2]int{i % width, i / width})
		}
	}
	res := make([]float32, width*height)
	if len(invalid) == 0 {
		for i := range res {
			res[i] = MaxDistance
		}
		return res
	}
	raster.ParallelRows(height, func(row int) {
		for col := 0; col < width; col++ {
			if !valid[row*width+col] {
				continue
			}
			best := math.MaxFloat64
			for _, p := range invalid {
				dx, dy := float64(col-p[0]), float64(row-p[1])
				if d2 := dx*dx + dy*dy; d2 < best {
					best = d2
					if best <= 1 {
						break
					}
				}
			}
			res[row*width+col] = clipSqrt(best)
		}
	})
	return res
}

// Bins the field NxM if the coarse grid covers the same bounds and CRS with dimensions that
// divide the fine ones. Otherwise resamples with the reprojector's average kernel
func (Fallback) AreaAverage(field *raster.Raster, coarse grid.Grid) (*raster.Raster, error) {
	if err := coarse.Validate(); err != nil {
		return nil, err
	}
	fine := field.Grid()
	nx, ny := field.Width/coarse.Width, field.Height/coarse.Height
	px, _ := fine.Resolution()
	if reproject.Normalize(fine.CRS) != reproject.Normalize(coarse.CRS) || !field.Transform.IsRectilinear() ||
		nx < 1 || ny < 1 || nx*coarse.Width != field.Width || ny*coarse.Height != field.Height ||
		!fine.Bounds.ApproxEqual(coarse.Bounds, px*1e-3) {
		return reproject.Reproject(field, coarse, reproject.Average)
	}
	return binNxM(field, coarse, nx, ny), nil
}

// Averages nx by ny blocks of valid values into the coarse grid
func binNxM(src *raster.Raster, coarse grid.Grid, nx, ny int) *raster.Raster {
	binned := raster.NewOnGrid(coarse, len(src.Bands))
	binned.ID, binned.FileName = src.ID, src.FileName
	binned.SetNoData(0)

	for b, data := range src.Bands {
		out := binned.Bands[b]
		raster.ParallelRows(coarse.Height, func(y int) {
			for x := 0; x < coarse.Width; x++ {
				sum, n := float64(0), 0
				for yoff := 0; yoff < ny; yoff++ {
					origPos := (y*ny+yoff)*src.Width + x*nx
					for _, v := range data[origPos : origPos+nx] {
						if !src.IsMissing(v) {
							sum += float64(v)
							n++
						}
					}
				}
				if n > 0 {
					out[y*coarse.Width+x] = float32(sum / float64(n))
				}
			}
		})
	}
	return binned
}
