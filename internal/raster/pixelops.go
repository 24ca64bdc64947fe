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

package raster

import (
	"runtime"
)

// A pixel function. Operates in-place on a slice of one band. For parallelization across CPUs.
type PixelFunction func(data []float32, params interface{})

// A two-band pixel function, reading a and b and writing into out. For parallelization across CPUs.
type PixelFunction2Band func(out, a, b []float32, params interface{})

// Runs fn over [0,n) split into 8*NumCPU() work packages, limiting parallelism to NumCPU()
func parallelRanges(n int, fn func(lower, upper int)) {
	numBatches := 8 * runtime.NumCPU()
	batchSize := (n + numBatches - 1) / numBatches
	if batchSize < 1 {
		batchSize = 1
	}
	sem := make(chan bool, runtime.NumCPU())
	for lower := 0; lower < n; lower += batchSize {
		upper := lower + batchSize
		if upper > n {
			upper = n
		}
		sem <- true
		go func(lower, upper int) {
			fn(lower, upper)
			<-sem
		}(lower, upper)
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}
}

// Apply given pixel function to all bands of the raster. Uses thread parallelism across all available CPUs. Operates in-place.
func (r *Raster) ApplyPixelFunction(pf PixelFunction, args interface{}) {
	for _, band := range r.Bands {
		data := band
		parallelRanges(len(data), func(lower, upper int) {
			pf(data[lower:upper], args)
		})
	}
}

// Apply given two-band pixel function, writing into out. All slices must have equal length.
func ApplyPixelFunction2Band(out, a, b []float32, pf PixelFunction2Band, args interface{}) {
	parallelRanges(len(out), func(lower, upper int) {
		pf(out[lower:upper], a[lower:upper], b[lower:upper], args)
	})
}

// Runs fn for every row of a raster with the given height, in parallel. Rows must be independent
func ParallelRows(height int, fn func(row int)) {
	parallelRanges(height, func(lower, upper int) {
		for row := lower; row < upper; row++ {
			fn(row)
		}
	})
}

type pfScaleOffsetArgs struct {
	Scale  float32
	Offset float32
	NoData float32
	Keep   bool
}

// Pixel function to apply a scale and an offset, leaving no-data values untouched if Keep is set. Operates in-place.
func pfScaleOffset(data []float32, params interface{}) {
	args := params.(pfScaleOffsetArgs)
	for i, d := range data {
		if args.Keep && d == args.NoData {
			continue
		}
		data[i] = d*args.Scale + args.Offset
	}
}

// Applies given scale factor and offset to all bands. No-data values are preserved. Operates in-place.
func (r *Raster) ApplyScaleOffset(scale, offset float32) {
	r.ApplyPixelFunction(pfScaleOffset, pfScaleOffsetArgs{
		Scale:  scale,
		Offset: offset,
		NoData: float32(r.NoData),
		Keep:   r.HasNoData,
	})
}
