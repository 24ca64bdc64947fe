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


// Package stats computes descriptive statistics over raster bands, skipping missing values.
package stats

import (
	"fmt"
	"math"

	"github.com/mlnoga/geofuse/internal/qsort"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"
)

// Number of samples for approximate median calculation
const numSamples = 128 * 1024

// Number of histogram bins for mode estimation
const numBins = 1024

// Statistics for one raster band
type Stats struct {
	Valid   int     // Number of valid pixels
	Missing int     // Number of NaN or no-data pixels
	Min     float32 // Minimum
	Max     float32 // Maximum
	Mean    float32 // Mean (average)
	StdDev  float32 // Standard deviation (norm 2, sigma)
	Median  float32 // Median, approximated by sampling for large bands
	Mode    float32 // Histogram peak, fitted with a normal distribution
}

// Pretty print stats to string
func (s *Stats) String() string {
	return fmt.Sprintf("Valid %d Missing %d Min %.6g Max %.6g Mean %.6g StdDev %.6g Median %.6g Mode %.6g",
		s.Valid, s.Missing, s.Min, s.Max, s.Mean, s.StdDev, s.Median, s.Mode)
}

// Pretty print stats to CSV header
func (s *Stats) ToCSVHeader() string {
	return "Valid,Missing,Min,Max,Mean,StdDev,Median,Mode"
}

// Pretty print stats to CSV line item
func (s *Stats) ToCSVLine() string {
	return fmt.Sprintf("%d,%d,%.6g,%.6g,%.6g,%.6g,%.6g,%.6g",
		s.Valid, s.Missing, s.Min, s.Max, s.Mean, s.StdDev, s.Median, s.Mode)
}

// Calculates statistics for the data. Values for which isMissing returns true are skipped,
// as are NaNs. If no valid values remain, all statistics except the counts are NaN
func Calc(data []float32, isMissing func(float32) bool) *Stats {
	valid := make([]float64, 0, len(data))
	for _, d := range data {
		if math.IsNaN(float64(d)) || (isMissing != nil && isMissing(d)) {
			continue
		}
		valid = append(valid, float64(d))
	}
	s := &Stats{Valid: len(valid), Missing: len(data) - len(valid)}
	if len(valid) == 0 {
		nan := float32(math.NaN())
		s.Min, s.Max, s.Mean, s.StdDev, s.Median, s.Mode = nan, nan, nan, nan, nan, nan
		return s
	}

	min, max := valid[0], valid[0]
	for _, v := range valid[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean, stdDev := stat.PopMeanStdDev(valid, nil)
	s.Min, s.Max, s.Mean, s.StdDev = float32(min), float32(max), float32(mean), float32(stdDev)
	s.Median = approxMedian(valid)

	s.Mode = s.Median
	if max > min {
		bins := make([]int32, numBins)
		Histogram(valid, min, max, bins)
		if mode, _, err := GetModeStdDevFromHistogram(bins, min, max); err == nil && mode >= s.Min && mode <= s.Max {
			s.Mode = mode
		}
	}
	return s
}

// Calculates the exact median for small inputs, and a fast approximate median of large inputs
// by subsampling with replacement
func approxMedian(data []float64) float32 {
	n := len(data)
	if n <= numSamples {
		samples := make([]float32, n)
		for i, d := range data {
			samples[i] = float32(d)
		}
		return qsort.QSelectMedianFloat32(samples)
	}
	samples := make([]float32, numSamples)
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = float32(data[rng.Uint32n(uint32(n))])
	}
	return qsort.QSelectMedianFloat32(samples)
}
