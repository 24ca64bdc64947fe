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


// Package composite merges coarse acquisitions of the same calendar day into one
// raster per day on a shared reference grid, rejecting outlier pixels.
package composite

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mlnoga/geofuse/internal/dates"
	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
	"github.com/mlnoga/geofuse/internal/reproject"
)

// Pixels whose absolute band mean reaches this value are rejected
const DefaultOutlierThreshold = 5.0

// A single coarse acquisition
type Acquisition struct {
	Date   time.Time      // Acquisition day
	Seq    int            // Sequence number within the day
	Name   string         // Source file name
	Raster *raster.Raster // Loaded data, may be nil when only grouping file names
}

// All acquisitions of one calendar day
type DateGroup struct {
	Date    time.Time
	Members []Acquisition
}

// Groups acquisitions by calendar day. Groups are sorted ascending by day,
// members by sequence number and then name
func GroupByDate(acqs []Acquisition) []DateGroup {
	sorted := make([]Acquisition, len(acqs))
	copy(sorted, acqs)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := dates.Day(sorted[i].Date), dates.Day(sorted[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if sorted[i].Seq != sorted[j].Seq {
			return sorted[i].Seq < sorted[j].Seq
		}
		return sorted[i].Name < sorted[j].Name
	})

	var groups []DateGroup
	for _, a := range sorted {
		d := dates.Day(a.Date)
		if len(groups) == 0 || !groups[len(groups)-1].Date.Equal(d) {
			groups = append(groups, DateGroup{Date: d})
		}
		g := &groups[len(groups)-1]
		g.Members = append(g.Members, a)
	}
	return groups
}

// Composite parameters
type Options struct {
	OutlierThreshold float64          // Absolute band mean at or above which a pixel is dropped
	Kernel           reproject.Kernel // Resampling kernel onto the reference grid
}

func DefaultOptions() Options {
	return Options{OutlierThreshold: DefaultOutlierThreshold, Kernel: reproject.Cubic}
}

// Builds the composite of the given members on the reference grid.
// A single member is reprojected directly. For several members, each is reprojected,
// pixels with an absolute band mean at or above the outlier threshold are
// blanked in all bands, and the remaining values are averaged per band.
// Pixels without any remaining value become NaN
func Build(members []*raster.Raster, ref grid.Grid, opts Options) (*raster.Raster, error) {
	if len(members) == 0 {
		return nil, errors.New("composite has no members")
	}
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("composite reference: %w", err)
	}
	if len(members) == 1 {
		return reproject.Reproject(members[0], ref, opts.Kernel)
	}

	projected := make([]*raster.Raster, len(members))
	for i, m := range members {
		p, err := reproject.Reproject(m, ref, opts.Kernel)
		if err != nil {
			return nil, err
		}
		projected[i] = p
	}
	numBands := projected[0].NumBands()
	for i, p := range projected[1:] {
		if p.NumBands() != numBands {
			return nil, fmt.Errorf("composite member %d has %d bands, want %d", i+2, p.NumBands(), numBands)
		}
	}

	for _, p := range projected {
		rejectOutliers(p, opts.OutlierThreshold)
	}

	out := raster.NewOnGrid(ref, numBands)
	out.SetNoData(0)
	raster.ParallelRows(ref.Height, func(row int) {
		lo, hi := row*ref.Width, (row+1)*ref.Width
		for b := 0; b < numBands; b++ {
			dst := out.Bands[b]
			for i := lo; i < hi; i++ {
				sum, n := 0.0, 0
				for _, p := range projected {
					v := p.Bands[b][i]
					if math.IsNaN(float64(v)) {
						continue
					}
					sum += float64(v)
					n++
				}
				if n == 0 {
					dst[i] = float32(math.NaN())
				} else {
					dst[i] = float32(sum / float64(n))
				}
			}
		}
	})
	return out, nil
}

// Sets a pixel to NaN in all bands if the absolute mean over its non-NaN bands
// reaches the threshold. Pixels without any non-NaN band are left alone
func rejectOutliers(r *raster.Raster, threshold float64) {
	nan := float32(math.NaN())
	raster.ParallelRows(r.Height, func(row int) {
		lo, hi := row*r.Width, (row+1)*r.Width
		for i := lo; i < hi; i++ {
			sum, n := 0.0, 0
			for _, band := range r.Bands {
				if v := band[i]; !math.IsNaN(float64(v)) {
					sum += float64(v)
					n++
				}
			}
			if n == 0 || math.Abs(sum/float64(n)) < threshold {
				continue
			}
			for _, band := range r.Bands {
				band[i] = nan
			}
		}
	})
}
