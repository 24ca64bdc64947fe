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


//go:build gdal

package gtiff

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
)

func TestRoundTrip(t *testing.T) {
	s := raster.NewSuffixStore()
	Register(s)

	b := grid.Bounds{Left: 600000, Bottom: 5100000, Right: 600300, Top: 5100200}
	r := raster.New(3, 2, 2, grid.FromBoundsAndSize(b, 3, 2), "EPSG:32633")
	for i := range r.Bands[0] {
		r.Bands[0][i] = float32(i) / 10
		r.Bands[1][i] = float32(math.NaN())
	}
	r.SetNoData(0)

	fileName := filepath.Join(t.TempDir(), "prepared", "s3", "composite_20240601.tif")
	if err := s.Write(fileName, r); err != nil {
		t.Fatal(err)
	}
	got, err := s.Open(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if got.CRS != "EPSG:32633" || !got.HasNoData || got.NoData != 0 {
		t.Errorf("got CRS %s nodata %v %v", got.CRS, got.HasNoData, got.NoData)
	}
	if got.Transform != r.Transform {
		t.Errorf("got transform %v want %v", got.Transform, r.Transform)
	}
	if diff := cmp.Diff(r.Bands[0], got.Bands[0]); diff != "" {
		t.Errorf("band 1 mismatch (-want +got):\n%s", diff)
	}
	if !math.IsNaN(float64(got.Bands[1][5])) {
		t.Errorf("NaN not preserved")
	}
}
