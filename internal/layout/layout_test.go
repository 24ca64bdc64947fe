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


package layout

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mlnoga/geofuse/internal/dates"
)

func TestNames(t *testing.T) {
	l, err := New("/data", "harvard", 2024, FormatGeoTIFF)
	if err != nil {
		t.Fatal(err)
	}
	d := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	testCases := []struct {
		got, want string
	}{
		{l.RawGlob(S3), "/data/harvard/2024/raw/s3/*.geotiff"},
		{l.ReflFile(d), "/data/harvard/2024/prepared/s2/S2A_MSIL2A_20240610_REFL.tif"},
		{l.DistCloudFile(d), "/data/harvard/2024/prepared/s2/S2A_MSIL2A_20240610_DIST_CLOUD.tif"},
		{l.CompositeFile(d), "/data/harvard/2024/prepared/s3/composite_20240610.tif"},
		{l.FusedFile(d), "/data/harvard/2024/prepared/fusion/REFL_20240610.tif"},
		{l.ProcessedFile(Fusion, d), "/data/harvard/2024/processed/fusion/20240610_0.geotiff"},
		{l.PreparedNDVIFile(S3, d), "/data/harvard/2024/prepared/ndvi/s3/20240610_ndvi.geotiff"},
		{l.RawNDVIFile(S2, "/x/20240610_1.geotiff"), "/data/harvard/2024/raw/ndvi/s2/20240610_1.geotiff"},
		{TimeseriesFile(l.RawNDVIDir(S2)), "/data/harvard/2024/raw/ndvi/s2/timeseries.json"},
		{l.CloudsFile(), "/data/harvard/2024/clouds.json"},
	}
	for _, tc := range testCases {
		if filepath.ToSlash(tc.got) != tc.want {
			t.Errorf("got %s want %s", tc.got, tc.want)
		}
	}
}

func TestDatePositions(t *testing.T) {
	l, _ := New("/data", "site", 2024, FormatFITS)
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		pos  int
	}{
		{l.ReflFile(d), ReflDatePos},
		{l.DistCloudFile(d), ReflDatePos},
		{l.CompositeFile(d), CompositeDatePos},
		{l.FusedFile(d), FusedDatePos},
		{l.ProcessedFile(S2, d), RawDatePos},
		{l.PreparedNDVIFile(S2, d), RawDatePos},
	}
	for _, tc := range testCases {
		got, err := dates.FromFileName(tc.name, tc.pos)
		if err != nil || !got.Equal(d) {
			t.Errorf("%s: got %v %v", tc.name, got, err)
		}
		if filepath.Ext(tc.name) != ".fits" {
			t.Errorf("%s: want .fits suffix", tc.name)
		}
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := New("/data", "site", 2024, "png"); err == nil {
		t.Errorf("expected error")
	}
}
