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


package reproject

import (
	"errors"
	"math"
	"testing"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
	"github.com/valyala/fastrand"
)

func testRaster(w, h int, b grid.Bounds, crs string) *raster.Raster {
	r := raster.New(w, h, 2, grid.FromBoundsAndSize(b, w, h), crs)
	rng := fastrand.RNG{}
	for _, band := range r.Bands {
		for i := range band {
			band[i] = 0.05 + float32(rng.Uint32n(1000))/1000
		}
	}
	return r
}

var utmBounds = grid.Bounds{Left: 600000, Bottom: 5100000, Right: 603000, Top: 5102400}

func TestSelfReprojection(t *testing.T) {
	src := testRaster(30, 24, utmBounds, "EPSG:32632")
	for _, k := range []Kernel{Nearest, Bilinear, Cubic, Average} {
		res, err := Reproject(src, src.Grid(), k)
		if err != nil {
			t.Fatalf("%v: %v", k, err)
		}
		for b := range src.Bands {
			for i, want := range src.Bands[b] {
				if got := res.Bands[b][i]; math.Abs(float64(got-want)) > 1e-5 {
					t.Fatalf("%v band %d pixel %d: got %g want %g", k, b, i, got, want)
				}
			}
		}
		if !res.HasNoData || res.NoData != 0 {
			t.Errorf("%v: no-data must be 0", k)
		}
	}
}

func TestOutOfBoundsIsZero(t *testing.T) {
	src := testRaster(10, 10, grid.Bounds{Left: 0, Bottom: 0, Right: 100, Top: 100}, "EPSG:32632")
	dst, _ := grid.New(grid.Bounds{Left: 50, Bottom: 0, Right: 150, Top: 100}, "EPSG:32632", 10, 10)
	res, err := Reproject(src, dst, Cubic)
	if err != nil {
		t.Fatal(err)
	}
	for row := 0; row < 10; row++ {
		for col := 0; col < 10; col++ {
			v := res.At(0, col, row)
			if col < 5 && v != src.At(0, col+5, row) {
				t.Errorf("(%d,%d): got %g want %g", col, row, v, src.At(0, col+5, row))
			}
			if col >= 5 && v != 0 {
				t.Errorf("(%d,%d): got %g want 0", col, row, v)
			}
		}
	}
}

func TestMissingFallsBackToNearest(t *testing.T) {
	src := raster.New(4, 4, 1, grid.FromBoundsAndSize(grid.Bounds{Left: 0, Bottom: 0, Right: 4, Top: 4}, 4, 4), "")
	for i := range src.Bands[0] {
		src.Bands[0][i] = 1
	}
	src.Bands[0][5] = float32(math.NaN()) // col 1, row 1
	src.Bands[0][10] = 3                  // col 2, row 2
	dst, _ := grid.New(grid.Bounds{Left: 0, Bottom: 0, Right: 4, Top: 4}, "", 8, 8)

	for _, k := range []Kernel{Bilinear, Cubic} {
		res, err := Reproject(src, dst, k)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range res.Bands[0] {
			if math.IsNaN(float64(v)) {
				t.Fatalf("%v: NaN leaked into pixel %d", k, i)
			}
		}
		// fine pixel (2,2) lies inside the NaN coarse pixel: nearest is missing, so 0
		if v := res.At(0, 2, 2); v != 0 {
			t.Errorf("%v: got %g at missing pixel, want 0", k, v)
		}
		// fine pixel (4,4) lies inside coarse pixel (2,2), its neighbourhood touches the NaN
		if v := res.At(0, 4, 4); v != 3 {
			t.Errorf("%v: got %g, want nearest value 3", k, v)
		}
	}
}

func TestAverageDownsample(t *testing.T) {
	b := grid.Bounds{Left: 0, Bottom: 0, Right: 40, Top: 40}
	src := testRaster(4, 4, b, "EPSG:3857")
	src.SetNoData(-1)
	src.Bands[0][0] = -1
	dst, _ := grid.New(b, "EPSG:3857", 2, 2)
	res, err := Reproject(src, dst, Average)
	if err != nil {
		t.Fatal(err)
	}
	for band := range src.Bands {
		for row := 0; row < 2; row++ {
			for col := 0; col < 2; col++ {
				sum, n := float32(0), 0
				for dy := 0; dy < 2; dy++ {
					for dx := 0; dx < 2; dx++ {
						v := src.At(band, 2*col+dx, 2*row+dy)
						if v != -1 {
							sum += v
							n++
						}
					}
				}
				if got := res.At(band, col, row); math.Abs(float64(got-sum/float32(n))) > 1e-6 {
					t.Errorf("band %d (%d,%d): got %g want %g", band, col, row, got, sum/float32(n))
				}
			}
		}
	}
}

func TestUTMToLongLat(t *testing.T) {
	tr, err := NewTransformer("EPSG:32632", "EPSG:4326", grid.Point{X: 500000, Y: 0})
	if err != nil {
		t.Fatal(err)
	}
	lon, lat, err := tr(500000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(lon-9) > 1e-6 || math.Abs(lat) > 1e-6 {
		t.Errorf("got lon %g lat %g, want 9 0", lon, lat)
	}

	back, err := NewTransformer("EPSG:4326", "EPSG:32632", grid.Point{X: 9, Y: 0})
	if err != nil {
		t.Fatal(err)
	}
	x, y, err := back(lon, lat)
	if err != nil || math.Abs(x-500000) > 1e-3 || math.Abs(y) > 1e-3 {
		t.Errorf("round trip: got %g %g %v", x, y, err)
	}
}

func TestCrossCRSReprojection(t *testing.T) {
	src := testRaster(30, 24, utmBounds, "EPSG:32632")
	lonLat, err := NewTransformer("EPSG:32632", "EPSG:4326", grid.Point{X: 601500, Y: 5101200})
	if err != nil {
		t.Fatal(err)
	}
	// a geographic grid well inside the source
	x0, y0, _ := lonLat(utmBounds.Left+500, utmBounds.Bottom+500)
	x1, y1, _ := lonLat(utmBounds.Right-500, utmBounds.Top-500)
	dst, err := grid.New(grid.Bounds{Left: x0, Bottom: y0, Right: x1, Top: y1}, "EPSG:4326", 8, 6)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Reproject(src, dst, Nearest)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range res.Bands[0] {
		if v < 0.05 {
			t.Errorf("pixel %d: got %g, want a source value", i, v)
		}
	}
}

func TestReprojectionErrors(t *testing.T) {
	src := testRaster(4, 4, utmBounds, "EPSG:32632")
	noCRS, _ := grid.New(utmBounds, "", 4, 4)
	_, err := Reproject(src, noCRS, Nearest)
	var re *ReprojectionError
	if !errors.As(err, &re) {
		t.Errorf("one-sided CRS: expected ReprojectionError, got %v", err)
	}

	bad, _ := grid.New(utmBounds, "+proj=doesnotexist", 4, 4)
	if _, err := Reproject(src, bad, Nearest); !errors.As(err, &re) {
		t.Errorf("bad CRS: expected ReprojectionError, got %v", err)
	}

	flat := src.Clone()
	flat.Transform.A, flat.Transform.E = 0, 0
	if _, err := Reproject(flat, src.Grid(), Nearest); !errors.As(err, &re) {
		t.Errorf("singular transform: expected ReprojectionError, got %v", err)
	}
}

func TestNewTransformerRejects(t *testing.T) {
	at := grid.Point{X: 600000, Y: 5100000}
	for _, tc := range []struct {
		name     string
		src, dst string
	}{
		{"unknown projection", "EPSG:32632", "+proj=doesnotexist"},
		{"unknown source projection", "+proj=doesnotexist", "EPSG:4326"},
		{"one-sided CRS", "EPSG:32632", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := NewTransformer(tc.src, tc.dst, at)
			var re *ReprojectionError
			if !errors.As(err, &re) {
				t.Fatalf("expected ReprojectionError, got %v", err)
			}
			if tr != nil {
				t.Errorf("expected no transformer")
			}
		})
	}
}

func TestParseKernel(t *testing.T) {
	for _, k := range []Kernel{Nearest, Bilinear, Cubic, Average} {
		got, err := ParseKernel(k.String())
		if err != nil || got != k {
			t.Errorf("%v: got %v %v", k, got, err)
		}
	}
	if _, err := ParseKernel("lanczos"); err == nil {
		t.Errorf("expected error")
	}
}
