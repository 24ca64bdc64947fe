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


package crop

import (
	"errors"
	"math"
	"testing"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
)

var family = grid.Bounds{Left: 600000, Bottom: 5100000, Right: 600300, Top: 5100300}

func filled(w, h int, b grid.Bounds, v float32) *raster.Raster {
	r := raster.New(w, h, 2, grid.FromBoundsAndSize(b, w, h), "EPSG:32633")
	for _, band := range r.Bands {
		for i := range band {
			band[i] = v
		}
	}
	return r
}

func TestLastValidRow(t *testing.T) {
	const w, h = 5, 10
	r := filled(w, h, family, 0.3)
	nan := float32(math.NaN())
	// three bottom rows missing or noise
	for col := 0; col < w; col++ {
		r.Set(0, col, h-1, nan)
		r.Set(1, col, h-1, nan)
		r.Set(0, col, h-2, 0)
		r.Set(1, col, h-2, 0.0005)
		r.Set(0, col, h-3, -0.0009)
		r.Set(1, col, h-3, nan)
	}
	row, ok := LastValidRow(r, DefaultEpsilon)
	if !ok || row != h-4 {
		t.Errorf("got %d %v want %d", row, ok, h-4)
	}

	// a single strongly negative pixel counts as valid
	r.Set(0, 2, h-2, -0.2)
	if row, _ := LastValidRow(r, DefaultEpsilon); row != h-2 {
		t.Errorf("got %d want %d", row, h-2)
	}

	empty := filled(w, h, family, 0)
	if _, ok := LastValidRow(empty, DefaultEpsilon); ok {
		t.Errorf("expected no valid row")
	}
}

func TestValidBounds(t *testing.T) {
	fused := filled(30, 30, family, 0.5)
	for row := 27; row < 30; row++ {
		for col := 0; col < 30; col++ {
			fused.Set(0, col, row, 0)
			fused.Set(1, col, row, 0)
		}
	}
	b, err := ValidBounds(fused, family, DefaultEpsilon)
	if err != nil {
		t.Fatal(err)
	}
	want := family
	want.Bottom = family.Top - 270
	if !b.ApproxEqual(want, 1e-6) {
		t.Errorf("got %v want %v", b, want)
	}

	// reference bottom wins if higher
	ref := family
	ref.Bottom = family.Top - 100
	b, err = ValidBounds(fused, ref, DefaultEpsilon)
	if err != nil || !b.ApproxEqual(ref, 1e-6) {
		t.Errorf("got %v %v want %v", b, err, ref)
	}

	var eie *EmptyIntersectionError
	if _, err := ValidBounds(filled(30, 30, family, 0), family, DefaultEpsilon); !errors.As(err, &eie) {
		t.Errorf("expected EmptyIntersectionError, got %v", err)
	}
}

func TestCropFamilyIdenticalBounds(t *testing.T) {
	fine := filled(60, 60, family, 0.1)
	coarse := filled(3, 3, family, 0.2)
	fused := filled(30, 30, family, 0.3)
	b := family
	b.Bottom = family.Top - 200

	res, err := CropFamily(b, fine, coarse, fused)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range res {
		if !r.Bounds().ApproxEqual(b, 1e-6) {
			t.Errorf("member %d: bounds %v want %v", i, r.Bounds(), b)
		}
	}
	if res[0].Height != 40 || res[2].Height != 20 || res[1].Height != 2 {
		t.Errorf("heights %d %d %d", res[0].Height, res[1].Height, res[2].Height)
	}
	if res[0].Width != 60 || res[0].At(0, 5, 5) != 0.1 {
		t.Errorf("unexpected fine crop %s", res[0].DimensionsToString())
	}
}

func TestCropOutside(t *testing.T) {
	r := filled(10, 10, family, 0.1)
	far := grid.Bounds{Left: 0, Bottom: 0, Right: 100, Top: 100}
	var eie *EmptyIntersectionError
	if _, err := Crop(r, far); !errors.As(err, &eie) {
		t.Errorf("expected EmptyIntersectionError, got %v", err)
	}
}
