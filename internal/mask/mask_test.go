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
	"testing"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
	"github.com/valyala/fastrand"
)

var implementations = []struct {
	name string
	ops  Ops
}{
	{"exact", Exact{}},
	{"fallback", Fallback{}},
}

func TestLoneInvalidPixel(t *testing.T) {
	valid := make([]bool, 25)
	for i := range valid {
		valid[i] = true
	}
	valid[12] = false
	for _, impl := range implementations {
		d := impl.ops.Distance(valid, 5, 5)
		for i, v := range d {
			x, y := float64(i%5-2), float64(i/5-2)
			want := float32(math.Sqrt(x*x + y*y))
			if math.Abs(float64(v-want)) > 1e-6 {
				t.Errorf("%s: pixel %d got %g want %g", impl.name, i, v, want)
			}
		}
		if d[12] != 0 || d[7] != 1 || d[11] != 1 || d[13] != 1 || d[17] != 1 {
			t.Errorf("%s: got center %g neighbours %g %g %g %g", impl.name, d[12], d[7], d[11], d[13], d[17])
		}
	}
}

func TestAllValidIsCapped(t *testing.T) {
	valid := make([]bool, 12)
	for i := range valid {
		valid[i] = true
	}
	for _, impl := range implementations {
		for i, v := range impl.ops.Distance(valid, 4, 3) {
			if v != MaxDistance {
				t.Errorf("%s: pixel %d got %g want %d", impl.name, i, v, MaxDistance)
			}
		}
	}
}

func TestClipping(t *testing.T) {
	w, h := 300, 2
	valid := make([]bool, w*h)
	for i := range valid {
		valid[i] = true
	}
	valid[0] = false
	for _, impl := range implementations {
		d := impl.ops.Distance(valid, w, h)
		if d[w-1] != MaxDistance || d[100] != 100 {
			t.Errorf("%s: got %g at far end and %g at 100", impl.name, d[w-1], d[100])
		}
	}
}

func TestImplementationsAgree(t *testing.T) {
	rng := fastrand.RNG{}
	w, h := 37, 29
	valid := make([]bool, w*h)
	for i := range valid {
		valid[i] = rng.Uint32n(10) != 0
	}
	exact := Exact{}.Distance(valid, w, h)
	fallback := Fallback{}.Distance(valid, w, h)
	for i := range exact {
		if math.Abs(float64(exact[i]-fallback[i])) > 1e-5 {
			t.Fatalf("pixel %d: exact %g fallback %g", i, exact[i], fallback[i])
		}
	}
}

func TestBuildDistanceField(t *testing.T) {
	ratio := grid.Ratio(3)
	b := grid.Bounds{Left: 0, Bottom: 0, Right: 900, Top: 600}
	coarse, _ := grid.New(b, "EPSG:32632", 3, 2)
	fine := ratio.FineSize(coarse)

	r := raster.NewOnGrid(fine, 4)
	rng := fastrand.RNG{}
	for _, band := range r.Bands {
		for i := range band {
			band[i] = 0.01 + float32(rng.Uint32n(100))/100
		}
	}
	// a cloud hole in the top left coarse pixel
	r.Set(0, 1, 1, 0)

	var results []*raster.Raster
	for _, impl := range implementations {
		res, err := BuildDistanceField(r, coarse, impl.ops)
		if err != nil {
			t.Fatalf("%s: %v", impl.name, err)
		}
		if res.NumBands() != 1 || res.Width != 3 || res.Height != 2 {
			t.Fatalf("%s: got %s", impl.name, res.DimensionsToString())
		}
		if !res.Bounds().ApproxEqual(b, 1e-6) {
			t.Errorf("%s: bounds %v want %v", impl.name, res.Bounds(), b)
		}
		// the top left block holds the hole: distances 0, 1, 1.41..., mean well below the far blocks
		if tl, br := res.At(0, 0, 0), res.At(0, 2, 1); !(tl > 0 && tl < 2 && br > tl) {
			t.Errorf("%s: top left %g bottom right %g", impl.name, tl, br)
		}
		results = append(results, res)
	}
	for i, v := range results[0].Bands[0] {
		if math.Abs(float64(v-results[1].Bands[0][i])) > 1e-4 {
			t.Errorf("pixel %d: exact %g fallback %g", i, v, results[1].Bands[0][i])
		}
	}
}

func TestValidityMask(t *testing.T) {
	r := raster.New(3, 1, 2, grid.IdentityTransform(), "")
	r.Bands[0] = []float32{0, 1, float32(math.NaN())}
	r.Bands[1] = []float32{5, 0, 0}
	got := ValidityMask(r)
	if got[0] || !got[1] || !got[2] {
		t.Errorf("got %v", got)
	}
}
