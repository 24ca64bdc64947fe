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


package fusion

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func fineProduct(v float32) *raster.Raster {
	b := grid.Bounds{Left: 0, Bottom: 0, Right: 40, Top: 40}
	r := raster.New(4, 4, 2, grid.FromBoundsAndSize(b, 4, 4), "EPSG:32632")
	for _, band := range r.Bands {
		for i := range band {
			band[i] = v
		}
	}
	r.SetNoData(0)
	return r
}

func TestStub(t *testing.T) {
	store := raster.NewMemStore()
	if err := store.Write("s2/S2A_MSIL2A_20240601_REFL.tif", fineProduct(0.5)); err != nil {
		t.Fatal(err)
	}
	if err := store.Write("s2/S2A_MSIL2A_20240620_REFL.tif", fineProduct(0.8)); err != nil {
		t.Fatal(err)
	}
	stub := Stub{Store: store, Suffix: ".tif"}
	p := DefaultParams(21)

	if err := stub.Fuse(context.Background(), day(2024, 6, 1), "s3", "s2", "fusion", p); err != nil {
		t.Fatal(err)
	}
	r, err := store.Open("fusion/REFL_20240601.tif")
	if err != nil {
		t.Fatal(err)
	}
	if r.At(0, 1, 1) != 0.5 {
		t.Errorf("same-day weight must be 1, got %v", r.At(0, 1, 1))
	}

	if err := stub.Fuse(context.Background(), day(2024, 6, 17), "s3", "s2", "fusion", p); err != nil {
		t.Fatal(err)
	}
	r, err = store.Open("fusion/REFL_20240617.tif")
	if err != nil {
		t.Fatal(err)
	}
	want := 0.8 * (1 - 3.0/31)
	if math.Abs(float64(r.At(1, 0, 0))-want) > 1e-6 {
		t.Errorf("got %v want %v", r.At(1, 0, 0), want)
	}

	// too far from any fine product: no output
	if err := stub.Fuse(context.Background(), day(2024, 9, 1), "s3", "s2", "fusion", p); err != nil {
		t.Fatal(err)
	}
	if store.Exists("fusion/REFL_20240901.tif") {
		t.Errorf("unexpected output for distant date")
	}

	p.MinImportance = 0.99
	if err := stub.Fuse(context.Background(), day(2024, 6, 18), "s3", "s2", "fusion", p); err != nil {
		t.Fatal(err)
	}
	if store.Exists("fusion/REFL_20240618.tif") {
		t.Errorf("unexpected output below minimum importance")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := stub.Fuse(ctx, day(2024, 6, 1), "s3", "s2", "fusion", p); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v want context.Canceled", err)
	}
}

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		line string
		want []string
	}{
		{"python run.py --date {date}", []string{"python", "run.py", "--date", "{date}"}},
		{`efast  "a b" 'c d'`, []string{"efast", "a b", "c d"}},
		{`x ""`, []string{"x", ""}},
	}
	for _, tc := range testCases {
		got, err := ParseCommand(tc.line)
		if err != nil {
			t.Errorf("%s: %v", tc.line, err)
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", tc.line, diff)
		}
	}
	for _, line := range []string{"", "   ", `a "b`} {
		if _, err := ParseCommand(line); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}
}

func TestExecArgs(t *testing.T) {
	e := Exec{Command: []string{"fuse", "--date={date}", "{coarse}", "{fine}", "{out}", "{product}", "{maxDays}", "{datePosition}", "{minImportance}", "{ratio}"}}
	p := Params{Product: "REFL", MaxDays: 30, DatePosition: 2, MinImportance: 0.25, Ratio: 21}
	got := e.Args(day(2024, 6, 1), "c", "f", "o", p)
	want := []string{"fuse", "--date=20240601", "c", "f", "o", "REFL", "30", "2", "0.25", "21"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExecRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a posix shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
	var log bytes.Buffer
	ok := Exec{Command: []string{"sh", "-c", "echo fused {date}"}, Log: &log}
	if err := ok.Fuse(context.Background(), day(2024, 6, 1), "c", "f", "o", DefaultParams(21)); err != nil {
		t.Fatal(err)
	}
	if log.String() != "fused 20240601\n" {
		t.Errorf("got log %q", log.String())
	}

	fail := Exec{Command: []string{"sh", "-c", "exit 3"}}
	err := fail.Fuse(context.Background(), day(2024, 6, 1), "c", "f", "o", DefaultParams(21))
	var foe *FusionOperationError
	if !errors.As(err, &foe) || !foe.Date.Equal(day(2024, 6, 1)) {
		t.Errorf("got %v want FusionOperationError", err)
	}
}
