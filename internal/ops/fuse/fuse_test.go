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


package fuse

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mlnoga/geofuse/internal/config"
	"github.com/mlnoga/geofuse/internal/fusion"
	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/ops"
	"github.com/mlnoga/geofuse/internal/raster"
)

func newContext(t *testing.T, store raster.Store, log *bytes.Buffer) *ops.Context {
	t.Helper()
	cfg := config.Default()
	cfg.Site, cfg.Season = "test", 2024
	cfg.DateRange = "2024-06-01/2024-06-05"
	cfg.Fusion.MaxDays = 1
	c, err := ops.NewContext(log, cfg, store)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func refl() *raster.Raster {
	b := grid.Bounds{Left: 0, Bottom: 0, Right: 40, Top: 40}
	r := raster.New(4, 4, 4, grid.FromBoundsAndSize(b, 4, 4), "EPSG:32632")
	for _, band := range r.Bands {
		for i := range band {
			band[i] = 0.25
		}
	}
	return r
}

func TestFuseLoop(t *testing.T) {
	store := raster.NewMemStore()
	var log bytes.Buffer
	c := newContext(t, store, &log)
	if err := store.Write(c.Layout.ReflFile(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)), refl()); err != nil {
		t.Fatal(err)
	}

	sum, err := NewOpFuse("").Fuse(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Summary{Saved: 3, Empty: 2}, sum); diff != "" {
		t.Errorf("first run (-want +got):\n%s", diff)
	}
	if !strings.Contains(log.String(), "No output for 20240601 (insufficient nearby data)") {
		t.Errorf("missing empty date log line in\n%s", log.String())
	}
	fused, _ := store.Glob(c.Layout.FusedGlob())
	if len(fused) != 3 {
		t.Errorf("got %d fused products, want 3", len(fused))
	}

	sum, err = NewOpFuse("").Fuse(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Summary{Skipped: 3, Empty: 2}, sum); diff != "" {
		t.Errorf("second run (-want +got):\n%s", diff)
	}
}

func TestFuseMissingReference(t *testing.T) {
	var log bytes.Buffer
	c := newContext(t, raster.NewMemStore(), &log)
	err := NewOpFuse("").Run(context.Background(), c)
	var mre *ops.MissingReferenceError
	if !errors.As(err, &mre) {
		t.Errorf("got %v, want missing reference error", err)
	}
}

type failing struct{ calls int }

func (f *failing) Fuse(ctx context.Context, date time.Time, coarseDir, fineDir, outDir string, p fusion.Params) error {
	f.calls++
	return errors.New("boom")
}

func TestFuseContinuesAfterFailure(t *testing.T) {
	store := raster.NewMemStore()
	var log bytes.Buffer
	c := newContext(t, store, &log)
	if err := store.Write(c.Layout.ReflFile(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)), refl()); err != nil {
		t.Fatal(err)
	}
	f := &failing{}
	c.Fusion = f

	sum, err := NewOpFuse("2024-06-01/2024-06-02").Fuse(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if f.calls != 2 || sum.Failed != 2 {
		t.Errorf("got %d calls and %+v, want 2 failures", f.calls, sum)
	}
	if !strings.Contains(log.String(), "[FUSION] Error processing 20240602") {
		t.Errorf("missing error log line in\n%s", log.String())
	}
}

func TestFuseCancelled(t *testing.T) {
	store := raster.NewMemStore()
	var log bytes.Buffer
	c := newContext(t, store, &log)
	if err := store.Write(c.Layout.ReflFile(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)), refl()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewOpFuse("").Fuse(ctx, c); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
