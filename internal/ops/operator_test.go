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


package ops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mlnoga/geofuse/internal/crop"
	"github.com/mlnoga/geofuse/internal/fusion"
	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
)

func TestRunAll(t *testing.T) {
	var running, peak, done int32
	units := make([]Unit, 20)
	for i := range units {
		i := i
		units[i] = func() error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			defer atomic.AddInt32(&running, -1)
			atomic.AddInt32(&done, 1)
			if i%7 == 3 {
				return fmt.Errorf("unit %d", i)
			}
			return nil
		}
	}
	err := RunAll(context.Background(), units, 3)
	if done != 20 {
		t.Errorf("ran %d units want 20", done)
	}
	if peak > 3 {
		t.Errorf("peak concurrency %d exceeds 3", peak)
	}
	if err == nil || !strings.Contains(err.Error(), "unit 3") || !strings.Contains(err.Error(), "unit 17") {
		t.Errorf("got %v", err)
	}
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var done int32
	units := make([]Unit, 10)
	for i := range units {
		units[i] = func() error {
			if atomic.AddInt32(&done, 1) == 1 {
				cancel()
			}
			return nil
		}
	}
	err := RunAll(ctx, units, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v want context.Canceled", err)
	}
	if done == 10 {
		t.Errorf("all units ran despite cancellation")
	}
}

func TestIsolate(t *testing.T) {
	var log bytes.Buffer
	c := &Context{Log: &log}
	perDate := []error{
		&crop.EmptyIntersectionError{Reason: "no valid row"},
		&fusion.FusionOperationError{Err: errors.New("exit 1")},
		fmt.Errorf("open: %w", fs.ErrNotExist),
	}
	for _, err := range perDate {
		if got := c.Isolate("TEST", "x", err); got != nil {
			t.Errorf("%v: got %v want nil", err, got)
		}
	}
	if strings.Count(log.String(), "[TEST] Error processing x: ") != len(perDate) {
		t.Errorf("got log\n%s", log.String())
	}
	if err := c.Isolate("TEST", "x", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
	fatal := errors.New("disk full")
	if err := c.Isolate("TEST", "x", fatal); !errors.Is(err, fatal) {
		t.Errorf("got %v", err)
	}
	if c.Isolate("TEST", "x", nil) != nil {
		t.Errorf("nil error not passed through")
	}
}

func TestThreads(t *testing.T) {
	c := &Context{MaxThreads: 8, BudgetMB: 1000}
	tests := []struct {
		unitMB, want int
	}{
		{0, 8}, {10, 8}, {200, 5}, {5000, 1},
	}
	for _, test := range tests {
		if got := c.Threads(test.unitMB); got != test.want {
			t.Errorf("Threads(%d) = %d want %d", test.unitMB, got, test.want)
		}
	}
	if got := EstimateMB(1024, 1024, 4); got != 16 {
		t.Errorf("EstimateMB = %d want 16", got)
	}
}

func TestGlobExcludes(t *testing.T) {
	store := raster.NewMemStore()
	r := raster.New(1, 1, 1, grid.IdentityTransform(), "EPSG:32633")
	for _, name := range []string{"raw/a_0.tif", "raw/b_0.tif", "raw/c_0.tif"} {
		if err := store.Write(name, r); err != nil {
			t.Fatal(err)
		}
	}
	c := &Context{Store: store}
	got, err := c.Glob("raw/*.tif", func(name string) bool { return name == "b_0.tif" })
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "raw/a_0.tif" || got[1] != "raw/c_0.tif" {
		t.Errorf("got %v", got)
	}
}

type countingProgress struct{ started, steps, finished int32 }

func (p *countingProgress) Start(stage string, total int) { atomic.AddInt32(&p.started, 1) }
func (p *countingProgress) Step()                         { atomic.AddInt32(&p.steps, 1) }
func (p *countingProgress) Finish()                       { atomic.AddInt32(&p.finished, 1) }

func TestRunStageProgress(t *testing.T) {
	p := &countingProgress{}
	c := &Context{MaxThreads: 2, Progress: p}
	units := []Unit{func() error { return nil }, func() error { return nil }, func() error { return nil }}
	if err := c.RunStage(context.Background(), "test", units, 1); err != nil {
		t.Fatal(err)
	}
	if p.started != 1 || p.steps != 3 || p.finished != 1 {
		t.Errorf("got %+v", *p)
	}
}
