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


// Package ops holds the execution context, the bounded parallel runner and the
// polymorphic operator framework the pipeline stages plug into.
package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	"github.com/mlnoga/geofuse/internal/config"
	"github.com/mlnoga/geofuse/internal/fusion"
	"github.com/mlnoga/geofuse/internal/layout"
	"github.com/mlnoga/geofuse/internal/mask"
	"github.com/mlnoga/geofuse/internal/raster"
)

// Receives progress of per-date loops. Implementations must be safe for concurrent Step calls
type Progress interface {
	Start(stage string, total int)
	Step()
	Finish()
}

// An execution context for operators
type Context struct {
	Log        io.Writer
	MemoryMB   int // memory.TotalMemory()/1024/1024
	BudgetMB   int // MemoryMB*7/10
	MaxThreads int `json:"maxThreads"`

	Config   *config.Config
	Layout   layout.Layout
	Store    raster.Store
	Fusion   fusion.Strategy
	Mask     mask.Ops
	Progress Progress // may be nil
}

// Creates a context for the given configuration. Uses the built-in stub fusion unless the
// configuration names a command
func NewContext(log io.Writer, cfg *config.Config, store raster.Store) (*Context, error) {
	l, err := cfg.Layout()
	if err != nil {
		return nil, err
	}
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	c := &Context{
		Log:        log,
		MemoryMB:   memoryMB,
		BudgetMB:   memoryMB * 7 / 10,
		MaxThreads: DefaultThreads(),
		Config:     cfg,
		Layout:     l,
		Store:      store,
		Mask:       mask.Exact{},
		Fusion:     fusion.Stub{Store: store, Suffix: l.Suffix},
	}
	if cfg.MaxThreads > 0 {
		c.MaxThreads = cfg.MaxThreads
	}
	if cfg.Fusion.Command != "" {
		args, err := fusion.ParseCommand(cfg.Fusion.Command)
		if err != nil {
			return nil, err
		}
		c.Fusion = fusion.Exec{Command: args, Log: log}
	}
	return c, nil
}

// GOMAXPROCS, bounded by the logical cores reported by the CPU if known
func DefaultThreads() int {
	n := runtime.GOMAXPROCS(0)
	if lc := cpuid.CPU.LogicalCores; lc > 0 && lc < n {
		n = lc
	}
	return n
}

// Estimated memory footprint in MB of a unit holding the given number of float32 band copies
func EstimateMB(width, height, bandCopies int) int {
	mb := int((int64(width) * int64(height) * int64(bandCopies) * 4) >> 20)
	if mb < 1 {
		mb = 1
	}
	return mb
}

// Number of units to run concurrently, given the estimated footprint of one unit
func (c *Context) Threads(unitMB int) int {
	n := c.MaxThreads
	if c.BudgetMB > 0 && unitMB > 0 {
		if byMem := c.BudgetMB / unitMB; byMem < n {
			n = byMem
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Runs the units of a stage with progress reporting, see RunAll
func (c *Context) RunStage(ctx context.Context, stage string, units []Unit, unitMB int) error {
	if c.Progress == nil || len(units) == 0 {
		return RunAll(ctx, units, c.Threads(unitMB))
	}
	c.Progress.Start(stage, len(units))
	defer c.Progress.Finish()
	wrapped := make([]Unit, len(units))
	for i, u := range units {
		u := u
		wrapped[i] = func() error {
			defer c.Progress.Step()
			return u()
		}
	}
	return RunAll(ctx, wrapped, c.Threads(unitMB))
}

// A unit of work, typically all processing for one date
type Unit func() error

// Runs all units with the given concurrency limit. Stops submitting units once the context is
// cancelled, waits for running units, and returns all errors joined, including the
// cancellation cause
func RunAll(ctx context.Context, units []Unit, maxThreads int) error {
	if len(units) == 0 {
		return nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(units))
	submitted := 0
	for _, unit := range units {
		if ctx.Err() != nil {
			break
		}
		limiter <- true
		submitted++
		go func(theUnit Unit) {
			defer func() { <-limiter }()
			errs <- theUnit()
		}(unit)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	var all []error
	for i := 0; i < submitted; i++ { // collect errors
		if e := <-errs; e != nil {
			all = append(all, e)
		}
	}
	if submitted < len(units) {
		all = append(all, ctx.Err())
	}
	return errors.Join(all...)
}

// Raised when no usable reference raster establishes a grid. Aborts the season run
type MissingReferenceError struct {
	What    string
	Pattern string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("no %s found matching %s", e.What, e.Pattern)
}

// A pipeline stage operating on a site season
type Operator interface {
	GetType() string
	IsActive() bool
	Run(ctx context.Context, c *Context) error
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// Applies a sequence of operators in order. Stops at the first error
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	err := json.Unmarshal(b, (*alias)(op))
	if err != nil {
		return err
	}

	for _, raw := range op.StepsRaw {
		var step OpBase
		err = json.Unmarshal(raw, &step)
		if err != nil {
			return err
		}

		factory := GetOperatorFactory(step.Type)
		if factory == nil {
			return fmt.Errorf("unknown operator type '%s' in raw JSON message '%s'", step.Type, string(raw))
		}
		i := factory()
		err = json.Unmarshal(raw, i)
		if err != nil {
			return err
		}
		op.Steps = append(op.Steps, i)
	}
	op.StepsRaw = nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
	op.Active = len(op.Steps) > 0
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ", \"active\":%v, \"steps\":", op.Active)
	if op.Steps == nil {
		buf.WriteString("[]")
	} else {
		inner, err = json.Marshal(op.Steps)
		if err != nil {
			return nil, err
		}
		buf.Write(inner)
	}
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) Run(ctx context.Context, c *Context) error {
	for _, step := range op.Steps {
		if !step.IsActive() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Run(ctx, c); err != nil {
			return fmt.Errorf("%s: %w", step.GetType(), err)
		}
	}
	return nil
}
