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


// Package clouds flags cloud-covered acquisitions from NDVI time series using a
// sliding seasonal window, and persists the resulting exclusion sets.
package clouds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/mlnoga/geofuse/internal/dates"
	"github.com/mlnoga/geofuse/internal/ndvi"
)

// Sensor names used as keys of the exclusion set
const (
	S2 = "s2"
	S3 = "s3"
)

// One NDVI observation of an acquisition
type Sample struct {
	Date     time.Time
	FileName string
	Value    float64
}

// Flagger parameters
type Params struct {
	WindowDays int     `json:"windowDays" yaml:"windowDays"` // Half window in days, inclusive
	MinMembers int     `json:"minMembers" yaml:"minMembers"` // Minimum samples in the window, including the sample itself
	Drop       float64 `json:"drop"       yaml:"drop"`       // Minimum drop below the window maximum
	Ceiling    float64 `json:"ceiling"    yaml:"ceiling"`    // Flagged values must be below this
}

func DefaultParams() Params {
	return Params{WindowDays: 14, MinMembers: 3, Drop: 0.15, Ceiling: 0.3}
}

func (p Params) Validate() error {
	if p.WindowDays < 0 {
		return fmt.Errorf("cloud window %d days must not be negative", p.WindowDays)
	}
	if p.MinMembers < 1 {
		return fmt.Errorf("cloud window needs at least one member, got %d", p.MinMembers)
	}
	if p.Drop <= 0 || p.Ceiling <= 0 {
		return fmt.Errorf("cloud drop %g and ceiling %g must be positive", p.Drop, p.Ceiling)
	}
	return nil
}

// Returns the file names of samples considered cloud-covered, in input order. A sample is flagged
// if its window holds at least MinMembers samples, and its value lies more than Drop below the
// window maximum and below Ceiling
func Flag(samples []Sample, p Params) []string {
	var flagged []string
	window := make([]float64, 0, len(samples))
	for _, s := range samples {
		window = window[:0]
		for _, o := range samples {
			if dates.DaysBetween(s.Date, o.Date) <= p.WindowDays {
				window = append(window, o.Value)
			}
		}
		if len(window) < p.MinMembers {
			continue
		}
		if s.Value < floats.Max(window)-p.Drop && s.Value < p.Ceiling {
			flagged = append(flagged, s.FileName)
		}
	}
	return flagged
}

// Converts records to samples, dropping records without a value or with an unparseable date
func SamplesFromSeries(records []ndvi.Record) []Sample {
	samples := make([]Sample, 0, len(records))
	for _, r := range records {
		if r.NDVI == nil {
			continue
		}
		d, err := ndvi.ParseRecordDate(r.Date)
		if err != nil {
			continue
		}
		samples = append(samples, Sample{Date: d, FileName: r.FileName, Value: *r.NDVI})
	}
	return samples
}

// Sensor name to excluded file names
type Set map[string][]string

func NewSet() Set {
	return Set{S2: []string{}, S3: []string{}}
}

// True if the named file of the given sensor is excluded
func (s Set) Excluded(sensor, fileName string) bool {
	base := filepath.Base(fileName)
	for _, f := range s[sensor] {
		if f == base {
			return true
		}
	}
	return false
}

// Runs the flagger over the series of every sensor
func Detect(series map[string][]ndvi.Record, p Params) Set {
	set := NewSet()
	sensors := make([]string, 0, len(series))
	for sensor := range series {
		sensors = append(sensors, sensor)
	}
	sort.Strings(sensors)
	for _, sensor := range sensors {
		flagged := Flag(SamplesFromSeries(series[sensor]), p)
		if flagged == nil {
			flagged = []string{}
		}
		set[sensor] = flagged
	}
	return set
}

// Loads an exclusion set. A missing file yields an empty set
func Load(fileName string) (Set, error) {
	data, err := os.ReadFile(fileName)
	if errors.Is(err, os.ErrNotExist) {
		return NewSet(), nil
	} else if err != nil {
		return nil, err
	}
	set := NewSet()
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", fileName, err)
	}
	return set, nil
}

// Saves an exclusion set as indented JSON, creating parent directories
func Save(fileName string, set Set) error {
	if err := os.MkdirAll(filepath.Dir(fileName), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fileName, data, 0o644)
}
