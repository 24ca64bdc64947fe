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


package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mlnoga/geofuse/internal/clouds"
	"github.com/mlnoga/geofuse/internal/layout"
	"github.com/mlnoga/geofuse/internal/ndvi"
	"github.com/mlnoga/geofuse/internal/ops"
)

// Time series sources
const (
	SourceRaw      = "raw"
	SourcePrepared = "prepared"
)

// Index directories of the given source, keyed by kind
func SeriesDirs(l layout.Layout, source string) (map[string]string, error) {
	switch source {
	case SourceRaw:
		return map[string]string{
			layout.S2: l.RawNDVIDir(layout.S2),
			layout.S3: l.RawNDVIDir(layout.S3),
		}, nil
	case SourcePrepared:
		return map[string]string{
			layout.S2:     l.PreparedNDVIDir(layout.S2),
			layout.S3:     l.PreparedNDVIDir(layout.S3),
			layout.Fusion: l.PreparedNDVIDir(layout.Fusion),
		}, nil
	}
	return nil, fmt.Errorf("unknown time series source '%s'", source)
}

// Samples the index rasters of every directory of the source at the site, and writes one
// timeseries.json per directory
type OpTimeseries struct {
	ops.OpBase
	Source string `json:"source"`
}

var _ ops.Operator = (*OpTimeseries)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpTimeseries(SourceRaw) }) } // register the operator for JSON decoding

func NewOpTimeseries(source string) *OpTimeseries {
	return &OpTimeseries{OpBase: ops.OpBase{Type: "timeseries", Active: true}, Source: source}
}

func (op *OpTimeseries) Run(ctx context.Context, c *ops.Context) error {
	dirs, err := SeriesDirs(c.Layout, op.Source)
	if err != nil {
		return err
	}
	site := c.Config.SitePosition()
	for _, kind := range []string{layout.S2, layout.S3, layout.Fusion} {
		dir, ok := dirs[kind]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		files, err := c.Store.Glob(c.Layout.NDVIGlob(dir))
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintf(c.Log, "[TIMESERIES] No index rasters in %s\n", dir)
			continue
		}
		records := ndvi.Series(c.Store, files, site, c.Log)
		out := layout.TimeseriesFile(dir)
		if err := ndvi.SaveSeries(out, records); err != nil {
			return err
		}
		fmt.Fprintf(c.Log, "[TIMESERIES] Saved %d records to %s\n", len(records), out)
	}
	return nil
}

// Flags cloudy acquisitions from the raw time series and writes the exclusion set
type OpClouds struct {
	ops.OpBase
}

var _ ops.Operator = (*OpClouds)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpClouds() }) } // register the operator for JSON decoding

func NewOpClouds() *OpClouds {
	return &OpClouds{OpBase: ops.OpBase{Type: "clouds", Active: true}}
}

func (op *OpClouds) Run(ctx context.Context, c *ops.Context) error {
	_, err := op.Detect(c)
	return err
}

// Runs the flagger and saves the resulting set. Sensors without a series are logged and left empty
func (op *OpClouds) Detect(c *ops.Context) (clouds.Set, error) {
	series := map[string][]ndvi.Record{}
	for _, sensor := range []string{layout.S2, layout.S3} {
		fileName := layout.TimeseriesFile(c.Layout.RawNDVIDir(sensor))
		records, err := ndvi.LoadSeries(fileName)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(c.Log, "[CLOUDS] No time series %s, run ndvi first\n", fileName)
			continue
		} else if err != nil {
			return nil, err
		}
		series[sensor] = records
	}
	if len(series) == 0 {
		return nil, &ops.MissingReferenceError{What: "raw NDVI time series", Pattern: filepath.Join(c.Layout.Root, "raw", "ndvi", "*", "timeseries.json")}
	}
	set := clouds.Detect(series, c.Config.Clouds)
	for _, sensor := range []string{clouds.S2, clouds.S3} {
		if _, ok := set[sensor]; !ok {
			set[sensor] = []string{}
		}
		fmt.Fprintf(c.Log, "[CLOUDS] %s: %d of %d acquisitions flagged\n", sensor, len(set[sensor]), len(series[sensor]))
	}
	if err := clouds.Save(c.Layout.CloudsFile(), set); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "[CLOUDS] Saved %s\n", c.Layout.CloudsFile())
	return set, nil
}
