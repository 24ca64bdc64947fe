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


// Package config holds the settings of a season run, loaded from JSON or YAML
// files, the environment and command line flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mlnoga/geofuse/internal/clouds"
	"github.com/mlnoga/geofuse/internal/composite"
	"github.com/mlnoga/geofuse/internal/crop"
	"github.com/mlnoga/geofuse/internal/dates"
	"github.com/mlnoga/geofuse/internal/fusion"
	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/layout"
	"github.com/mlnoga/geofuse/internal/ndvi"
	"github.com/mlnoga/geofuse/internal/reproject"
)

// Environment variables
const (
	EnvConfig   = "GEOFUSE_CONFIG"
	EnvDataRoot = "GEOFUSE_DATA_ROOT"
)

// Settings of the external fusion operation
type Fusion struct {
	Product       string  `json:"product"       yaml:"product"`
	MaxDays       int     `json:"maxDays"       yaml:"maxDays"`
	DatePosition  int     `json:"datePosition"  yaml:"datePosition"`
	MinImportance float64 `json:"minImportance" yaml:"minImportance"`
	Command       string  `json:"command"       yaml:"command"` // Empty selects the built-in stub
}

type Config struct {
	DataRoot  string  `json:"dataRoot"  yaml:"dataRoot"`
	Site      string  `json:"site"      yaml:"site"`
	Lat       float64 `json:"lat"       yaml:"lat"`
	Lon       float64 `json:"lon"       yaml:"lon"`
	Season    int     `json:"season"    yaml:"season"`
	DateRange string  `json:"dateRange" yaml:"dateRange"` // start/end, defaults to the whole season

	Ratio            float64 `json:"ratio"            yaml:"ratio"`
	OutlierThreshold float64 `json:"outlierThreshold" yaml:"outlierThreshold"`
	ScanEpsilon      float64 `json:"scanEpsilon"      yaml:"scanEpsilon"`
	S2Scale          float64 `json:"s2Scale"          yaml:"s2Scale"`
	Resampling       string  `json:"resampling"       yaml:"resampling"`

	Clouds clouds.Params `json:"clouds" yaml:"clouds"`

	Format     string `json:"format"     yaml:"format"`
	MaxThreads int    `json:"maxThreads" yaml:"maxThreads"` // 0 for automatic
	Preview    bool   `json:"preview"    yaml:"preview"`

	Fusion         Fusion `json:"fusion"         yaml:"fusion"`
	NDVIExpression string `json:"ndviExpression" yaml:"ndviExpression"` // Empty for the built-in NDVI
}

func Default() *Config {
	return &Config{
		DataRoot:         "data",
		Season:           time.Now().Year(),
		Ratio:            grid.DefaultRatio,
		OutlierThreshold: composite.DefaultOutlierThreshold,
		ScanEpsilon:      crop.DefaultEpsilon,
		S2Scale:          10000,
		Resampling:       reproject.Cubic.String(),
		Clouds:           clouds.DefaultParams(),
		Format:           layout.FormatGeoTIFF,
		Fusion: Fusion{
			Product:      layout.ProductREFL,
			MaxDays:      30,
			DatePosition: layout.ReflDatePos,
		},
	}
}

// Loads .env from the working directory if present, then the config file named by path
// or by GEOFUSE_CONFIG on top of the defaults. An empty path without environment variable
// yields the defaults
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	c := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := c.LoadFile(ExpandHome(path)); err != nil {
			return nil, err
		}
	}
	if root := os.Getenv(EnvDataRoot); root != "" {
		c.DataRoot = root
	}
	c.DataRoot = ExpandHome(c.DataRoot)
	return c, nil
}

// Overlays settings from a JSON or YAML file, chosen by suffix
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unknown config file type %s", path)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func (c *Config) Validate() error {
	var errs []error
	if c.Site == "" {
		errs = append(errs, errors.New("site name is required"))
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		errs = append(errs, fmt.Errorf("site position %g,%g out of range", c.Lat, c.Lon))
	}
	if _, err := grid.ParseRatio(c.Ratio); err != nil {
		errs = append(errs, err)
	}
	if c.OutlierThreshold <= 0 {
		errs = append(errs, fmt.Errorf("outlier threshold %g must be positive", c.OutlierThreshold))
	}
	if c.ScanEpsilon <= 0 {
		errs = append(errs, fmt.Errorf("scan epsilon %g must be positive", c.ScanEpsilon))
	}
	if c.S2Scale <= 0 {
		errs = append(errs, fmt.Errorf("S2 scale %g must be positive", c.S2Scale))
	}
	if _, err := reproject.ParseKernel(c.Resampling); err != nil {
		errs = append(errs, err)
	}
	if err := c.Clouds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Format != layout.FormatGeoTIFF && c.Format != layout.FormatFITS {
		errs = append(errs, fmt.Errorf("unknown raster format '%s'", c.Format))
	}
	if c.MaxThreads < 0 {
		errs = append(errs, fmt.Errorf("max threads %d must not be negative", c.MaxThreads))
	}
	if c.Fusion.MaxDays < 0 || c.Fusion.DatePosition < 0 || c.Fusion.Product == "" {
		errs = append(errs, fmt.Errorf("invalid fusion settings %+v", c.Fusion))
	}
	if _, _, err := dates.ParseRange(c.Range()); err != nil {
		errs = append(errs, err)
	}
	if c.NDVIExpression != "" {
		if _, err := ndvi.ParseExpression(c.NDVIExpression); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// The configured date range, or the whole season
func (c *Config) Range() string {
	if c.DateRange != "" {
		return c.DateRange
	}
	return dates.SeasonRange(c.Season)
}

func (c *Config) Layout() (layout.Layout, error) {
	return layout.New(c.DataRoot, c.Site, c.Season, c.Format)
}

func (c *Config) SitePosition() ndvi.Site {
	return ndvi.Site{Lat: c.Lat, Lon: c.Lon}
}

// Integral ratio, assuming the config has been validated
func (c *Config) FusionParams() fusion.Params {
	r, _ := grid.ParseRatio(c.Ratio)
	return fusion.Params{
		Product:       c.Fusion.Product,
		MaxDays:       c.Fusion.MaxDays,
		DatePosition:  c.Fusion.DatePosition,
		MinImportance: c.Fusion.MinImportance,
		Ratio:         int(r),
	}
}

func (c *Config) Kernel() reproject.Kernel {
	k, err := reproject.ParseKernel(c.Resampling)
	if err != nil {
		return reproject.Cubic
	}
	return k
}

func (c *Config) String() string {
	m, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(m)
}
