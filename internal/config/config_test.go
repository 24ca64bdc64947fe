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


package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultsNeedSite(t *testing.T) {
	c := Default()
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "site") {
		t.Errorf("got %v want site error", err)
	}
	c.Site = "harvard"
	if err := c.Validate(); err != nil {
		t.Errorf("defaults with site invalid: %v", err)
	}
}

func TestLoadYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlFile := filepath.Join(dir, "site.yaml")
	yamlText := `site: harvard
lat: 42.5378
lon: -72.1715
season: 2024
ratio: 21
clouds:
  windowDays: 10
fusion:
  maxDays: 20
  command: efast --date {date}
`
	if err := os.WriteFile(yamlFile, []byte(yamlText), 0o644); err != nil {
		t.Fatal(err)
	}
	c := Default()
	if err := c.LoadFile(yamlFile); err != nil {
		t.Fatal(err)
	}
	if c.Site != "harvard" || c.Season != 2024 || c.Clouds.WindowDays != 10 || c.Clouds.MinMembers != 3 {
		t.Errorf("unexpected config %s", c)
	}
	if c.Fusion.MaxDays != 20 || c.Fusion.Product != "REFL" || c.Fusion.Command != "efast --date {date}" {
		t.Errorf("unexpected fusion settings %+v", c.Fusion)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("invalid: %v", err)
	}
	if c.Range() != "2024-01-01/2024-12-31" {
		t.Errorf("got range %s", c.Range())
	}

	jsonFile := filepath.Join(dir, "site.json")
	if err := os.WriteFile(jsonFile, []byte(`{"site":"konza","format":"fits","dateRange":"2024-04-01/2024-09-30"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfig, jsonFile)
	t.Setenv(EnvDataRoot, "/srv/geofuse")
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.Site, want.Format, want.DateRange, want.DataRoot = "konza", "fits", "2024-04-01/2024-09-30", "/srv/geofuse"
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"fractional ratio", func(c *Config) { c.Ratio = 20.5 }},
		{"zero ratio", func(c *Config) { c.Ratio = 0 }},
		{"negative threshold", func(c *Config) { c.OutlierThreshold = -1 }},
		{"zero epsilon", func(c *Config) { c.ScanEpsilon = 0 }},
		{"unknown format", func(c *Config) { c.Format = "png" }},
		{"bad range", func(c *Config) { c.DateRange = "2024-12-01/2024-01-01" }},
		{"bad kernel", func(c *Config) { c.Resampling = "lanczos" }},
		{"bad expression", func(c *Config) { c.NDVIExpression = "nir - red" }},
		{"bad latitude", func(c *Config) { c.Lat = 91 }},
	}
	for _, tc := range testCases {
		c := Default()
		c.Site = "harvard"
		tc.modify(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestUnknownSuffix(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "site.toml")
	if err := os.WriteFile(fileName, []byte("site = 'x'"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Default().LoadFile(fileName); err == nil {
		t.Errorf("expected error")
	}
}

func TestFusionParams(t *testing.T) {
	c := Default()
	c.Ratio = 15
	p := c.FusionParams()
	if p.Ratio != 15 || p.MaxDays != 30 || p.DatePosition != 2 || p.Product != "REFL" {
		t.Errorf("got %+v", p)
	}
}
