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


package ndvi

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mlnoga/geofuse/internal/dates"
	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
	"github.com/mlnoga/geofuse/internal/reproject"
)

// One time series entry. A nil NDVI marks a sample that was missing or could not be read
type Record struct {
	Date     string   `json:"date"`
	FileName string   `json:"filename"`
	NDVI     *float64 `json:"ndvi"`
}

// Geographic position of a site, in degrees
type Site struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Reads band 1 at the given site. Returns false if the site lies outside the raster,
// or the value is zero, NaN or no-data
func Sample(r *raster.Raster, site Site) (float64, bool, error) {
	toRaster, err := reproject.NewTransformer("EPSG:4326", r.CRS, grid.Point{X: site.Lon, Y: site.Lat})
	if err != nil {
		return 0, false, err
	}
	x, y, err := toRaster(site.Lon, site.Lat)
	if err != nil {
		return 0, false, err
	}
	inv, err := r.Transform.Invert()
	if err != nil {
		return 0, false, err
	}
	cx, cy := inv.ApplyXY(x, y)
	col, row := int(math.Floor(cx)), int(math.Floor(cy))
	if col < 0 || row < 0 || col >= r.Width || row >= r.Height {
		return 0, false, nil
	}
	v := r.At(0, col, row)
	if v == 0 || r.IsMissing(v) {
		return 0, false, nil
	}
	return float64(v), true, nil
}

// Samples the site in every file and returns the records sorted ascending by date.
// Dates come from the first underscore token of the file name, and are written in ISO form
// if parseable. Files that fail to load are logged and recorded with a nil value
func Series(store raster.Store, files []string, site Site, logWriter io.Writer) []Record {
	records := make([]Record, 0, len(files))
	for _, f := range files {
		name := filepath.Base(f)
		rec := Record{FileName: name}
		if tok, err := dates.TokenAt(name, 0); err == nil {
			rec.Date = tok
			if d, err := dates.ParseToken(tok); err == nil {
				rec.Date = d.Format(dates.ISOLayout)
			}
		}

		r, err := store.Open(f)
		if err == nil {
			var v float64
			var ok bool
			if v, ok, err = Sample(r, site); err == nil && ok {
				rec.NDVI = &v
			}
		}
		if err != nil && logWriter != nil {
			fmt.Fprintf(logWriter, "Warning: could not sample %s: %s\n", name, err.Error())
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date < records[j].Date })
	return records
}

// Parses record dates in ISO-8601 form, with or without time and zone, or as bare date token
func ParseRecordDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, dates.ISOLayout, dates.DayLayout, dates.TokenLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable record date '%s'", s)
}

// Loads a time series. A missing file yields an error matching os.ErrNotExist
func LoadSeries(fileName string) ([]Record, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", fileName, err)
	}
	return records, nil
}

// Saves a time series as indented JSON, creating parent directories
func SaveSeries(fileName string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	if err := os.MkdirAll(filepath.Dir(fileName), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fileName, data, 0o644)
}
