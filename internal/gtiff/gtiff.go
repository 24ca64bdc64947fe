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


// Package gtiff reads and writes float32 GeoTIFF rasters through GDAL.
package gtiff

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/godal"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
)

// Suffixes handled by the GeoTIFF codec
var Suffixes = []string{".tif", ".tiff", ".geotiff"}

// Creation options of written files
var CreationOptions = []string{"COMPRESS=LZW", "TILED=YES", "BIGTIFF=IF_SAFER"}

// Raster codec for GeoTIFF files
type Codec struct{}

func (Codec) Name() string { return "GeoTIFF" }

// Registers GDAL drivers and the GeoTIFF codec with the given store
func Register(s *raster.SuffixStore) {
	godal.RegisterAll()
	s.Register(Codec{}, Suffixes...)
}

// Treats GDAL warnings as non-fatal
var quietWarnings = godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
	if ec == godal.CE_Warning {
		return nil
	}
	return fmt.Errorf("GDAL error %d: %s", code, msg)
})

// Reads all bands of the given file as float32
func (Codec) ReadFile(fileName string) (*raster.Raster, error) {
	ds, err := godal.Open(fileName, godal.RasterOnly(), quietWarnings)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fileName, err)
	}
	defer ds.Close()

	st := ds.Structure()
	width, height := st.SizeX, st.SizeY
	gt, err := ds.GeoTransform()
	if err != nil {
		// rasters without georeferencing read with pixel coordinates
		gt = [6]float64{0, 1, 0, 0, 0, 1}
	}
	r := raster.New(width, height, 0, grid.FromGeoTransform(gt), crsOf(ds))
	r.FileName = fileName

	for i, band := range ds.Bands() {
		data := make([]float32, width*height)
		if err := band.Read(0, 0, data, width, height); err != nil {
			return nil, fmt.Errorf("read %s band %d: %w", fileName, i+1, err)
		}
		r.Bands = append(r.Bands, data)
		if i == 0 {
			if nd, ok := band.NoData(); ok {
				r.SetNoData(nd)
			}
		}
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return r, nil
}

// Returns "EPSG:<code>" if the dataset's reference system has an EPSG authority, its WKT otherwise
func crsOf(ds *godal.Dataset) string {
	sr := ds.SpatialRef()
	if sr == nil {
		return ""
	}
	defer sr.Close()
	if strings.EqualFold(sr.AuthorityName(""), "EPSG") {
		if code := sr.AuthorityCode(""); code != "" {
			return "EPSG:" + code
		}
	}
	wkt, err := sr.WKT()
	if err != nil {
		return ""
	}
	return wkt
}

// Writes all bands as float32, with transform, reference system and no-data value
func (Codec) WriteFile(fileName string, r *raster.Raster) error {
	ds, err := godal.Create(godal.GTiff, fileName, r.NumBands(), godal.Float32, r.Width, r.Height,
		godal.CreationOption(CreationOptions...), quietWarnings)
	if err != nil {
		return fmt.Errorf("create %s: %w", fileName, err)
	}
	if err := write(ds, r); err != nil {
		ds.Close()
		return fmt.Errorf("write %s: %w", fileName, err)
	}
	return ds.Close()
}

func write(ds *godal.Dataset, r *raster.Raster) error {
	if err := ds.SetGeoTransform(r.Transform.GeoTransform()); err != nil {
		return err
	}
	if r.CRS != "" {
		sr, err := godal.NewSpatialRef(r.CRS)
		if err != nil {
			return fmt.Errorf("reference system %s: %w", r.CRS, err)
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return err
		}
	}
	for i, band := range ds.Bands() {
		if r.HasNoData {
			if err := band.SetNoData(r.NoData); err != nil {
				return err
			}
		}
		if err := band.Write(0, 0, r.Bands[i], r.Width, r.Height); err != nil {
			return err
		}
	}
	return nil
}
