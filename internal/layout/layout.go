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


// Package layout names the directories and files of a site season under the data root.
//
//	<root>/<site>/<season>/
//	  raw/{s2,s3}/<date>_<n>.geotiff
//	  raw/ndvi/{s2,s3}/
//	  prepared/s2/S2A_MSIL2A_<date>_{REFL,DIST_CLOUD}.tif
//	  prepared/s3/composite_<date>.tif
//	  prepared/fusion/REFL_<date>.tif
//	  prepared/ndvi/{s2,s3,fusion}/<date>_ndvi.geotiff
//	  processed/{s2,s3,fusion}/<date>_0.geotiff
//	  clouds.json
//
// With the fits format, all raster suffixes become .fits.
package layout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mlnoga/geofuse/internal/dates"
)

// Raster file formats
const (
	FormatGeoTIFF = "geotiff"
	FormatFITS    = "fits"
)

// Product families and sensors, used as directory names
const (
	S2     = "s2"
	S3     = "s3"
	Fusion = "fusion"
)

// Underscore token positions of the date in product file names
const (
	RawDatePos       = 0
	ReflDatePos      = 2
	CompositeDatePos = 1
	FusedDatePos     = 1
)

// Product name of fine reflectances and fused outputs
const ProductREFL = "REFL"

// File system layout of one site season
type Layout struct {
	Root      string // <dataRoot>/<site>/<season>
	Suffix    string // Suffix of prepared rasters
	RawSuffix string // Suffix of raw, NDVI and processed rasters
}

func New(dataRoot, site string, season int, format string) (Layout, error) {
	l := Layout{Root: filepath.Join(dataRoot, site, strconv.Itoa(season))}
	switch format {
	case FormatGeoTIFF, "":
		l.Suffix, l.RawSuffix = ".tif", ".geotiff"
	case FormatFITS:
		l.Suffix, l.RawSuffix = ".fits", ".fits"
	default:
		return l, fmt.Errorf("unknown raster format '%s'", format)
	}
	return l, nil
}

func (l Layout) RawDir(sensor string) string { return filepath.Join(l.Root, "raw", sensor) }
func (l Layout) RawNDVIDir(sensor string) string { return filepath.Join(l.Root, "raw", "ndvi", sensor) }
func (l Layout) PreparedDir(kind string) string { return filepath.Join(l.Root, "prepared", kind) }
func (l Layout) PreparedNDVIDir(kind string) string { return filepath.Join(l.Root, "prepared", "ndvi", kind) }
func (l Layout) ProcessedDir(kind string) string { return filepath.Join(l.Root, "processed", kind) }

func (l Layout) CloudsFile() string { return filepath.Join(l.Root, "clouds.json") }
func (l Layout) LogFile() string { return filepath.Join(l.Root, "geofuse.log") }

// Time series file of an NDVI directory
func TimeseriesFile(dir string) string { return filepath.Join(dir, "timeseries.json") }

func (l Layout) RawGlob(sensor string) string {
	return filepath.Join(l.RawDir(sensor), "*"+l.RawSuffix)
}

func (l Layout) ReflFile(d time.Time) string {
	return filepath.Join(l.PreparedDir(S2), "S2A_MSIL2A_"+dates.Token(d)+"_REFL"+l.Suffix)
}

func (l Layout) ReflGlob() string {
	return filepath.Join(l.PreparedDir(S2), "S2A_MSIL2A_*_REFL"+l.Suffix)
}

func (l Layout) DistCloudFile(d time.Time) string {
	return filepath.Join(l.PreparedDir(S2), "S2A_MSIL2A_"+dates.Token(d)+"_DIST_CLOUD"+l.Suffix)
}

func (l Layout) DistCloudGlob() string {
	return filepath.Join(l.PreparedDir(S2), "S2A_MSIL2A_*_DIST_CLOUD"+l.Suffix)
}

func (l Layout) CompositeFile(d time.Time) string {
	return filepath.Join(l.PreparedDir(S3), "composite_"+dates.Token(d)+l.Suffix)
}

func (l Layout) CompositeGlob() string {
	return filepath.Join(l.PreparedDir(S3), "composite_*"+l.Suffix)
}

func (l Layout) FusedFile(d time.Time) string {
	return FusedFile(l.PreparedDir(Fusion), ProductREFL, d, l.Suffix)
}

func (l Layout) FusedGlob() string {
	return filepath.Join(l.PreparedDir(Fusion), ProductREFL+"_*"+l.Suffix)
}

// Output file of the fusion operation for the given product and date
func FusedFile(dir, product string, d time.Time, suffix string) string {
	return filepath.Join(dir, product+"_"+dates.Token(d)+suffix)
}

// Cropped output of the given family
func (l Layout) ProcessedFile(kind string, d time.Time) string {
	return filepath.Join(l.ProcessedDir(kind), dates.Token(d)+"_0"+l.RawSuffix)
}

// NDVI of a raw acquisition keeps the raw file name
func (l Layout) RawNDVIFile(sensor, rawFile string) string {
	return filepath.Join(l.RawNDVIDir(sensor), filepath.Base(rawFile))
}

// NDVI of a prepared product of the given family
func (l Layout) PreparedNDVIFile(kind string, d time.Time) string {
	return filepath.Join(l.PreparedNDVIDir(kind), dates.Token(d)+"_ndvi"+l.RawSuffix)
}

// Glob for NDVI rasters in a directory
func (l Layout) NDVIGlob(dir string) string {
	return filepath.Join(dir, "*"+l.RawSuffix)
}
