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


package reproject

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"

	"github.com/mlnoga/geofuse/internal/grid"
)

// Maps a coordinate pair from one reference system into another
type Transformer func(x, y float64) (float64, float64, error)

// Identity transformation
func identity(x, y float64) (float64, float64, error) { return x, y, nil }

const webMercator = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"

// Returns the PROJ4 definition for well-known EPSG codes, or the trimmed input otherwise.
// Accepts "EPSG:nnnn" case-insensitively
func Normalize(crs string) string {
	crs = strings.TrimSpace(crs)
	if len(crs) < 5 || !strings.EqualFold(crs[:5], "EPSG:") {
		return crs
	}
	code, err := strconv.Atoi(strings.TrimSpace(crs[5:]))
	if err != nil {
		return crs
	}
	switch {
	case code == 4326:
		return "+proj=longlat +datum=WGS84 +no_defs"
	case code == 3857 || code == 900913:
		return webMercator
	case code > 32600 && code <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600)
	case code > 32700 && code <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", code-32700)
	case code >= 25828 && code <= 25838:
		return fmt.Sprintf("+proj=utm +zone=%d +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs", code-25800)
	}
	return crs
}

// Parses a CRS given as EPSG shortcut, PROJ4 or WKT string
func ParseCRS(crs string) (*proj.SR, error) {
	sr, err := proj.Parse(Normalize(crs))
	if err != nil {
		return nil, fmt.Errorf("parsing CRS %q: %w", crs, err)
	}
	return sr, nil
}

// Returns a transformer from coordinates in the source CRS into the destination CRS.
// Identical CRS definitions yield the identity. Exactly one empty CRS is an error, as is a
// transformer that fails or yields non-finite coordinates for the trial point, given in the
// source CRS
func NewTransformer(srcCRS, dstCRS string, trial grid.Point) (Transformer, error) {
	src, dst := Normalize(srcCRS), Normalize(dstCRS)
	if src == dst {
		return identity, nil
	}
	if src == "" || dst == "" {
		return nil, &ReprojectionError{SrcCRS: srcCRS, DstCRS: dstCRS, Err: fmt.Errorf("cannot relate a georeferenced raster to one without CRS")}
	}
	srcSR, err := ParseCRS(srcCRS)
	if err != nil {
		return nil, &ReprojectionError{SrcCRS: srcCRS, DstCRS: dstCRS, Err: err}
	}
	dstSR, err := ParseCRS(dstCRS)
	if err != nil {
		return nil, &ReprojectionError{SrcCRS: srcCRS, DstCRS: dstCRS, Err: err}
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, &ReprojectionError{SrcCRS: srcCRS, DstCRS: dstCRS, Err: err}
	}
	if t == nil { // equivalent definitions
		return identity, nil
	}
	x, y, err := t(trial.X, trial.Y)
	if err == nil && !finite(x, y) {
		err = fmt.Errorf("non-finite result %g,%g", x, y)
	}
	if err != nil {
		return nil, &ReprojectionError{SrcCRS: srcCRS, DstCRS: dstCRS, Err: fmt.Errorf("transforming %v: %w", trial, err)}
	}
	return Transformer(t), nil
}

func finite(x, y float64) bool {
	return !math.IsNaN(x) && !math.IsNaN(y) && !math.IsInf(x, 0) && !math.IsInf(y, 0)
}
