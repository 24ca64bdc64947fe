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


package fits

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mlnoga/geofuse/internal/raster"
)

// Writes a raster to a file with given filename, compressing with gzip if the name ends in .gz or .gzip.
// Creates/overwrites the file if necessary
func WriteFile(fileName string, r *raster.Raster) error {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, bufLen)
	var w io.Writer = bw
	var gz *gzip.Writer
	lower := strings.ToLower(fileName)
	if strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".gzip") {
		gz = gzip.NewWriter(bw)
		w = gz
	}
	if err := Write(w, r); err != nil {
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Writes a raster as a float32 FITS cube to an io.Writer. NaNs are kept
func Write(w io.Writer, r *raster.Raster) error {
	if err := r.Validate(); err != nil {
		return err
	}
	hw := headerWriter{}
	hw.Bool("SIMPLE", true, "FITS standard 4.0")
	hw.Int("BITPIX", -32, "32-bit floating point")
	naxis := int64(3)
	if len(r.Bands) == 1 {
		naxis = 2
	}
	hw.Int("NAXIS", naxis, "[1] Number of axis")
	hw.Int("NAXIS1", int64(r.Width), "[1] Columns")
	hw.Int("NAXIS2", int64(r.Height), "[1] Rows")
	if naxis == 3 {
		hw.Int("NAXIS3", int64(len(r.Bands)), "[1] Bands")
	}
	gt := r.Transform.GeoTransform()
	for i, v := range gt {
		hw.Float("GT"+strconv.Itoa(i+1), v, "GDAL geotransform")
	}
	if r.CRS != "" {
		hw.String("CRS", r.CRS, "Coordinate reference")
	}
	if r.HasNoData {
		hw.Float("NODATA", r.NoData, "No-data value")
	}
	if _, err := io.WriteString(w, hw.End()); err != nil {
		return err
	}

	written := 0
	for _, band := range r.Bands {
		if err := writeFloat32Array(w, band); err != nil {
			return err
		}
		written += 4 * len(band)
	}

	// pad the data unit to a full block
	if rem := written % fitsBlockSize; rem > 0 {
		_, err := w.Write(make([]byte, fitsBlockSize-rem))
		return err
	}
	return nil
}

// Writes FITS binary body data in network byte order
func writeFloat32Array(w io.Writer, data []float32) error {
	buf := make([]byte, bufLen)
	for block := 0; block < len(data); block += (bufLen >> 2) {
		size := len(data) - block
		if size > (bufLen >> 2) {
			size = (bufLen >> 2)
		}
		for offset := 0; offset < size; offset++ {
			binary.BigEndian.PutUint32(buf[offset<<2:], math.Float32bits(data[block+offset]))
		}
		if _, err := w.Write(buf[:(size << 2)]); err != nil {
			return err
		}
	}
	return nil
}
