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
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/raster"
)

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Reads a FITS raster from the file with the given name. Decompresses gzip if .gz or .gzip suffix is present
func ReadFile(fileName string) (*raster.Raster, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, bufLen)
	lower := strings.ToLower(fileName)
	if strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".gzip") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	res, err := Read(r)
	if err != nil {
		return nil, err
	}
	res.FileName = fileName
	return res, nil
}

// Reads a FITS raster from the given reader: primary header, then the data unit
func Read(r io.Reader) (*raster.Raster, error) {
	h := NewHeader()
	if err := h.read(r); err != nil {
		return nil, err
	}

	// check mandatory fields as per standard
	if !h.Bools["SIMPLE"] {
		return nil, fmt.Errorf("not a valid FITS file; SIMPLE=T missing in header")
	}
	delete(h.Bools, "SIMPLE")

	bitpix, err := h.PopInt("BITPIX")
	if err != nil {
		return nil, err
	}
	naxis, err := h.PopInt("NAXIS")
	if err != nil {
		return nil, err
	}
	if naxis < 2 || naxis > 3 {
		return nil, fmt.Errorf("unsupported NAXIS=%d, want 2 or 3", naxis)
	}
	naxisn := [3]int64{1, 1, 1}
	for i := int64(1); i <= naxis; i++ {
		if naxisn[i-1], err = h.PopInt(fmt.Sprintf("NAXIS%d", i)); err != nil {
			return nil, err
		}
		if naxisn[i-1] <= 0 {
			return nil, fmt.Errorf("NAXIS%d=%d must be positive", i, naxisn[i-1])
		}
	}
	width, height, bands := int(naxisn[0]), int(naxisn[1]), int(naxisn[2])

	// optional value scaling
	bzero, err := h.PopFloat("BZERO")
	if err != nil {
		bzero = 0
	}
	bscale, err := h.PopFloat("BSCALE")
	if err != nil {
		bscale = 1
	}

	// geo keys
	t := grid.IdentityTransform()
	var gt [6]float64
	hasGT := true
	for i := range gt {
		if gt[i], err = h.PopFloat(fmt.Sprintf("GT%d", i+1)); err != nil {
			hasGT = false
			break
		}
	}
	if hasGT {
		t = grid.FromGeoTransform(gt)
	}

	res := raster.New(width, height, bands, t, h.Strings["CRS"])
	if nd, err := h.PopFloat("NODATA"); err == nil {
		res.SetNoData(nd)
	}

	conv, bytesPerValue, err := converter(bitpix)
	if err != nil {
		return nil, err
	}
	for _, band := range res.Bands {
		if err := readValues(r, band, bytesPerValue, conv, bscale, bzero); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Converts big-endian bytes into a float64 value
type convertFunc func(b []byte) float64

// Returns the conversion function and value size for the given BITPIX
func converter(bitpix int64) (convertFunc, int, error) {
	switch bitpix {
	case 8:
		return func(b []byte) float64 { return float64(b[0]) }, 1, nil
	case 16:
		return func(b []byte) float64 { return float64(int16(binary.BigEndian.Uint16(b))) }, 2, nil
	case 32:
		return func(b []byte) float64 { return float64(int32(binary.BigEndian.Uint32(b))) }, 4, nil
	case 64:
		return func(b []byte) float64 { return float64(int64(binary.BigEndian.Uint64(b))) }, 8, nil
	case -32:
		return func(b []byte) float64 { return float64(math.Float32frombits(binary.BigEndian.Uint32(b))) }, 4, nil
	case -64:
		return func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) }, 8, nil
	default:
		return nil, 0, fmt.Errorf("unknown BITPIX value %d", bitpix)
	}
}

// Batched read of data of the given size and type, converting from network byte order and applying bscale and bzero
func readValues(r io.Reader, data []float32, bytesPerValue int, conv convertFunc, bscale, bzero float64) error {
	valuesPerBuf := bufLen / bytesPerValue
	buf := make([]byte, valuesPerBuf*bytesPerValue)
	for dataIndex := 0; dataIndex < len(data); {
		n := len(data) - dataIndex
		if n > valuesPerBuf {
			n = valuesPerBuf
		}
		if _, err := io.ReadFull(r, buf[:n*bytesPerValue]); err != nil {
			return fmt.Errorf("reading data at value %d: %w", dataIndex, err)
		}
		for i := 0; i < n; i++ {
			v := conv(buf[i*bytesPerValue : (i+1)*bytesPerValue])
			data[dataIndex+i] = float32(v*bscale + bzero)
		}
		dataIndex += n
	}
	return nil
}

// Reads header blocks until the END record
func (h *Header) read(r io.Reader) error {
	buf := make([]byte, fitsBlockSize)
	lastString := ""

	for h.Length = 0; !h.End; {
		// read next header unit
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("reading header block: %w", err)
		}
		h.Length += fitsBlockSize

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			cont, err := h.parseLine(line, lastString)
			if err != nil {
				return fmt.Errorf("header line %d: %w", h.Length/HeaderLineSize-fitsBlockSize/HeaderLineSize+lineNo+1, err)
			}
			lastString = cont
		}
	}
	return nil
}
