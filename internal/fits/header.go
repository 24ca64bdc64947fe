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


// Package fits reads and writes georeferenced float32 raster cubes in the FITS format.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
//
// Bands are stored along NAXIS3. The affine transform is kept in keys GT1..GT6 in GDAL
// geotransform order, the coordinate reference in CRS (long strings via CONTINUE),
// and the no-data value in NODATA.
package fits

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int64
	Floats   map[string]float64
	Strings  map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int // bytes consumed, a multiple of the block size
}

// Creates a FITS header initialized with empty maps
func NewHeader() Header {
	return Header{
		Bools:   make(map[string]bool),
		Ints:    make(map[string]int64),
		Floats:  make(map[string]float64),
		Strings: make(map[string]string),
	}
}

// Pops an integer value from the header
func (h *Header) PopInt(key string) (int64, error) {
	if val, ok := h.Ints[key]; ok {
		delete(h.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("FITS header does not contain key %s", key)
}

// Pops a numeric value from the header, accepting integers and floats.
// Non-finite floats are stored as strings, and are accepted too
func (h *Header) PopFloat(key string) (float64, error) {
	if val, ok := h.Ints[key]; ok {
		delete(h.Ints, key)
		return float64(val), nil
	} else if val, ok := h.Floats[key]; ok {
		delete(h.Floats, key)
		return val, nil
	} else if val, ok := h.Strings[key]; ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			delete(h.Strings, key)
			return f, nil
		}
	}
	return 0, fmt.Errorf("FITS header does not contain numeric key %s", key)
}

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	rest := ".*"
	histLine := "HISTORY" + white + "(?P<H>" + rest + ")"
	commLine := "COMMENT" + white + "(?P<C>" + rest + ")"
	endLine := "(?P<E>END)" + whiteOpt

	stringBody := "(?:[^']|'')*"
	contLine := "CONTINUE" + whiteOpt + "'(?P<n>" + stringBody + ")'" + whiteOpt + "(?:/.*)?"

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?)"
	stri := "'(?P<s>" + stringBody + ")'"
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + ")"

	// missing: complex int: (nr, nr)
	// missing: complex float: (nr, nr)

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + contLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}

// Parses a single header line into h. lastString is the key of the last string value
// which announced a continuation, or empty
func (h *Header) parseLine(line []byte, lastString string) (continued string, err error) {
	subValues := reParser.FindSubmatch(line)
	if subValues == nil {
		return "", fmt.Errorf("cannot parse header line '%s'", strings.TrimRight(string(line), " "))
	}
	subNames := reParser.SubexpNames()
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] == nil || len(subNames[i]) != 1 {
			continue
		}
		v := subValues[i]
		switch subNames[i][0] {
		case 'E': // end line
			h.End = true
		case 'H': // history line
			h.History = append(h.History, string(v))
		case 'C': // comment line
			h.Comments = append(h.Comments, string(v))
		case 'k': // key
			key = string(v)
		case 'b': // boolean
			if len(v) > 0 {
				h.Bools[key] = v[0] == 't' || v[0] == 'T'
			}
		case 'i': // int
			if val, err := strconv.ParseInt(string(v), 10, 64); err == nil {
				h.Ints[key] = val
			}
		case 'f': // float
			s := strings.Replace(string(v), "D", "E", 1)
			if val, err := strconv.ParseFloat(s, 64); err == nil {
				h.Floats[key] = val
			}
		case 's': // string
			s, more := unescapeString(string(v))
			h.Strings[key] = s
			if more {
				continued = key
			}
		case 'n': // string continuation
			if lastString == "" {
				return "", fmt.Errorf("CONTINUE without preceding long string")
			}
			s, more := unescapeString(string(v))
			h.Strings[lastString] += s
			if more {
				continued = lastString
			}
		}
	}
	return continued, nil
}

// Unescapes a FITS string value and strips trailing blanks. Reports whether
// the value ends with the & continuation marker, which is removed
func unescapeString(s string) (string, bool) {
	s = strings.ReplaceAll(s, "''", "'")
	s = strings.TrimRight(s, " ")
	if strings.HasSuffix(s, "&") {
		return s[:len(s)-1], true
	}
	return s, false
}

// Formats a header line with the given key and pre-formatted value, padded or truncated to 80 characters
func formatLine(key, value, comment string) string {
	if len(key) > 8 {
		key = key[0:8]
	}
	line := fmt.Sprintf("%-8s= %20s / %s", key, value, comment)
	return padLine(line)
}

func padLine(line string) string {
	if len(line) > HeaderLineSize {
		return line[:HeaderLineSize]
	}
	return line + strings.Repeat(" ", HeaderLineSize-len(line))
}

// Formats a float so the header parser recognizes it as a float, with full float64 precision.
// Non-finite values yield false, they cannot be represented as FITS numbers
func formatFloat(v float64) (string, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", false
	}
	s := strconv.FormatFloat(v, 'G', -1, 64)
	if !strings.Contains(s, ".") {
		if e := strings.IndexByte(s, 'E'); e >= 0 {
			s = s[:e] + "." + s[e:]
		} else {
			s += "."
		}
	}
	return s, true
}

// Writes header lines into a string builder
type headerWriter struct {
	sb strings.Builder
}

func (w *headerWriter) Bool(key string, value bool, comment string) {
	v := "F"
	if value {
		v = "T"
	}
	w.sb.WriteString(formatLine(key, v, comment))
}

func (w *headerWriter) Int(key string, value int64, comment string) {
	w.sb.WriteString(formatLine(key, strconv.FormatInt(value, 10), comment))
}

// Writes a float value. Non-finite values are written as strings
func (w *headerWriter) Float(key string, value float64, comment string) {
	if s, ok := formatFloat(value); ok {
		w.sb.WriteString(formatLine(key, s, comment))
	} else {
		w.String(key, strconv.FormatFloat(value, 'g', -1, 64), comment)
	}
}

// Writes a string value, with escaping and continuations if necessary
func (w *headerWriter) String(key, value, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	const firstMax = HeaderLineSize - 10 - 3 // key, '= ', quotes and continuation marker
	const contMax = HeaderLineSize - 10 - 3
	chunk, value := takeEscaped(value, firstMax)
	if len(value) == 0 {
		w.sb.WriteString(padLine(fmt.Sprintf("%-8s= '%-8s' / %s", key, chunk, comment)))
		return
	}
	w.sb.WriteString(padLine(fmt.Sprintf("%-8s= '%s&'", key, chunk)))
	for len(value) > 0 {
		chunk, value = takeEscaped(value, contMax)
		if len(value) > 0 {
			w.sb.WriteString(padLine(fmt.Sprintf("CONTINUE  '%s&'", chunk)))
		} else {
			w.sb.WriteString(padLine(fmt.Sprintf("CONTINUE  '%s'", chunk)))
		}
	}
}

// Takes the longest prefix of s whose escaped form fits into max characters.
// Returns the escaped prefix and the unescaped remainder
func takeEscaped(s string, max int) (escaped, rest string) {
	sb := strings.Builder{}
	i := 0
	for ; i < len(s); i++ {
		n := 1
		if s[i] == '\'' {
			n = 2
		}
		if sb.Len()+n > max {
			break
		}
		if n == 2 {
			sb.WriteString("''")
		} else {
			sb.WriteByte(s[i])
		}
	}
	return sb.String(), s[i:]
}

func (w *headerWriter) History(text string) {
	w.sb.WriteString(padLine("HISTORY " + text))
}

// Writes the end record and pads the header to a full block
func (w *headerWriter) End() string {
	w.sb.WriteString(padLine("END"))
	if rem := w.sb.Len() % fitsBlockSize; rem > 0 {
		w.sb.WriteString(strings.Repeat(" ", fitsBlockSize-rem))
	}
	return w.sb.String()
}
