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


// Package ndvi derives vegetation index rasters and samples them into per-site time series.
package ndvi

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"sync"

	goeval "github.com/edisonguo/govaluate"

	"github.com/mlnoga/geofuse/internal/raster"
)

// 1-based band numbers of the red and near infrared reflectances
const (
	RedBand = 3
	NIRBand = 4
)

// Expression equivalent to NDVI, in terms of band variables
const DefaultExpression = "(b4 - b3) / (b4 + b3)"

// Computes the normalized difference vegetation index (nir-red)/(nir+red) where both
// reflectances are positive, and 0 elsewhere. Returns a single band raster with no-data 0
func NDVI(r *raster.Raster) (*raster.Raster, error) {
	if r.NumBands() < NIRBand {
		return nil, fmt.Errorf("NDVI needs %d bands, %s has %d", NIRBand, r.FileName, r.NumBands())
	}
	out := raster.New(r.Width, r.Height, 1, r.Transform, r.CRS)
	out.FileName = r.FileName
	out.SetNoData(0)
	raster.ApplyPixelFunction2Band(out.Bands[0], r.Bands[RedBand-1], r.Bands[NIRBand-1], pfNDVI, nil)
	return out, nil
}

func pfNDVI(out, red, nir []float32, params interface{}) {
	for i := range out {
		rd, ni := red[i], nir[i]
		if rd > 0 && ni > 0 {
			out[i] = (ni - rd) / (ni + rd)
		} else {
			out[i] = 0
		}
	}
}

var bandVarRE = regexp.MustCompile(`^b([1-9][0-9]*)$`)

// A per-pixel band expression like "(b4 - b3) / (b4 + b3)". Variables b1..bn
// refer to 1-based band numbers
type Expression struct {
	Text  string
	expr  *goeval.EvaluableExpression
	bands map[string]int // variable name to 0-based band index
	max   int            // highest referenced 1-based band
}

func ParseExpression(text string) (*Expression, error) {
	expr, err := goeval.NewEvaluableExpression(text)
	if err != nil {
		return nil, fmt.Errorf("expression '%s': %w", text, err)
	}
	e := &Expression{Text: text, expr: expr, bands: map[string]int{}}
	for _, token := range expr.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		varName, ok := token.Value.(string)
		if !ok {
			return nil, fmt.Errorf("variable token '%v' failed to cast string", token.Value)
		}
		m := bandVarRE.FindStringSubmatch(varName)
		if m == nil {
			return nil, fmt.Errorf("variable %s is not supported, use b1..bn", varName)
		}
		b, _ := strconv.Atoi(m[1])
		e.bands[varName] = b - 1
		if b > e.max {
			e.max = b
		}
	}
	if len(e.bands) == 0 {
		return nil, fmt.Errorf("expression '%s' references no bands", text)
	}
	return e, nil
}

// Referenced variables, sorted
func (e *Expression) Vars() []string {
	vars := make([]string, 0, len(e.bands))
	for v := range e.bands {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// Evaluates the expression for every pixel. Pixels with a missing input, or a non-finite
// result, become 0. Returns a single band raster with no-data 0
func (e *Expression) Apply(r *raster.Raster) (*raster.Raster, error) {
	if r.NumBands() < e.max {
		return nil, fmt.Errorf("expression '%s' needs %d bands, %s has %d", e.Text, e.max, r.FileName, r.NumBands())
	}
	out := raster.New(r.Width, r.Height, 1, r.Transform, r.CRS)
	out.FileName = r.FileName
	out.SetNoData(0)

	var once sync.Once
	var firstErr error
	raster.ParallelRows(r.Height, func(row int) {
		params := make(map[string]interface{}, len(e.bands))
		dst := out.Bands[0]
	pixels:
		for i := row * r.Width; i < (row+1)*r.Width; i++ {
			for name, b := range e.bands {
				v := r.Bands[b][i]
				if r.IsMissing(v) {
					dst[i] = 0
					continue pixels
				}
				params[name] = float64(v)
			}
			res, err := e.expr.Evaluate(params)
			if err != nil {
				once.Do(func() { firstErr = fmt.Errorf("evaluating '%s': %w", e.Text, err) })
				return
			}
			dst[i] = finiteOrZero(res)
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func finiteOrZero(res interface{}) float32 {
	var f float64
	switch v := res.(type) {
	case float32:
		f = float64(v)
	case float64:
		f = v
	case bool:
		if v {
			f = 1
		}
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return float32(f)
}
