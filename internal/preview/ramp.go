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


package preview

import (
	"image"
	"image/jpeg"
	"io"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/mlnoga/geofuse/internal/raster"
)

// A colour ramp with stops at ascending positions in [0,1], blended in HCL space
type Ramp struct {
	Stops  []float64
	Colors []colorful.Color
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Brown over yellow to dark green, for vegetation indices
var NDVIRamp = Ramp{
	Stops:  []float64{0, 0.35, 0.6, 1},
	Colors: []colorful.Color{mustHex("#8c510a"), mustHex("#f6e8c3"), mustHex("#7fbc41"), mustHex("#1b5e20")},
}

// Colour at position t in [0,1], clamped
func (r Ramp) At(t float64) colorful.Color {
	if math.IsNaN(t) || t <= r.Stops[0] {
		return r.Colors[0]
	}
	for i := 1; i < len(r.Stops); i++ {
		if t <= r.Stops[i] {
			lo, hi := r.Stops[i-1], r.Stops[i]
			return r.Colors[i-1].BlendHcl(r.Colors[i], (t-lo)/(hi-lo)).Clamped()
		}
	}
	return r.Colors[len(r.Colors)-1]
}

func WriteRampJPGToFile(r *raster.Raster, band int, fileName string, min, max float32, ramp Ramp, quality int) error {
	return createBuffered(fileName, func(w io.Writer) error { return WriteRampJPG(r, band, w, min, max, ramp, quality) })
}

// Writes the given 1-based band as a colour JPEG, mapping [min,max] onto the ramp.
// Missing values are rendered black
func WriteRampJPG(r *raster.Raster, band int, writer io.Writer, min, max float32, ramp Ramp, quality int) error {
	if err := checkBand(r, band); err != nil {
		return err
	}
	data := r.Bands[band-1]
	img := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{r.Width, r.Height}})
	scale := 1.0 / float64(max-min)
	black := colorful.Color{}
	for y := 0; y < r.Height; y++ {
		yoffset := y * r.Width
		for x := 0; x < r.Width; x++ {
			v := data[yoffset+x]
			col := black
			if !r.IsMissing(v) {
				col = ramp.At(float64(v-min) * scale)
			}
			img.Set(x, y, col)
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
