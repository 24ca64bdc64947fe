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


// Package preview renders rasters into 16-bit TIFF and JPEG quicklooks.
package preview

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"

	"github.com/mlnoga/geofuse/internal/raster"
)

// 1-based band numbers for a true colour rendering of reflectance products
var TrueColor = [3]int{3, 2, 1}

// Scales v from [min,max] into [0,1] with the given gamma. NaNs and values below min become 0
func stretch(v, min, scale float32, gammaInv float64) float32 {
	v = (v - min) * scale
	// replace NaNs with zeros for export, else TIFF output breaks
	if math.IsNaN(float64(v)) || v < 0 {
		return 0
	}
	if v > 1 {
		v = 1
	}
	if gammaInv != 1.0 {
		v = float32(math.Pow(float64(v), gammaInv))
	}
	return v
}

func createBuffered(fileName string, write func(w io.Writer) error) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := write(writer); err != nil {
		return err
	}
	return writer.Flush()
}

func checkBand(r *raster.Raster, band int) error {
	if band < 1 || band > r.NumBands() {
		return fmt.Errorf("band %d out of range for %s with %d bands", band, r.FileName, r.NumBands())
	}
	return nil
}

func WriteMonoTIFF16ToFile(r *raster.Raster, band int, fileName string, min, max, gamma float32) error {
	return createBuffered(fileName, func(w io.Writer) error { return WriteMonoTIFF16(r, band, w, min, max, gamma) })
}

// Writes the given 1-based band as a 16-bit greyscale TIFF, stretching [min,max] to full range
func WriteMonoTIFF16(r *raster.Raster, band int, writer io.Writer, min, max, gamma float32) error {
	if err := checkBand(r, band); err != nil {
		return err
	}
	data := r.Bands[band-1]
	img := image.NewGray16(image.Rectangle{image.Point{0, 0}, image.Point{r.Width, r.Height}})
	scale := 1 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < r.Height; y++ {
		yoffset := y * r.Width
		for x := 0; x < r.Width; x++ {
			gray := stretch(data[yoffset+x], min, scale, gammaInv)
			img.SetGray16(x, y, color.Gray16{uint16(gray * 65535)})
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

func WriteRGBTIFF16ToFile(r *raster.Raster, bands [3]int, fileName string, min, max, gamma float32) error {
	return createBuffered(fileName, func(w io.Writer) error { return WriteRGBTIFF16(r, bands, w, min, max, gamma) })
}

// Writes three 1-based bands as a 16-bit RGB TIFF, stretching [min,max] to full range
func WriteRGBTIFF16(r *raster.Raster, bands [3]int, writer io.Writer, min, max, gamma float32) error {
	for _, b := range bands {
		if err := checkBand(r, b); err != nil {
			return err
		}
	}
	rd, gd, bd := r.Bands[bands[0]-1], r.Bands[bands[1]-1], r.Bands[bands[2]-1]
	img := image.NewRGBA64(image.Rectangle{image.Point{0, 0}, image.Point{r.Width, r.Height}})
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < r.Height; y++ {
		yoffset := y * r.Width
		for x := 0; x < r.Width; x++ {
			i := yoffset + x
			cr := stretch(rd[i], min, scale, gammaInv)
			cg := stretch(gd[i], min, scale, gammaInv)
			cb := stretch(bd[i], min, scale, gammaInv)
			img.SetRGBA64(x, y, color.RGBA64{uint16(cr * 65535), uint16(cg * 65535), uint16(cb * 65535), 65535})
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
