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


package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlnoga/affinereg/internal/raster"
	"golang.org/x/image/tiff"
)

// Writes a grayscale image to a file, choosing the format by file name extension.
// Supports .jpg, .jpeg, .png, .tif and .tiff. Values are mapped linearly from [min,max] to the full output range
func WriteFile(fileName string, img *raster.Image, min, max float64) (err error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	var write func(w io.Writer) error
	switch ext {
	case ".jpg", ".jpeg":
		write = func(w io.Writer) error { return WriteJPG(w, img, min, max, 1, 95) }
	case ".png":
		write = func(w io.Writer) error { return WritePNG16(w, img, min, max, 1) }
	case ".tif", ".tiff":
		write = func(w io.Writer) error { return WriteTIFF16(w, img, min, max, 1) }
	default:
		return errors.New(fmt.Sprintf("unsupported output file extension '%s' in %s", ext, fileName))
	}

	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	writer := bufio.NewWriter(file)
	if err = write(writer); err != nil {
		return err
	}
	return writer.Flush()
}

// Writes a grayscale image to JPG, using the given min, max and gamma
func WriteJPG(writer io.Writer, img *raster.Image, min, max, gamma float64, quality int) error {
	out := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
	scaleEach(img, min, max, gamma, func(x, y int, v float64) {
		out.SetGray(x, y, color.Gray{Y: uint8(v*255 + 0.5)})
	})
	return jpeg.Encode(writer, out, &jpeg.Options{Quality: quality})
}

// Writes a grayscale image to 16-bit TIFF, using the given min, max and gamma
func WriteTIFF16(writer io.Writer, img *raster.Image, min, max, gamma float64) error {
	out := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	scaleEach(img, min, max, gamma, func(x, y int, v float64) {
		out.SetGray16(x, y, color.Gray16{Y: uint16(v*65535 + 0.5)})
	})
	return tiff.Encode(writer, out, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Writes a grayscale image to 16-bit PNG, using the given min, max and gamma
func WritePNG16(writer io.Writer, img *raster.Image, min, max, gamma float64) error {
	out := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	scaleEach(img, min, max, gamma, func(x, y int, v float64) {
		out.SetGray16(x, y, color.Gray16{Y: uint16(v*65535 + 0.5)})
	})
	return png.Encode(writer, out)
}

// Maps each pixel from [min,max] to [0,1], applies the inverse gamma and hands it to the setter
func scaleEach(img *raster.Image, min, max, gamma float64, set func(x, y int, v float64)) {
	scale := 1.0
	if max > min {
		scale = 1 / (max - min)
	}
	gammaInv := 1 / gamma
	for y := 0; y < img.Height; y++ {
		yoffset := y * img.Width
		for x := 0; x < img.Width; x++ {
			v := (img.Data[yoffset+x] - min) * scale
			// replace NaNs with zeros for export, else the encoders break
			if math.IsNaN(v) || v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			if gammaInv != 1 {
				v = math.Pow(v, gammaInv)
			}
			set(x, y, v)
		}
	}
}
