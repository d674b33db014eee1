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
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/mlnoga/affinereg/internal/raster"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Luminance weights for gamma-encoded RGB, as in ITU-R BT.709
const (
	lumR = 0.2125
	lumG = 0.7154
	lumB = 0.0721
)

// Reads a grayscale image from the given file. Supports PNG, JPEG, GIF, TIFF and BMP.
// Color images are converted to luminance. Values are in [0,1]
func ReadFile(fileName string) (*raster.Image, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := Read(bufio.NewReader(file))
	if err != nil {
		return nil, errors.New(fmt.Sprintf("%s: %s", fileName, err.Error()))
	}
	return img, nil
}

// Decodes a grayscale image from the given reader, and returns it along with the name of the format
func Read(r io.Reader) (img *raster.Image, format string, err error) {
	decoded, format, err := image.Decode(r)
	if err != nil {
		return nil, format, err
	}
	return FromImage(decoded), format, nil
}

// Converts a Go image into a grayscale raster image with values in [0,1]
func FromImage(src image.Image) *raster.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	res := raster.NewImage(width, height, nil)
	d := res.Data

	switch s := src.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				d[y*width+x] = float64(s.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y) / 255
			}
		}
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				d[y*width+x] = float64(s.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y) / 65535
			}
		}
	default:
		raster.ApplyRowFunction(width, height, func(lower, upper int) {
			for y := lower; y < upper; y++ {
				for x := 0; x < width; x++ {
					// fully transparent pixels come back as black
					c, _ := colorful.MakeColor(src.At(bounds.Min.X+x, bounds.Min.Y+y))
					d[y*width+x] = Luminance(c)
				}
			}
		})
	}
	return res
}

// Luminance of a gamma-encoded color, clamped to [0,1]
func Luminance(c colorful.Color) float64 {
	c = c.Clamped()
	return lumR*c.R + lumG*c.G + lumB*c.B
}
