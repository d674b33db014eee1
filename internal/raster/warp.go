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


package raster

import (
	"math"

	"github.com/mlnoga/affinereg/internal/affine"
)

// Warps an image with the given transformation, and returns a new image of the same size.
// Output pixel (x,y) is sampled from the input at trans.Apply(x,y), i.e. the transformation maps
// output coordinates to input coordinates. Uses bilinear interpolation. Coordinates outside the
// input are clamped to the nearest border pixel.
func Warp(img *Image, trans affine.Transform) *Image {
	res := NewImage(img.Width, img.Height, nil)
	WarpInto(res.Data, img, trans)
	return res
}

// Warps an image with the given transformation into the given output array of img.Pixels() length
func WarpInto(out []float64, img *Image, trans affine.Transform) {
	width := img.Width
	ApplyRowFunction(img.Width, img.Height, func(lower, upper int) {
		for row := lower; row < upper; row++ {
			rowX := trans.B*float64(row) + trans.TX
			rowY := trans.D*float64(row) + trans.TY
			for col := 0; col < width; col++ {
				x := trans.A*float64(col) + rowX
				y := trans.C*float64(col) + rowY
				out[row*width+col] = img.SampleClamped(x, y)
			}
		}
	})
}

// Samples the image at the given subpixel position with bilinear interpolation.
// Positions outside the image take the value of the nearest border position.
func (img *Image) SampleClamped(x, y float64) float64 {
	maxX, maxY := float64(img.Width-1), float64(img.Height-1)
	if !(x > 0) { // also catches NaN
		x = 0
	} else if x > maxX {
		x = maxX
	}
	if !(y > 0) {
		y = 0
	} else if y > maxY {
		y = maxY
	}

	xl, yl := int(math.Floor(x)), int(math.Floor(y))
	xh, yh := xl+1, yl+1
	if xh >= img.Width {
		xh = xl
	}
	if yh >= img.Height {
		yh = yl
	}
	xr, yr := x-float64(xl), y-float64(yl)

	d := img.Data
	vyl := d[yl*img.Width+xl]*(1-xr) + d[yl*img.Width+xh]*xr
	vyh := d[yh*img.Width+xl]*(1-xr) + d[yh*img.Width+xh]*xr
	return vyl*(1-yr) + vyh*yr
}
