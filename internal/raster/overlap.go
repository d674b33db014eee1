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
	"fmt"
	"math"

	"github.com/mlnoga/affinereg/internal/affine"
)

// An axis-aligned rectangle in pixel coordinates, with X0<=X1 and Y0<=Y1
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) String() string {
	return fmt.Sprintf("[%.2f,%.2f]-[%.2f,%.2f]", r.X0, r.Y0, r.X1, r.Y1)
}

// Bounding box of the pixel grid of a width x height image under the transformation.
// For a warp, this is the region of the input sampled by the output image
func BoundingBox(trans affine.Transform, width, height int) Rect {
	maxX, maxY := float64(width-1), float64(height-1)
	r := Rect{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, c := range [4][2]float64{{0, 0}, {maxX, 0}, {0, maxY}, {maxX, maxY}} {
		x, y := trans.Apply(c[0], c[1])
		r.X0, r.X1 = math.Min(r.X0, x), math.Max(r.X1, x)
		r.Y0, r.Y1 = math.Min(r.Y0, y), math.Max(r.Y1, y)
	}
	return r
}

// Fraction of output pixels of a width x height warp whose sampling position lies within
// the input image of the same size, i.e. which are not extrapolated from the border
func Coverage(trans affine.Transform, width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	maxX, maxY := float64(width-1), float64(height-1)
	inside := 0
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			x, y := trans.Apply(float64(col), float64(row))
			if x >= 0 && x <= maxX && y >= 0 && y <= maxY {
				inside++
			}
		}
	}
	return float64(inside) / float64(width*height)
}
