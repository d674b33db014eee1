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


package lk

import (
	"github.com/mlnoga/affinereg/internal/raster"
)

// Scharr smoothing weights across the derivative direction
var scharrSmooth = [3]float64{3, 10, 3}

// Normalizes the Scharr response so a ramp of slope 1 yields a gradient of 1
const scharrNorm = 1.0 / 32

// Calculates horizontal and vertical intensity gradients with the 3x3 Scharr operator.
// Image borders are extended symmetrically, so a border pixel sees itself as its outer neighbour.
func Gradient(img *raster.Image) (gx, gy []float64) {
	width, height := img.Width, img.Height
	d := img.Data
	gx = make([]float64, len(d))
	gy = make([]float64, len(d))

	raster.ApplyRowFunction(width, height, func(lower, upper int) {
		for y := lower; y < upper; y++ {
			rows := [3]int{
				raster.Reflect(height, y-1) * width,
				y * width,
				raster.Reflect(height, y+1) * width,
			}
			for x := 0; x < width; x++ {
				xl, xh := raster.Reflect(width, x-1), raster.Reflect(width, x+1)

				sumX := 0.0
				for i, row := range rows {
					sumX += scharrSmooth[i] * (d[row+xh] - d[row+xl])
				}
				sumY := 0.0
				for i, col := range [3]int{xl, x, xh} {
					sumY += scharrSmooth[i] * (d[rows[2]+col] - d[rows[0]+col])
				}

				gx[y*width+x] = sumX * scharrNorm
				gy[y*width+x] = sumY * scharrNorm
			}
		}
	})
	return gx, gy
}
