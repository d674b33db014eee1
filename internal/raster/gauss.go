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

	nl "github.com/mlnoga/affinereg/internal"
)

// Check if coordinate is within [0, size-1], and if not, reflect out of bounds coordinates back into the value range.
// Reflection is symmetric, i.e. the edge pixel is repeated: -1 maps to 0, size maps to size-1
func Reflect(size, x int) int {
	if x < 0 {
		x = -x - 1
	}
	if x >= size {
		x = 2*size - x - 1
	}
	if x < 0 { // only for kernels wider than the image
		return 0
	}
	return x
}

// Returns the definite integral of the gaussian function with midpoint mu and standard deviation sigma for input x
func GaussianDefiniteIntegral(mu, sigma, x float64) float64 {
	return 0.5 * (1 + math.Erf((x-mu)/(math.Sqrt2*sigma)))
}

// Generates a 1D gaussian kernel for the given sigma. Based on symbolic integration via error function
func GaussianKernel1D(sigma float64) (kernel []float64) {
	mu := 0.0

	// Find minimal kernel width for which the area under the curve left of the kernel is below the acceptable error
	acceptOut := 0.01
	radius := 0
	for {
		val := GaussianDefiniteIntegral(mu, sigma, -0.5-float64(radius))
		if val < acceptOut {
			radius--
			break
		}
		radius++
	}
	if radius < 0 {
		radius = 0
	}
	width := 2*radius + 1
	kernel = make([]float64, width)

	// Calculate left half of the kernel via symbolic integration
	sum := 0.0
	lower := GaussianDefiniteIntegral(mu, sigma, -0.5-float64(radius))
	for i := 0; i <= radius; i++ {
		upper := GaussianDefiniteIntegral(mu, sigma, -0.5-float64(radius)+float64(i+1))
		delta := upper - lower
		kernel[i] = delta
		sum += delta
		lower = upper
	}

	// Mirror right half of the kernel to avoid numeric instability
	for i := 1; i <= radius; i++ {
		value := kernel[radius-i]
		kernel[radius+i] = value
		sum += value
	}

	// Normalize the sum of the kernel to 1, for dealing with the truncated part of the distribution.
	factor := 1.0 / sum
	for i := range kernel {
		kernel[i] *= factor
	}
	return kernel
}

// Convolve the given 2D image provided by data and width with the given convolution kernel along the x axis, and store the result in res
func Convolve1DX(res, data []float64, width int, kernel []float64) {
	height := len(data) / width
	k := len(kernel) / 2
	ApplyRowFunction(width, height, func(lower, upper int) {
		for y := lower; y < upper; y++ {
			row := data[y*width : (y+1)*width]
			for x := 0; x < width; x++ {
				sum := 0.0
				for i := -k; i <= k; i++ {
					sum += row[Reflect(width, x+i)] * kernel[i+k]
				}
				res[y*width+x] = sum
			}
		}
	})
}

// Convolve the given 2D image provided by data and width with the given convolution kernel along the y axis, and store the result in res
func Convolve1DY(res, data []float64, width int, kernel []float64) {
	height := len(data) / width
	k := len(kernel) / 2
	ApplyRowFunction(width, height, func(lower, upper int) {
		for y := lower; y < upper; y++ {
			for x := 0; x < width; x++ {
				sum := 0.0
				for i := -k; i <= k; i++ {
					sum += data[Reflect(height, y+i)*width+x] * kernel[i+k]
				}
				res[y*width+x] = sum
			}
		}
	})
}

// Applies a 2D gauss filter of given standard deviation to the image, and returns the result as a new image
func GaussFilter2D(img *Image, sigma float64) *Image {
	kernel := GaussianKernel1D(sigma)
	tmp := nl.GetArrayOfFloat64FromPool(len(img.Data))
	defer nl.PutArrayOfFloat64IntoPool(tmp)
	tmp = tmp[:len(img.Data)]

	res := NewImage(img.Width, img.Height, nil)
	Convolve1DX(tmp, img.Data, img.Width, kernel)
	Convolve1DY(res.Data, tmp, img.Width, kernel)
	return res
}
