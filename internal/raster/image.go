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
	"errors"
	"fmt"
	"math"

	nl "github.com/mlnoga/affinereg/internal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// A grayscale image with real-valued pixel intensities.
// Data is row-major, pixel (x,y) is at Data[y*Width+x]. Rows are y, columns are x.
type Image struct {
	Width  int
	Height int
	Data   []float64
}

// Creates an image of given size. Data is not copied, allocated if nil
func NewImage(width, height int, data []float64) *Image {
	if data == nil {
		data = make([]float64, width*height)
	}
	return &Image{Width: width, Height: height, Data: data}
}

// Creates an image of given size and checks the data length matches
func NewImageFromData(width, height int, data []float64) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New(fmt.Sprintf("invalid image size %dx%d", width, height))
	}
	if len(data) != width*height {
		return nil, errors.New(fmt.Sprintf("image data has %d pixels, want %dx%d=%d", len(data), width, height, width*height))
	}
	return NewImage(width, height, data), nil
}

// Returns a deep copy of the image
func (img *Image) Clone() *Image {
	return NewImage(img.Width, img.Height, append([]float64(nil), img.Data...))
}

// Returns the pixel value at column x and row y
func (img *Image) At(x, y int) float64 {
	return img.Data[y*img.Width+x]
}

func (img *Image) Pixels() int {
	return img.Width * img.Height
}

// True if both images have the same width and height
func (img *Image) SameShape(other *Image) bool {
	return img.Width == other.Width && img.Height == other.Height
}

// Length of the image diagonal in pixels
func (img *Image) Diagonal() float64 {
	return math.Hypot(float64(img.Width), float64(img.Height))
}

func (img *Image) DimensionsToString() string {
	return fmt.Sprintf("%dx%d", img.Width, img.Height)
}

// Basic statistics on an image
type Stats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

func (s Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g", s.Min, s.Max, s.Mean, s.StdDev)
}

// Calculate basic statistics for the image
func (img *Image) Stats() Stats {
	if len(img.Data) == 0 {
		return Stats{}
	}
	mean, stdDev := stat.MeanStdDev(img.Data, nil)
	return Stats{
		Min:    floats.Min(img.Data),
		Max:    floats.Max(img.Data),
		Mean:   mean,
		StdDev: stdDev,
	}
}

// Returns a copy of the image with the value range scaled to [0,1].
// Images of uniform intensity are returned as a plain copy
func (img *Image) Normalized() *Image {
	res := img.Clone()
	s := img.Stats()
	if s.Max-s.Min < 1e-12 {
		return res
	}
	floats.AddConst(-s.Min, res.Data)
	floats.Scale(1/(s.Max-s.Min), res.Data)
	return res
}

// Mean of the squared pixel differences between a and b. Images must be of same shape
func MeanSquaredError(a, b *Image) float64 {
	diff := nl.GetArrayOfFloat64FromPool(len(a.Data))
	defer nl.PutArrayOfFloat64IntoPool(diff)
	diff = diff[:len(a.Data)]
	floats.SubTo(diff, a.Data, b.Data)
	return MeanSquares(diff)
}

// Mean of the squared values
func MeanSquares(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Dot(data, data) / float64(len(data))
}
