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
)

// A gaussian image pyramid. Levels[0] is the original image, each further level is
// gauss filtered and then sub-sampled by the downscale factor. Pixel (x,y) on level i+1
// corresponds to pixel (x*Downscale, y*Downscale) on level i, so coordinates scale
// exactly by the downscale factor between levels.
type Pyramid struct {
	Levels    []*Image
	Downscale int
}

// Standard deviation of the smoothing filter applied before sub-sampling by the given factor
func PyramidSigma(downscale int) float64 {
	return 2 * float64(downscale) / 6
}

// Returns the width and height of the given pyramid level for an image of given size
func PyramidLevelSize(width, height, level, downscale int) (levelWidth, levelHeight int) {
	for i := 0; i < level; i++ {
		width = (width + downscale - 1) / downscale
		height = (height + downscale - 1) / downscale
	}
	return width, height
}

// Builds a gaussian pyramid with depth+1 levels from the given image. The image itself is level 0 and is not copied
func NewPyramid(img *Image, depth, downscale int) (*Pyramid, error) {
	if depth < 0 {
		return nil, errors.New(fmt.Sprintf("invalid pyramid depth %d", depth))
	}
	if downscale < 2 {
		return nil, errors.New(fmt.Sprintf("invalid pyramid downscale factor %d", downscale))
	}
	levels := make([]*Image, depth+1)
	levels[0] = img
	sigma := PyramidSigma(downscale)
	for i := 1; i <= depth; i++ {
		prev := levels[i-1]
		if prev.Width < 2 && prev.Height < 2 {
			return nil, errors.New(fmt.Sprintf("pyramid level %d of %s pixels cannot be downscaled further", i-1, prev.DimensionsToString()))
		}
		levels[i] = Subsample(GaussFilter2D(prev, sigma), downscale)
	}
	return &Pyramid{Levels: levels, Downscale: downscale}, nil
}

// Number of levels including the original image
func (p *Pyramid) Len() int {
	return len(p.Levels)
}

// Picks every n-th pixel in x and y direction, starting at (0,0). Result size is rounded up
func Subsample(img *Image, n int) *Image {
	width, height := (img.Width+n-1)/n, (img.Height+n-1)/n
	res := NewImage(width, height, nil)
	for y := 0; y < height; y++ {
		src := img.Data[y*n*img.Width:]
		dest := res.Data[y*width : (y+1)*width]
		for x := range dest {
			dest[x] = src[x*n]
		}
	}
	return res
}
