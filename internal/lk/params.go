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
	"encoding/json"
	"fmt"

	"github.com/mlnoga/affinereg/internal/raster"
)

// Parameters for coarse-to-fine registration
type Params struct {
	PyramidDepth   int     `json:"pyramidDepth"`   // index of the coarsest level, 0 registers at full resolution only
	MinLevel       int     `json:"minLevel"`       // finest level to refine, 0 is full resolution
	Downscale      int     `json:"downscale"`      // size reduction factor between levels
	IterationsBase int     `json:"iterationsBase"` // level i gets max(1, IterationsBase*2^i/2) iterations
	Threshold      float64 `json:"threshold"`      // convergence threshold on the displacement measure
	MinLevelSize   int     `json:"minLevelSize"`   // minimum width and height of the coarsest level
}

func NewParamsDefault() *Params { return NewParams(3, 0) }

func NewParams(pyramidDepth, minLevel int) *Params {
	return &Params{
		PyramidDepth:   pyramidDepth,
		MinLevel:       minLevel,
		Downscale:      2,
		IterationsBase: 10,
		Threshold:      0.001,
		MinLevelSize:   8,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (p *Params) UnmarshalJSON(data []byte) error {
	type defaults Params
	def := defaults(*NewParamsDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*p = Params(def)
	return nil
}

// Upper limit of the iteration budget on any level
const maxLevelIterations = 1 << 16

// Maximum number of iterations on the given pyramid level. Coarse levels are cheap and get more
func (p *Params) IterationBudget(level int) int {
	budget := p.IterationsBase * (1 << uint(level)) / 2
	if budget < 1 {
		budget = 1
	}
	return budget
}

// Checks parameters against the pair of images to register
func (p *Params) Validate(source, target *raster.Image) error {
	if source == nil || target == nil {
		return &ConfigurationError{"images", "source and target are required"}
	}
	if source.Width <= 0 || source.Height <= 0 || len(source.Data) != source.Pixels() {
		return &ConfigurationError{"source", fmt.Sprintf("malformed image of %s pixels with %d values", source.DimensionsToString(), len(source.Data))}
	}
	if target.Width <= 0 || target.Height <= 0 || len(target.Data) != target.Pixels() {
		return &ConfigurationError{"target", fmt.Sprintf("malformed image of %s pixels with %d values", target.DimensionsToString(), len(target.Data))}
	}
	if !source.SameShape(target) {
		return &ConfigurationError{"images", fmt.Sprintf("source has %s pixels but target has %s", source.DimensionsToString(), target.DimensionsToString())}
	}
	if p.Downscale < 2 {
		return &ConfigurationError{"downscale", fmt.Sprintf("%d is below 2", p.Downscale)}
	}
	if p.PyramidDepth < 0 || p.PyramidDepth > 30 {
		return &ConfigurationError{"pyramidDepth", fmt.Sprintf("%d is outside [0,30]", p.PyramidDepth)}
	}
	if p.MinLevel < 0 || p.MinLevel > p.PyramidDepth {
		return &ConfigurationError{"minLevel", fmt.Sprintf("%d is outside [0,%d]", p.MinLevel, p.PyramidDepth)}
	}
	if p.IterationsBase <= 0 || p.IterationsBase > maxLevelIterations {
		return &ConfigurationError{"iterationsBase", fmt.Sprintf("%d is outside [1,%d]", p.IterationsBase, maxLevelIterations)}
	}
	if !(p.Threshold > 0) {
		return &ConfigurationError{"threshold", fmt.Sprintf("%g is not positive", p.Threshold)}
	}
	minSize := p.MinLevelSize
	if minSize < 1 {
		minSize = 1
	}
	w, h := raster.PyramidLevelSize(source.Width, source.Height, p.PyramidDepth, p.Downscale)
	if w < minSize || h < minSize {
		return &ConfigurationError{"pyramidDepth", fmt.Sprintf("level %d of a %s image has %dx%d pixels, below the minimum of %d",
			p.PyramidDepth, source.DimensionsToString(), w, h, minSize)}
	}
	if budget := p.IterationBudget(p.PyramidDepth); budget > maxLevelIterations {
		return &ConfigurationError{"iterationsBase", fmt.Sprintf("%d iterations on level %d exceed the limit of %d",
			budget, p.PyramidDepth, maxLevelIterations)}
	}
	return nil
}
