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
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mlnoga/affinereg/internal/affine"
	"github.com/mlnoga/affinereg/internal/raster"
)

// Outcome of a coarse-to-fine registration
type Result struct {
	Transform affine.Transform `json:"transform"` // maps target pixel coordinates to source pixel coordinates at full resolution
	MSE       float64          `json:"mse"`       // mean squared error on the finest refined level
	Coverage  float64          `json:"coverage"`  // fraction of target pixels mapped inside the source
	Levels    []LevelResult    `json:"levels"`    // per-level outcomes, coarsest first
}

// True if refinement converged on every level
func (r *Result) Converged() bool {
	for _, l := range r.Levels {
		if !l.Converged {
			return false
		}
	}
	return len(r.Levels) > 0
}

// Registers the source image against the target image, starting from the identity.
// The resulting transformation warps the source onto the target with raster.Warp.
// Progress is logged to the given writer, which may be nil
func Register(source, target *raster.Image, params *Params, log io.Writer) (*Result, error) {
	return RegisterContext(context.Background(), source, target, affine.Identity(), params, log)
}

// Registers the source image against the target image, starting from the given initial
// transformation in full resolution pixel units. Returns a *ConfigurationError for invalid
// inputs, a *NumericalError if a level cannot be solved, or the context error on cancellation
func RegisterContext(ctx context.Context, source, target *raster.Image, initial affine.Transform, params *Params, log io.Writer) (*Result, error) {
	if log == nil {
		log = io.Discard
	}
	if params == nil {
		params = NewParamsDefault()
	}
	if err := params.Validate(source, target); err != nil {
		return nil, err
	}
	if !initial.IsInvertible() {
		return nil, &ConfigurationError{"initial", fmt.Sprintf("transform %v is not invertible", initial)}
	}

	start := time.Now()
	srcPyr, err := raster.NewPyramid(source, params.PyramidDepth, params.Downscale)
	if err != nil {
		return nil, &ConfigurationError{"pyramidDepth", err.Error()}
	}
	tgtPyr, err := raster.NewPyramid(target, params.PyramidDepth, params.Downscale)
	if err != nil {
		return nil, &ConfigurationError{"pyramidDepth", err.Error()}
	}
	fmt.Fprintf(log, "Built %d level pyramids from %s pixels in %v\n", srcPyr.Len(), source.DimensionsToString(), time.Since(start))

	// Express the initial translation in units of the level above the coarsest,
	// as each level scales the translation up before refining
	down := float64(params.Downscale)
	trans := initial.ScaleTranslation(1 / pow(down, params.PyramidDepth+1))

	res := &Result{Levels: make([]LevelResult, 0, params.PyramidDepth-params.MinLevel+1)}
	for level := params.PyramidDepth; level >= params.MinLevel; level-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		levelStart := time.Now()
		trans = trans.ScaleTranslation(down)

		refiner, err := NewRefiner(srcPyr.Levels[level], tgtPyr.Levels[level], params.Threshold)
		if err != nil {
			var numErr *NumericalError
			if errors.As(err, &numErr) {
				numErr.Level = level
			}
			return nil, err
		}
		lr, err := refiner.Refine(ctx, trans, params.IterationBudget(level))
		if err != nil {
			return nil, err
		}
		lr.Level = level
		trans = lr.Transform
		res.Levels = append(res.Levels, lr)

		fmt.Fprintf(log, "Level %d: %dx%d pixels, %d iterations (%d accepted), MSE %.6g -> %.6g, %v in %v\n",
			level, lr.Width, lr.Height, lr.Iterations, lr.Accepted, lr.InitialMSE, lr.MSE, lr.Transform, time.Since(levelStart))
		if !lr.Converged {
			fmt.Fprintf(log, "Warning: level %d did not converge within %d iterations, lambda %.3g\n", level, lr.Iterations, lr.Lambda)
		}
	}

	res.Transform = trans.ScaleTranslation(pow(down, params.MinLevel))
	res.MSE = res.Levels[len(res.Levels)-1].MSE
	res.Coverage = raster.Coverage(res.Transform, target.Width, target.Height)
	fmt.Fprintf(log, "Registered in %v: %v, MSE %.6g, coverage %.1f%% of %v\n", time.Since(start), res.Transform, res.MSE,
		100*res.Coverage, raster.BoundingBox(res.Transform, target.Width, target.Height))
	return res, nil
}

// Integer power of a float
func pow(base float64, exp int) float64 {
	res := 1.0
	for i := 0; i < exp; i++ {
		res *= base
	}
	return res
}
