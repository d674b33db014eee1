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
	"math"

	nl "github.com/mlnoga/affinereg/internal"
	"github.com/mlnoga/affinereg/internal/affine"
	"github.com/mlnoga/affinereg/internal/raster"
	"gonum.org/v1/gonum/floats"
)

// Weight of the linear part of a step in the displacement measure, relative to the image diagonal
const linearDisplacementWeight = 0.25

// Initial Levenberg-Marquardt damping factor
const initialLambda = 0.001

// Refines an affine transformation on a single pyramid level with inverse compositional
// Lucas-Kanade steps under Levenberg-Marquardt damping. Gradient, steepest descent images
// and Hessian come from the target image and are computed once.
type Refiner struct {
	Source    *raster.Image
	Target    *raster.Image
	System    *System
	Threshold float64
	diagonal  float64
}

// Creates a refiner for the given source and target image. Returns a *NumericalError if the
// target does not carry enough structure for a solvable system
func NewRefiner(source, target *raster.Image, threshold float64) (*Refiner, error) {
	if !source.SameShape(target) {
		return nil, &ConfigurationError{"images", "source has " + source.DimensionsToString() + " pixels but target has " + target.DimensionsToString()}
	}
	gx, gy := Gradient(target)
	sys := NewSystem(gx, gy, target.Width, target.Height)
	if err := sys.CheckHessian(); err != nil {
		return nil, &NumericalError{Level: -1, Msg: err.Error()}
	}
	return &Refiner{
		Source:    source,
		Target:    target,
		System:    sys,
		Threshold: threshold,
		diagonal:  target.Diagonal(),
	}, nil
}

// State of the damped iteration on one level. Values are immutable, Step returns a new state
type LMState struct {
	Best         affine.Transform // best transformation found so far
	BestMSE      float64          // mean squared error of the source warped with Best against the target
	Lambda       float64          // current damping factor
	Iteration    int              // number of steps taken
	Accepted     bool             // true if the last step improved on the best transformation
	Displacement float64          // size of the last step, see Refiner.Displacement
	Converged    bool             // true if the last step was smaller than the threshold

	residual []float64 // target minus source warped with Best, shared between states and never modified
}

// Returns the starting state for the given initial transformation
func (r *Refiner) InitialState(initial affine.Transform) LMState {
	residual := r.residual(initial)
	return LMState{
		Best:         initial,
		BestMSE:      raster.MeanSquares(residual),
		Lambda:       initialLambda,
		Displacement: math.Inf(1),
		residual:     residual,
	}
}

// Returns target minus source warped with the given transformation, as a new array
func (r *Refiner) residual(trans affine.Transform) []float64 {
	res := make([]float64, r.Target.Pixels())
	raster.WarpInto(res, r.Source, trans)
	floats.SubTo(res, r.Target.Data, res)
	return res
}

// Size of a step in pixels: length of the translation plus the summed magnitude of
// the linear coefficients, weighted by the image diagonal
func (r *Refiner) Displacement(delta [affine.NumParams]float64) float64 {
	linear := math.Abs(delta[0]) + math.Abs(delta[1]) + math.Abs(delta[3]) + math.Abs(delta[4])
	return math.Hypot(delta[2], delta[5]) + linearDisplacementWeight*r.diagonal*linear
}

// Performs one damped step from the given state. The candidate transformation is accepted
// only if it strictly lowers the mean squared error, which then divides lambda by 10.
// Otherwise the best transformation is kept and lambda is multiplied by 10.
func (r *Refiner) Step(s LMState) LMState {
	next := s
	next.Iteration++
	next.Accepted = false
	if next.residual == nil {
		next.residual = r.residual(s.Best)
	}

	g := r.System.GradientVector(next.residual)
	delta, err := r.System.Solve(g, s.Lambda)
	if err != nil {
		next.Lambda = s.Lambda * 10
		next.Displacement = math.Inf(1)
		next.Converged = false
		return next
	}
	next.Displacement = r.Displacement(delta)
	next.Converged = next.Displacement < r.Threshold

	// the residual is target minus warped source, so the parameter increment is -delta
	var inc [affine.NumParams]float64
	for i := range delta {
		inc[i] = -delta[i]
	}
	if incInv, err := affine.Increment(inc).Invert(); err == nil {
		candidate := s.Best.Compose(incInv)
		if candidate.IsInvertible() {
			buf := nl.GetArrayOfFloat64FromPool(r.Target.Pixels())
			buf = buf[:r.Target.Pixels()]
			raster.WarpInto(buf, r.Source, candidate)
			floats.SubTo(buf, r.Target.Data, buf)
			if mse := raster.MeanSquares(buf); mse < s.BestMSE {
				next.Best = candidate
				next.BestMSE = mse
				next.residual = append([]float64(nil), buf...)
				next.Lambda = s.Lambda / 10
				next.Accepted = true
			}
			nl.PutArrayOfFloat64IntoPool(buf)
		}
	}
	if !next.Accepted {
		next.Lambda = s.Lambda * 10
	}
	return next
}

// Outcome of refinement on one pyramid level. The transformation is in pixel units of that level
type LevelResult struct {
	Level      int              `json:"level"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Iterations int              `json:"iterations"`
	Accepted   int              `json:"accepted"`
	Converged  bool             `json:"converged"`
	InitialMSE float64          `json:"initialMSE"`
	MSE        float64          `json:"mse"`
	Lambda     float64          `json:"lambda"`
	Transform  affine.Transform `json:"transform"`
}

// Iterates from the initial transformation until the step size falls below the threshold
// or maxIterations steps are done. Checks the context for cancellation before each step
func (r *Refiner) Refine(ctx context.Context, initial affine.Transform, maxIterations int) (LevelResult, error) {
	s := r.InitialState(initial)
	res := LevelResult{
		Level:      -1,
		Width:      r.Target.Width,
		Height:     r.Target.Height,
		InitialMSE: s.BestMSE,
	}
	for s.Iteration < maxIterations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s = r.Step(s)
		if s.Accepted {
			res.Accepted++
		}
		if s.Converged {
			break
		}
	}
	res.Iterations = s.Iteration
	res.Converged = s.Converged
	res.MSE = s.BestMSE
	res.Lambda = s.Lambda
	res.Transform = s.Best
	return res, nil
}
