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
	"errors"
	"fmt"

	"github.com/mlnoga/affinereg/internal/affine"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Hessians with a larger condition number are treated as singular
const maxHessianCond = 1e13

// The linearized least squares system of one pyramid level.
// Fields holds the steepest descent images in parameter order a, b, tx, c, d, ty,
// that is x*gx, y*gx, gx, x*gy, y*gy, gy. Hessian is the Gauss-Newton approximation,
// the sum over all pixels of the outer products of the field values.
type System struct {
	Width   int
	Height  int
	Fields  [affine.NumParams][]float64
	Hessian [affine.NumParams][affine.NumParams]float64
}

// Builds steepest descent images and Hessian from the gradient of the target image
func NewSystem(gx, gy []float64, width, height int) *System {
	s := &System{Width: width, Height: height}
	for i := range s.Fields {
		s.Fields[i] = make([]float64, width*height)
	}
	xdx, ydx, xdy, ydy := s.Fields[0], s.Fields[1], s.Fields[3], s.Fields[4]
	copy(s.Fields[2], gx)
	copy(s.Fields[5], gy)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			xdx[i] = float64(x) * gx[i]
			ydx[i] = float64(y) * gx[i]
			xdy[i] = float64(x) * gy[i]
			ydy[i] = float64(y) * gy[i]
		}
	}

	// Upper triangle only, then mirror, so the Hessian is exactly symmetric
	for i := 0; i < affine.NumParams; i++ {
		for j := i; j < affine.NumParams; j++ {
			s.Hessian[i][j] = floats.Dot(s.Fields[i], s.Fields[j])
		}
	}
	for i := 1; i < affine.NumParams; i++ {
		for j := 0; j < i; j++ {
			s.Hessian[i][j] = s.Hessian[j][i]
		}
	}
	return s
}

// Projects the residual error image onto the steepest descent images
func (s *System) GradientVector(residual []float64) (g [affine.NumParams]float64) {
	for i, f := range s.Fields {
		g[i] = floats.Dot(residual, f)
	}
	return g
}

// Returns the Hessian with its diagonal scaled by 1+lambda, as a gonum symmetric matrix
func (s *System) Damped(lambda float64) *mat.SymDense {
	h := mat.NewSymDense(affine.NumParams, nil)
	for i := 0; i < affine.NumParams; i++ {
		for j := i; j < affine.NumParams; j++ {
			h.SetSym(i, j, s.Hessian[i][j])
		}
		h.SetSym(i, i, s.Hessian[i][i]*(1+lambda))
	}
	return h
}

// Checks that the undamped Hessian is positive definite and reasonably conditioned
func (s *System) CheckHessian() error {
	var chol mat.Cholesky
	if ok := chol.Factorize(s.Damped(0)); !ok {
		return errors.New("hessian is not positive definite, image has too little structure")
	}
	if cond := chol.Cond(); cond > maxHessianCond {
		return errors.New(fmt.Sprintf("hessian is near singular, condition number %.3g", cond))
	}
	return nil
}

// Solves the damped normal equations (H + lambda*diag(H)) * delta = g
func (s *System) Solve(g [affine.NumParams]float64, lambda float64) (delta [affine.NumParams]float64, err error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(s.Damped(lambda)); !ok {
		return delta, errors.New(fmt.Sprintf("damped hessian with lambda %g is not positive definite", lambda))
	}
	var x mat.VecDense
	if err = chol.SolveVecTo(&x, mat.NewVecDense(affine.NumParams, g[:])); err != nil {
		return delta, fmt.Errorf("solving damped system: %w", err)
	}
	for i := range delta {
		delta[i] = x.AtVec(i)
	}
	return delta, nil
}
