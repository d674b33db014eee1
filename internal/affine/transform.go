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


package affine

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// A 2D affine coordinate transformation
//
//	x' = A*x + B*y + TX
//	y' = C*x + D*y + TY
//
// Transforms are values. All operations return new transforms and never
// modify the receiver, so a transform can be stored and shared freely.
type Transform struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	TX float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	TY float64 `json:"ty"`
}

// Determinants below this are treated as singular
const singularEpsilon = 1e-12

// Number of affine parameters
const NumParams = 6

func Identity() Transform {
	return Transform{1, 0, 0, 0, 1, 0}
}

// Creates a transform from parameters in order a, b, tx, c, d, ty
func FromParams(p [NumParams]float64) Transform {
	return Transform{p[0], p[1], p[2], p[3], p[4], p[5]}
}

// Returns the parameters in order a, b, tx, c, d, ty
func (t Transform) Params() [NumParams]float64 {
	return [NumParams]float64{t.A, t.B, t.TX, t.C, t.D, t.TY}
}

// Creates the small perturbation identity+delta, with delta in parameter order
func Increment(delta [NumParams]float64) Transform {
	t := FromParams(delta)
	t.A += 1
	t.D += 1
	return t
}

func (t Transform) String() string {
	return fmt.Sprintf("x'=%.5gx %+.5gy %+.4g, y'=%.5gx %+.5gy %+.4g",
		t.A, t.B, t.TX, t.C, t.D, t.TY)
}

// Apply transformation to the given coordinates
func (t Transform) Apply(x, y float64) (xP, yP float64) {
	return t.A*x + t.B*y + t.TX, t.C*x + t.D*y + t.TY
}

// Determinant of the linear part
func (t Transform) Det() float64 {
	return t.A*t.D - t.B*t.C
}

// True if all parameters are finite and the linear part is invertible
func (t Transform) IsInvertible() bool {
	for _, p := range t.Params() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
	}
	return math.Abs(t.Det()) >= singularEpsilon
}

// Returns a copy with the translation multiplied by f. The linear part is unchanged
func (t Transform) ScaleTranslation(f float64) Transform {
	t.TX *= f
	t.TY *= f
	return t
}

// Returns the 3x3 homogeneous matrix with implicit bottom row [0 0 1]
func (t Transform) Homogeneous() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t.A, t.B, t.TX,
		t.C, t.D, t.TY,
		0, 0, 1,
	})
}

// Truncates a homogeneous 3x3 matrix to its top two rows
func FromHomogeneous(m mat.Matrix) Transform {
	return Transform{
		m.At(0, 0), m.At(0, 1), m.At(0, 2),
		m.At(1, 0), m.At(1, 1), m.At(1, 2),
	}
}

// Returns the composition t∘u, which applies u first and t second.
// In homogeneous form this is the matrix product t*u
func (t Transform) Compose(u Transform) Transform {
	var prod mat.Dense
	prod.Mul(t.Homogeneous(), u.Homogeneous())
	return FromHomogeneous(&prod)
}

// Inverts the transformation. Returns an error if the linear part is singular
func (t Transform) Invert() (inv Transform, err error) {
	if !t.IsInvertible() {
		return Transform{}, errors.New(fmt.Sprintf("transform has no inverse, det=%g", t.Det()))
	}
	var m mat.Dense
	if err = m.Inverse(t.Homogeneous()); err != nil {
		return Transform{}, fmt.Errorf("inverting transform: %w", err)
	}
	return FromHomogeneous(&m), nil
}

// Returns the largest absolute difference between corresponding parameters
func (t Transform) MaxAbsDiff(u Transform) float64 {
	p, q := t.Params(), u.Params()
	max := 0.0
	for i := range p {
		if d := math.Abs(p[i] - q[i]); d > max {
			max = d
		}
	}
	return max
}
