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
	"encoding/json"
	"math"
	"testing"
)

func TestApply(t *testing.T) {
	tr := Transform{2, 0.5, 3, -1, 1.5, -4}
	x, y := tr.Apply(1, 2)
	if x != 2+1+3 || y != -1+3-4 {
		t.Errorf("Apply(1,2)=(%g,%g); want (6,-2)", x, y)
	}
}

func TestComposeOrder(t *testing.T) {
	scale := Transform{2, 0, 0, 0, 2, 0}
	shift := Transform{1, 0, 5, 0, 1, -3}

	// scale∘shift: shift first, then scale
	x, y := scale.Compose(shift).Apply(1, 1)
	if x != 12 || y != -4 {
		t.Errorf("scale∘shift (1,1)=(%g,%g); want (12,-4)", x, y)
	}
	// shift∘scale: scale first, then shift
	x, y = shift.Compose(scale).Apply(1, 1)
	if x != 7 || y != -1 {
		t.Errorf("shift∘scale (1,1)=(%g,%g); want (7,-1)", x, y)
	}
}

func TestInvertRoundTrip(t *testing.T) {
	tcs := []Transform{
		Identity(),
		{1, 0, 12.5, 0, 1, -7.25},
		{1.02, 0.1, 3, -0.05, 0.97, -2},
		{math.Cos(0.3), -math.Sin(0.3), 10, math.Sin(0.3), math.Cos(0.3), 20},
	}
	epsilon := 1e-12
	for _, tc := range tcs {
		inv, err := tc.Invert()
		if err != nil {
			t.Errorf("Invert(%v) error %s", tc, err.Error())
			continue
		}
		if d := tc.Compose(inv).MaxAbsDiff(Identity()); d > epsilon {
			t.Errorf("t∘inv(t)=%v deviates from identity by %g", tc.Compose(inv), d)
		}
		if d := inv.Compose(tc).MaxAbsDiff(Identity()); d > epsilon {
			t.Errorf("inv(t)∘t=%v deviates from identity by %g", inv.Compose(tc), d)
		}
	}
}

func TestInvertSingular(t *testing.T) {
	tcs := []Transform{
		{0, 0, 1, 0, 0, 1},
		{1, 2, 0, 2, 4, 0},
		{math.NaN(), 0, 0, 0, 1, 0},
	}
	for _, tc := range tcs {
		if _, err := tc.Invert(); err == nil {
			t.Errorf("Invert(%v) succeeded; want error", tc)
		}
		if tc.IsInvertible() {
			t.Errorf("IsInvertible(%v)=true; want false", tc)
		}
	}
}

func TestValueSemantics(t *testing.T) {
	orig := Transform{1.1, 0.2, 3, 0.1, 0.9, 4}
	copied := orig
	scaled := orig.ScaleTranslation(2)
	if orig != copied {
		t.Errorf("ScaleTranslation modified receiver: %v", orig)
	}
	if scaled.TX != 6 || scaled.TY != 8 || scaled.A != orig.A || scaled.D != orig.D {
		t.Errorf("ScaleTranslation(2)=%v; want translation (6,8) and unchanged linear part", scaled)
	}
	_ = orig.Compose(Identity())
	if orig != copied {
		t.Errorf("Compose modified receiver: %v", orig)
	}
}

func TestParamsAndIncrement(t *testing.T) {
	delta := [NumParams]float64{0.01, 0.02, 0.5, -0.03, -0.01, 1.5}
	inc := Increment(delta)
	want := Transform{1.01, 0.02, 0.5, -0.03, 0.99, 1.5}
	if inc != want {
		t.Errorf("Increment=%v; want %v", inc, want)
	}
	if FromParams(inc.Params()) != inc {
		t.Errorf("FromParams(Params())=%v; want %v", FromParams(inc.Params()), inc)
	}
}

func TestJSON(t *testing.T) {
	var tr Transform
	if err := json.Unmarshal([]byte(`{"a":1,"b":0,"tx":2.5,"c":0,"d":1,"ty":-1}`), &tr); err != nil {
		t.Fatalf("unmarshal error %s", err.Error())
	}
	want := Transform{1, 0, 2.5, 0, 1, -1}
	if tr != want {
		t.Errorf("unmarshal=%v; want %v", tr, want)
	}
}
