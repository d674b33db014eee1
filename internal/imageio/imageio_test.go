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

package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/mlnoga/affinereg/internal/affine"
	"github.com/mlnoga/affinereg/internal/raster"
)

func gradientImage(width, height int) *raster.Image {
	img := raster.NewImage(width, height, nil)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Data[y*width+x] = float64(x+y) / float64(width+height-2)
		}
	}
	return img
}

func TestLosslessRoundTrip(t *testing.T) {
	dir := t.TempDir()
	img := gradientImage(17, 9)
	for _, name := range []string{"out.png", "out.tif", "OUT.TIFF"} {
		fileName := filepath.Join(dir, name)
		if err := WriteFile(fileName, img, 0, 1); err != nil {
			t.Fatalf("%s: write error %s", name, err.Error())
		}
		back, err := ReadFile(fileName)
		if err != nil {
			t.Fatalf("%s: read error %s", name, err.Error())
		}
		if !back.SameShape(img) {
			t.Fatalf("%s: size %s; want %s", name, back.DimensionsToString(), img.DimensionsToString())
		}
		for i := range img.Data {
			if math.Abs(back.Data[i]-img.Data[i]) > 1.0/65535 {
				t.Errorf("%s: pixel %d=%g; want %g", name, i, back.Data[i], img.Data[i])
				break
			}
		}
	}
}

func TestJPGRoundTrip(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "out.jpg")
	img := gradientImage(32, 24)
	if err := WriteFile(fileName, img, 0, 1); err != nil {
		t.Fatalf("write error %s", err.Error())
	}
	back, err := ReadFile(fileName)
	if err != nil {
		t.Fatalf("read error %s", err.Error())
	}
	if mse := raster.MeanSquaredError(img, back); mse > 1e-4 {
		t.Errorf("MSE after JPG round trip %g; want below 1e-4", mse)
	}
}

func TestWriteUnknownExtension(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "out.fits")
	if err := WriteFile(fileName, gradientImage(4, 4), 0, 1); err == nil {
		t.Errorf("writing %s succeeded; want error", fileName)
	}
	if _, err := os.Stat(fileName); !os.IsNotExist(err) {
		t.Errorf("file %s was created", fileName)
	}
}

func TestWriteClampsAndScales(t *testing.T) {
	img := raster.NewImage(4, 1, []float64{-1, 10, 15, math.NaN()})
	var buf bytes.Buffer
	if err := WritePNG16(&buf, img, 10, 20, 1); err != nil {
		t.Fatalf("write error %s", err.Error())
	}
	back, _, err := Read(&buf)
	if err != nil {
		t.Fatalf("read error %s", err.Error())
	}
	want := []float64{0, 0, 0.5, 0}
	for i, w := range want {
		if math.Abs(back.Data[i]-w) > 1.0/65535 {
			t.Errorf("pixel %d=%g; want %g", i, back.Data[i], w)
		}
	}
}

func TestColorToLuminance(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 1))
	src.Set(0, 0, color.RGBA{255, 255, 255, 255})
	src.Set(1, 0, color.RGBA{255, 0, 0, 255})
	src.Set(2, 0, color.RGBA{0, 0, 0, 0})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode error %s", err.Error())
	}
	img, format, err := Read(&buf)
	if err != nil || format != "png" {
		t.Fatalf("read %q, %v; want png", format, err)
	}
	want := []float64{1, lumR, 0}
	for i, w := range want {
		if math.Abs(img.Data[i]-w) > 1e-9 {
			t.Errorf("luminance %d=%g; want %g", i, img.Data[i], w)
		}
	}
	if l := Luminance(colorful.Color{R: 2, G: -1, B: 0.5}); math.Abs(l-(lumR+0.5*lumB)) > 1e-12 {
		t.Errorf("clamped luminance %g; want %g", l, lumR+0.5*lumB)
	}
}

func TestTransformFiles(t *testing.T) {
	dir := t.TempDir()
	want := affine.Transform{A: 1.01, B: 0.02, TX: 3.5, C: -0.02, D: 0.99, TY: -1.25}

	bare := filepath.Join(dir, "bare.json")
	if err := WriteJSONFile(bare, want); err != nil {
		t.Fatalf("write error %s", err.Error())
	}
	wrapped := filepath.Join(dir, "result.json")
	if err := WriteJSONFile(wrapped, map[string]interface{}{"transform": want, "mse": 0.5}); err != nil {
		t.Fatalf("write error %s", err.Error())
	}
	for _, fileName := range []string{bare, wrapped} {
		got, err := ReadTransformFile(fileName)
		if err != nil {
			t.Fatalf("%s: read error %s", fileName, err.Error())
		}
		if got != want {
			t.Errorf("%s: transform %v; want %v", fileName, got, want)
		}
	}

	if _, err := ParseTransform([]byte(`{"a":1,"b":0,"tx":0}`)); err == nil {
		t.Errorf("incomplete transform parsed; want error")
	}
}
