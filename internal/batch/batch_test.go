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

package batch

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mlnoga/affinereg/internal/affine"
	"github.com/mlnoga/affinereg/internal/imageio"
	"github.com/mlnoga/affinereg/internal/lk"
	"github.com/mlnoga/affinereg/internal/raster"
)

func blobImage(width, height int) *raster.Image {
	img := raster.NewImage(width, height, nil)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx1, dy1 := float64(x)-0.35*float64(width), float64(y)-0.4*float64(height)
			dx2, dy2 := float64(x)-0.7*float64(width), float64(y)-0.65*float64(height)
			img.Data[y*width+x] = 0.6*math.Exp(-(dx1*dx1+dy1*dy1)/50) + 0.35*math.Exp(-(dx2*dx2+dy2*dy2)/30)
		}
	}
	return img
}

func TestMaterializeAllKeepsOrderAndJoinsErrors(t *testing.T) {
	var running, maxRunning int32
	promises := make([]Promise, 6)
	for i := range promises {
		i := i
		promises[i] = func() (*Outcome, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
					break
				}
			}
			defer atomic.AddInt32(&running, -1)
			if i%3 == 2 {
				return nil, errors.New("failed " + string(rune('0'+i)))
			}
			return &Outcome{Job: Job{ID: i}}, nil
		}
	}
	outs, err := MaterializeAll(promises, 2)
	if err == nil || !strings.Contains(err.Error(), "failed 2") || !strings.Contains(err.Error(), "failed 5") {
		t.Errorf("error %v; want both failures joined", err)
	}
	if len(outs) != len(promises) {
		t.Fatalf("len(outs)=%d; want %d", len(outs), len(promises))
	}
	for i, o := range outs {
		if i%3 == 2 {
			if o != nil {
				t.Errorf("outs[%d]=%v; want nil", i, o)
			}
		} else if o == nil || o.Job.ID != i {
			t.Errorf("outs[%d]=%v; want job %d", i, o, i)
		}
	}
	if maxRunning > 2 {
		t.Errorf("%d promises ran at once; want at most 2", maxRunning)
	}
}

func TestConcurrencyLimits(t *testing.T) {
	c := &Context{Log: io.Discard, MemoryMB: 1024, WorkMB: 100, MaxThreads: 8}
	if got := c.Concurrency(1000); got != 8 {
		t.Errorf("small images: concurrency %d; want 8", got)
	}
	// 100 MB hold 3 registrations of a 256k pixel image at 128 bytes per pixel
	if got := c.Concurrency(256 * 1024); got != 3 {
		t.Errorf("large images: concurrency %d; want 3", got)
	}
	if got := c.Concurrency(1 << 30); got != 1 {
		t.Errorf("huge images: concurrency %d; want 1", got)
	}
}

func TestNewJobs(t *testing.T) {
	jobs := NewJobs([]string{"a/b/first.png", "second.tif"}, "out", ".tif")
	if jobs[0].ResultFile != filepath.Join("out", "first.json") || jobs[0].WarpFile != filepath.Join("out", "first.tif") {
		t.Errorf("job 0 %+v; want out/first.json and out/first.tif", jobs[0])
	}
	if jobs[1].ID != 1 || jobs[1].Source != "second.tif" {
		t.Errorf("job 1 %+v; want id 1 for second.tif", jobs[1])
	}
	if jobs := NewJobs([]string{"x.png"}, "", ".tif"); jobs[0].ResultFile != "" || jobs[0].WarpFile != "" {
		t.Errorf("job without output dir %+v; want no output files", jobs[0])
	}
}

func TestRegisterAll(t *testing.T) {
	dir := t.TempDir()
	target := blobImage(48, 48)
	shifts := []float64{1, -0.5}
	sources := []string{}
	for i, s := range shifts {
		// sampling the target at (x-s, y+s) means target pixels map onto the source by (+s, -s)
		src := raster.Warp(target, affine.Transform{A: 1, TX: -s, D: 1, TY: s})
		name := filepath.Join(dir, "src"+string(rune('a'+i))+".png")
		if err := imageio.WriteFile(name, src, 0, 1); err != nil {
			t.Fatalf("write error %s", err.Error())
		}
		sources = append(sources, name)
	}
	sources = append(sources, filepath.Join(dir, "missing.png"))

	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0755); err != nil {
		t.Fatalf("mkdir error %s", err.Error())
	}
	params := lk.NewParams(1, 0)
	params.IterationsBase = 20
	outs, err := RegisterAll(context.Background(), NewContext(io.Discard), target, NewJobs(sources, outDir, ".tif"), params)
	if err == nil || !strings.Contains(err.Error(), "missing.png") {
		t.Errorf("error %v; want failure for missing.png", err)
	}
	if len(outs) != 3 || outs[2] != nil {
		t.Fatalf("outcomes %v; want 3 with the last one nil", outs)
	}
	for i, s := range shifts {
		o := outs[i]
		if o == nil {
			t.Fatalf("outcome %d is nil", i)
		}
		tr := o.Result.Transform
		if math.Abs(tr.TX-s) > 0.2 || math.Abs(tr.TY+s) > 0.2 {
			t.Errorf("source %d: translation (%g,%g); want (%g,%g)", i, tr.TX, tr.TY, s, -s)
		}
		back, err := imageio.ReadTransformFile(o.Job.ResultFile)
		if err != nil || back != tr {
			t.Errorf("source %d: result file has %v, %v; want %v", i, back, err, tr)
		}
		if _, err := os.Stat(o.Job.WarpFile); err != nil {
			t.Errorf("source %d: warped image missing: %s", i, err.Error())
		}
	}
}

func TestRegisterAllKeepsErrorTypes(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "src.png")
	if err := imageio.WriteFile(name, blobImage(32, 32), 0, 1); err != nil {
		t.Fatalf("write error %s", err.Error())
	}
	flat := raster.NewImage(32, 32, nil)
	for i := range flat.Data {
		flat.Data[i] = 0.5
	}
	jobs := NewJobs([]string{name, filepath.Join(dir, "missing.png")}, "", "")
	_, err := RegisterAll(context.Background(), NewContext(io.Discard), flat, jobs, lk.NewParams(1, 0))
	var numErr *lk.NumericalError
	if !errors.As(err, &numErr) {
		t.Errorf("error %v; want a NumericalError for the flat target", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error %v; want os.ErrNotExist for missing.png", err)
	}
}

func TestRegisterAllNormalizes(t *testing.T) {
	dir := t.TempDir()
	target := blobImage(48, 48)
	dim := target.Clone()
	for i, v := range dim.Data {
		dim.Data[i] = 0.5*v + 0.1
	}
	name := filepath.Join(dir, "dim.png")
	if err := imageio.WriteFile(name, dim, 0, 1); err != nil {
		t.Fatalf("write error %s", err.Error())
	}

	c := NewContext(io.Discard)
	c.Normalize = true
	outs, err := RegisterAll(context.Background(), c, target.Normalized(), NewJobs([]string{name}, "", ""), lk.NewParams(1, 0))
	if err != nil {
		t.Fatalf("RegisterAll error %s", err.Error())
	}
	res := outs[0].Result
	if d := res.Transform.MaxAbsDiff(affine.Identity()); d > 0.01 {
		t.Errorf("transform %v; want identity", res.Transform)
	}
	if res.MSE > 1e-6 {
		t.Errorf("MSE %g; want below 1e-6 after normalization", res.MSE)
	}
}
