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
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mlnoga/affinereg/internal/affine"
	"github.com/mlnoga/affinereg/internal/imageio"
	"github.com/mlnoga/affinereg/internal/lk"
	"github.com/mlnoga/affinereg/internal/raster"
	"github.com/pbnjay/memory"
)

// Estimated working set of one registration, in bytes per pixel of the full resolution image.
// Covers both pyramids, gradients, six steepest descent images and residual buffers
const bytesPerPixel = 16 * 8

// An execution context for batch registration
type Context struct {
	Log        io.Writer
	MemoryMB   int // memory.TotalMemory()/1024/1024
	WorkMB     int // MemoryMB*7/10, available to concurrent registrations
	MaxThreads int `json:"maxThreads"`
	Normalize  bool `json:"normalize"` // scale each source image to [0,1] before registration
}

func NewContext(log io.Writer) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	return &Context{
		Log:        log,
		MemoryMB:   memoryMB,
		WorkMB:     memoryMB * 7 / 10,
		MaxThreads: runtime.GOMAXPROCS(0),
	}
}

// Number of registrations of images with the given pixel count that may run at once,
// limited by threads and working memory. At least one
func (c *Context) Concurrency(pixels int) int {
	threads := c.MaxThreads
	if threads < 1 {
		threads = 1
	}
	if pixels > 0 && c.WorkMB > 0 {
		byMemory := int(int64(c.WorkMB) * 1024 * 1024 / (int64(pixels) * bytesPerPixel))
		if byMemory < threads {
			threads = byMemory
		}
	}
	if threads < 1 {
		threads = 1
	}
	return threads
}

// A single registration of a source image file against the shared target
type Job struct {
	ID         int    `json:"id"`
	Source     string `json:"source"`
	ResultFile string `json:"resultFile,omitempty"` // JSON result, skipped if empty
	WarpFile   string `json:"warpFile,omitempty"`   // source warped onto the target, skipped if empty
}

// Outcome of a job
type Outcome struct {
	Job    Job        `json:"job"`
	Result *lk.Result `json:"result"`
}

// Creates jobs for the given source files. If outDir is not empty, results and warped
// images are written there, named after the source with suffix .json and the given image extension
func NewJobs(sources []string, outDir, warpExt string) []Job {
	jobs := make([]Job, len(sources))
	for i, src := range sources {
		jobs[i] = Job{ID: i, Source: src}
		if outDir == "" {
			continue
		}
		base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		jobs[i].ResultFile = filepath.Join(outDir, base+".json")
		if warpExt != "" {
			jobs[i].WarpFile = filepath.Join(outDir, base+warpExt)
		}
	}
	return jobs
}

// A promise for an outcome. Returns a materialized outcome, or an error
type Promise func() (*Outcome, error)

// Materializes all promises with given concurrency limit. Outcomes are returned in input order,
// with nil entries for failed promises. Errors of all failed promises are joined
func MaterializeAll(ins []Promise, maxThreads int) (outs []*Outcome, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	outs = make([]*Outcome, len(ins))
	limiter := make(chan bool, maxThreads)
	var collected []error
	errs := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			o, err := theIn() // materialize the promise
			if err != nil {
				errs <- err
				return
			}
			outs[i] = o
			errs <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < len(ins); i++ { // collect errors
		if e := <-errs; e != nil {
			collected = append(collected, e)
		}
	}
	return outs, errors.Join(collected...)
}

// Registers all jobs against the given target image, concurrently within the limits of the context.
// Failed jobs have nil outcomes, their errors are joined into the returned error
func RegisterAll(ctx context.Context, c *Context, target *raster.Image, jobs []Job, params *lk.Params) ([]*Outcome, error) {
	threads := c.Concurrency(target.Pixels())
	fmt.Fprintf(c.Log, "Registering %d images against %s pixel target with %d concurrent jobs (%d MB memory, %d MB for work)\n",
		len(jobs), target.DimensionsToString(), threads, c.MemoryMB, c.WorkMB)

	promises := make([]Promise, len(jobs))
	for i, job := range jobs {
		promises[i] = makePromise(ctx, c, target, job, params)
	}
	return MaterializeAll(promises, threads)
}

func makePromise(ctx context.Context, c *Context, target *raster.Image, job Job, params *lk.Params) Promise {
	return func() (*Outcome, error) {
		start := time.Now()
		source, err := imageio.ReadFile(job.Source)
		if err != nil {
			return nil, fmt.Errorf("%d: %w", job.ID, err)
		}
		if c.Normalize {
			source = source.Normalized()
		}
		res, err := lk.RegisterContext(ctx, source, target, affine.Identity(), params, nil)
		if err != nil {
			return nil, fmt.Errorf("%d: %s: %w", job.ID, job.Source, err)
		}
		if job.ResultFile != "" {
			if err := imageio.WriteJSONFile(job.ResultFile, res); err != nil {
				return nil, fmt.Errorf("%d: %w", job.ID, err)
			}
		}
		if job.WarpFile != "" {
			if err := imageio.WriteFile(job.WarpFile, raster.Warp(source, res.Transform), 0, 1); err != nil {
				return nil, fmt.Errorf("%d: %w", job.ID, err)
			}
		}
		status := "converged"
		if !res.Converged() {
			status = "not converged"
		}
		fmt.Fprintf(c.Log, "%d: %s %v, MSE %.6g, %s in %v\n", job.ID, job.Source, res.Transform, res.MSE, status, time.Since(start))
		return &Outcome{Job: job, Result: res}, nil
	}
}
