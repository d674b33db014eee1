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


package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	nl "github.com/mlnoga/affinereg/internal"
	"github.com/mlnoga/affinereg/internal/affine"
	"github.com/mlnoga/affinereg/internal/batch"
	"github.com/mlnoga/affinereg/internal/imageio"
	"github.com/mlnoga/affinereg/internal/lk"
	"github.com/mlnoga/affinereg/internal/raster"
	"github.com/mlnoga/affinereg/internal/rest"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "", "save warped source image to `file`, format by extension .png, .tif or .jpg")
var trans = flag.String("trans", "%auto", "save registration result as JSON to `file`. `%auto` replaces suffix of output file with .json, or uses transform.json")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var params = flag.String("params", "", "read registration parameters from JSON `file`; explicitly set flags take precedence")

var depth = flag.Int("depth", 3, "pyramid depth, index of the coarsest level. 0 registers at full resolution only")
var minLevel = flag.Int("minLevel", 0, "finest pyramid level to refine, 0=full resolution")
var downscale = flag.Int("downscale", 2, "downscale factor between pyramid levels")
var iter = flag.Int("iter", 10, "iteration base, level i gets max(1, iter*2^i/2) iterations")
var threshold = flag.Float64("threshold", 0.001, "convergence threshold on the step displacement in pixels")
var minSize = flag.Int("minSize", 8, "minimum width and height of the coarsest pyramid level")
var normalize = flag.Bool("normalize", false, "scale source and target values to [0,1] before registering")

var outDir = flag.String("outDir", "", "batch: write results and warped images into `dir`, empty=no output files")
var ext = flag.String("ext", ".tif", "batch: file extension for warped images, empty=no warped images")
var threads = flag.Int("threads", 0, "batch: maximum number of concurrent registrations, 0=number of CPUs")

var addr = flag.String("addr", ":8080", "serve: listen on this address")
var root = flag.String("root", ".", "serve: resolve file paths in requests relative to `dir`")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `dir` before serving (requires root)")
var setuid = flag.Int("setuid", -1, "serve: change user id before serving, -1=keep")

func main() {
	logWriter := nl.LogWriter()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `Affinereg Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (register|warp|batch|serve|legal|version) (args...)

Commands:
  register source target       Find the affine transform which warps source onto target
  warp image transform.json    Warp image with a transform, save result to -out
  batch target src0 ... srcn   Register multiple sources against the same target
  serve                        Serve the registration API over HTTP
  legal                        Show license and attribution information
  version                      Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if *out != "" {
			*log = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".log"
		} else {
			*log = ""
		}
	}
	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s': %s\n", *log, err.Error())
		}
	}

	// Also auto-select transform output target
	if *trans == "%auto" {
		if *out != "" {
			*trans = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".json"
		} else {
			*trans = "transform.json"
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	var err error
	switch args[0] {
	case "register":
		err = cmdRegister(args[1:], logWriter)

	case "warp":
		err = cmdWarp(args[1:], logWriter)

	case "batch":
		err = cmdBatch(args[1:], logWriter)

	case "serve":
		rest.Version = version
		if err = rest.MakeSandbox(*chroot, *setuid, logWriter); err == nil {
			err = rest.Serve(*addr, *root, logWriter)
		}

	case "legal":
		cmdLegal(logWriter)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)
		fmt.Fprintf(logWriter, "%s\n", rest.CPUInfo())

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		pprof.StopCPUProfile()
		nl.LogSync()
		os.Exit(-1)
	}
	nl.LogSync()
}

// Builds registration parameters from the optional JSON file and the command line flags
func parseParams() (*lk.Params, error) {
	p := lk.NewParamsDefault()
	if *params != "" {
		data, err := os.ReadFile(*params)
		if err != nil {
			return nil, err
		}
		if err = json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", *params, err)
		}
	}

	// flags override the file, but only where given explicitly, or where no file was given
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	useFlag := func(name string) bool { return *params == "" || set[name] }
	if useFlag("depth") {
		p.PyramidDepth = *depth
	}
	if useFlag("minLevel") {
		p.MinLevel = *minLevel
	}
	if useFlag("downscale") {
		p.Downscale = *downscale
	}
	if useFlag("iter") {
		p.IterationsBase = *iter
	}
	if useFlag("threshold") {
		p.Threshold = *threshold
	}
	if useFlag("minSize") {
		p.MinLevelSize = *minSize
	}
	return p, nil
}

func printParams(logWriter io.Writer, p *lk.Params) {
	if m, err := json.Marshal(p); err == nil {
		fmt.Fprintf(logWriter, "Parameters: %s\n", string(m))
	}
}

// Perform registration command
func cmdRegister(args []string, logWriter io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("register needs exactly a source and a target image, got %d arguments", len(args))
	}
	p, err := parseParams()
	if err != nil {
		return err
	}
	printParams(logWriter, p)

	source, err := imageio.ReadFile(args[0])
	if err != nil {
		return err
	}
	target, err := imageio.ReadFile(args[1])
	if err != nil {
		return err
	}
	if *normalize {
		source, target = source.Normalized(), target.Normalized()
	}
	fmt.Fprintf(logWriter, "Source %s: %s pixels, %v\n", args[0], source.DimensionsToString(), source.Stats())
	fmt.Fprintf(logWriter, "Target %s: %s pixels, %v\n", args[1], target.DimensionsToString(), target.Stats())

	res, err := lk.RegisterContext(context.Background(), source, target, affine.Identity(), p, logWriter)
	if err != nil {
		return err
	}
	if !res.Converged() {
		fmt.Fprintf(logWriter, "Warning: registration did not converge on all levels\n")
	}
	if res.Coverage < 0.5 {
		fmt.Fprintf(logWriter, "Warning: only %.1f%% of the target is covered by the source\n", 100*res.Coverage)
	}

	if *trans != "" {
		if err := imageio.WriteJSONFile(*trans, res); err != nil {
			return err
		}
		fmt.Fprintf(logWriter, "Wrote result to %s\n", *trans)
	}
	if *out != "" {
		warped := raster.Warp(source, res.Transform)
		if err := imageio.WriteFile(*out, warped, 0, 1); err != nil {
			return err
		}
		fmt.Fprintf(logWriter, "Wrote warped source to %s, MSE against target %.6g\n", *out, raster.MeanSquaredError(warped, target))
	}
	return nil
}

// Perform warp command
func cmdWarp(args []string, logWriter io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("warp needs exactly an image and a transform file, got %d arguments", len(args))
	}
	if *out == "" {
		return fmt.Errorf("warp needs an output file, use -out")
	}
	img, err := imageio.ReadFile(args[0])
	if err != nil {
		return err
	}
	t, err := imageio.ReadTransformFile(args[1])
	if err != nil {
		return err
	}
	if !t.IsInvertible() {
		fmt.Fprintf(logWriter, "Warning: transform %v is singular\n", t)
	}
	warped := raster.Warp(img, t)
	if err := imageio.WriteFile(*out, warped, 0, 1); err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Warped %s with %v into %s\n", args[0], t, *out)
	return nil
}

// Perform batch registration command
func cmdBatch(args []string, logWriter io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("batch needs a target and at least one source image, got %d arguments", len(args))
	}
	p, err := parseParams()
	if err != nil {
		return err
	}
	printParams(logWriter, p)

	sources, err := globFiles(args[1:])
	if err != nil {
		return err
	}
	target, err := imageio.ReadFile(args[0])
	if err != nil {
		return err
	}
	if *normalize {
		target = target.Normalized()
	}
	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			return err
		}
	}

	c := batch.NewContext(logWriter)
	if *threads > 0 {
		c.MaxThreads = *threads
	}
	c.Normalize = *normalize
	outs, err := batch.RegisterAll(context.Background(), c, target, batch.NewJobs(sources, *outDir, *ext), p)
	nl.ClearPools()

	converged, failed := 0, 0
	for _, o := range outs {
		if o == nil {
			failed++
		} else if o.Result.Converged() {
			converged++
		}
	}
	fmt.Fprintf(logWriter, "\nRegistered %d of %d images, %d converged on all levels, %d failed\n", len(outs)-failed, len(outs), converged, failed)
	return err
}

// Expands wildcards in file name arguments, keeping the order of arguments
func globFiles(patterns []string) (fileNames []string, err error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match '%s'", pattern)
		}
		fileNames = append(fileNames, matches...)
	}
	return fileNames, nil
}
