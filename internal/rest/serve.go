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


package rest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/cpuid"
	"github.com/mlnoga/affinereg/internal/affine"
	"github.com/mlnoga/affinereg/internal/imageio"
	"github.com/mlnoga/affinereg/internal/lk"
	"github.com/mlnoga/affinereg/internal/raster"
	"github.com/mlnoga/affinereg/web"
)

// Version reported by the ping endpoint, set by the main program
var Version = "dev"

// Serves registration requests on the given address. File paths in requests are
// resolved relative to root, and must not leave it
func Serve(addr, root string, log io.Writer) error {
	fmt.Fprintf(log, "Serving on %s from %s, %s\n", addr, root, CPUInfo())
	return NewRouter(root, log).Run(addr)
}

// Returns a router for the registration API
func NewRouter(root string, log io.Writer) *gin.Engine {
	s := &server{root: root, log: log}
	r := gin.New()
	r.Use(gin.LoggerWithWriter(log), gin.Recovery())
	r.GET("/", func(c *gin.Context) { c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML) })
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", s.getPing)
			v1.POST("/register", s.postRegister)
			v1.POST("/warp", s.postWarp)
		}
	}
	return r
}

// One-line description of the processor
func CPUInfo() string {
	return fmt.Sprintf("%s with %d logical cores, AVX2 %v, GOMAXPROCS %d",
		strings.TrimSpace(cpuid.CPU.BrandName), cpuid.CPU.LogicalCores, cpuid.CPU.AVX2(), runtime.GOMAXPROCS(0))
}

type server struct {
	root string
	log  io.Writer
}

func (s *server) getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"version": Version,
		"cpu":     CPUInfo(),
	})
}

// True if the path is relative and stays within the serving root
func isPathAllowed(path string) bool {
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return false
	}
	for _, elem := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if elem == ".." {
			return false
		}
	}
	return true
}

// Resolves request paths against the serving root. Empty optional paths stay empty
func (s *server) resolve(paths map[string]*string, optional ...string) error {
	for name, p := range paths {
		if *p == "" && contains(optional, name) {
			continue
		}
		if !isPathAllowed(*p) {
			return errors.New(fmt.Sprintf("%s: path '%s' is not allowed, must be relative and not contain '..'", name, *p))
		}
		*p = filepath.Join(s.root, filepath.FromSlash(*p))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

type postRegisterArgs struct {
	Source string     `json:"source"`
	Target string     `json:"target"`
	Params *lk.Params `json:"params"`
	Out    string     `json:"out"`  // optional JSON result file
	Warp   string     `json:"warp"` // optional warped source image file
}

type postRegisterReply struct {
	*lk.Result
	Converged bool   `json:"converged"`
	Log       string `json:"log"`
}

func (s *server) postRegister(c *gin.Context) {
	var args postRegisterArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	paths := map[string]*string{"source": &args.Source, "target": &args.Target, "out": &args.Out, "warp": &args.Warp}
	if err := s.resolve(paths, "out", "warp"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Params == nil {
		args.Params = lk.NewParamsDefault()
	}

	source, err := imageio.ReadFile(args.Source)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	target, err := imageio.ReadFile(args.Target)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var logBuf bytes.Buffer
	res, err := lk.RegisterContext(c.Request.Context(), source, target, affine.Identity(), args.Params, io.MultiWriter(&logBuf, s.log))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "log": logBuf.String()})
		return
	}
	if args.Out != "" {
		if err := imageio.WriteJSONFile(args.Out, res); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if args.Warp != "" {
		if err := imageio.WriteFile(args.Warp, raster.Warp(source, res.Transform), 0, 1); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, postRegisterReply{Result: res, Converged: res.Converged(), Log: logBuf.String()})
}

// Maps registration errors to HTTP status codes
func statusFor(err error) int {
	var confErr *lk.ConfigurationError
	var numErr *lk.NumericalError
	switch {
	case errors.As(err, &confErr):
		return http.StatusBadRequest
	case errors.As(err, &numErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type postWarpArgs struct {
	Image     string            `json:"image"`
	Transform *affine.Transform `json:"transform"`
	Out       string            `json:"out"`
}

func (s *server) postWarp(c *gin.Context) {
	var args postWarpArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Transform == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing transform"})
		return
	}
	if err := s.resolve(map[string]*string{"image": &args.Image, "out": &args.Out}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	img, err := imageio.ReadFile(args.Image)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	warped := raster.Warp(img, *args.Transform)
	if err := imageio.WriteFile(args.Out, warped, 0, 1); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	fmt.Fprintf(s.log, "Warped %s with %v into %s\n", args.Image, *args.Transform, args.Out)
	c.JSON(http.StatusOK, gin.H{"width": warped.Width, "height": warped.Height, "stats": warped.Stats().String()})
}
