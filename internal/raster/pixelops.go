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


package raster

import (
	"runtime"
)

//////////////////////////////////////////////////////////////////
// CPU-limited row operations. Parallelized across CPUs
//////////////////////////////////////////////////////////////////

// A row function. Processes rows [lower, upper) of an image. For parallelization across CPUs.
// Must only write to output rows in its own range.
type RowFunction func(lower, upper int)

// Below this many pixels, row functions run on the calling goroutine
const minPixelsForParallel = 64 * 64

// Apply given row function to all rows of an image of given size. Uses thread parallelism
// across all available CPUs, and returns once all rows are processed.
func ApplyRowFunction(width, height int, rf RowFunction) {
	if width*height < minPixelsForParallel || runtime.NumCPU() == 1 {
		rf(0, height)
		return
	}

	// split into 8*NumCPU() work packages, limit parallelism to NumCPU()
	numBatches := 8 * runtime.NumCPU()
	batchSize := (height + numBatches - 1) / numBatches
	sem := make(chan bool, runtime.NumCPU())
	for lower := 0; lower < height; lower += batchSize {
		upper := lower + batchSize
		if upper > height {
			upper = height
		}

		sem <- true
		go func(lower, upper int) {
			rf(lower, upper)
			<-sem
		}(lower, upper)
	}

	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}
}
