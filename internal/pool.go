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


package internal

import (
	"runtime"
	"sync"
)

// Pool of constant sized float64 arrays, to reduce memory allocation overhead
// for scratch buffers in convolutions and residual computations.
// Arrays handed out are not cleared, callers must overwrite all entries.
var poolFloat64 = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

// Clears all memory pools and triggers garbage collection
func ClearPools() {
	poolFloat64.Lock()
	poolFloat64.m = make(map[int]*sync.Pool)
	poolFloat64.Unlock()
	runtime.GC()
}

// Returns a pool for []float64 arrays of the given size
func getSizedPoolFloat64(size int) *sync.Pool {
	poolFloat64.RLock()
	pool := poolFloat64.m[size]
	poolFloat64.RUnlock()
	if pool != nil {
		return pool
	}

	poolFloat64.Lock()
	defer poolFloat64.Unlock()
	if pool = poolFloat64.m[size]; pool == nil { // may have raced with another writer
		pool = &sync.Pool{
			New: func() interface{} {
				return make([]float64, size)
			},
		}
		poolFloat64.m[size] = pool
	}
	return pool
}

// Retrieves an array of given size and type from pool
func GetArrayOfFloat64FromPool(size int) []float64 {
	pool := getSizedPoolFloat64(size)
	return pool.Get().([]float64)
}

// Returns an array of given size and type to the pool
func PutArrayOfFloat64IntoPool(arr []float64) {
	if cap(arr) == 0 {
		return
	}
	pool := getSizedPoolFloat64(cap(arr))
	pool.Put(arr[:cap(arr)])
}
