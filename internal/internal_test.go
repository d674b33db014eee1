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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPoolSizes(t *testing.T) {
	for _, size := range []int{1, 17, 4096} {
		arr := GetArrayOfFloat64FromPool(size)
		if len(arr) != size {
			t.Errorf("len=%d; want %d", len(arr), size)
		}
		PutArrayOfFloat64IntoPool(arr[:0])
		again := GetArrayOfFloat64FromPool(size)
		if len(again) != size {
			t.Errorf("len after put=%d; want %d", len(again), size)
		}
	}
	PutArrayOfFloat64IntoPool(nil)
	ClearPools()
	if arr := GetArrayOfFloat64FromPool(5); len(arr) != 5 {
		t.Errorf("len after clear=%d; want 5", len(arr))
	}
}

func TestLogAlsoToFile(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "test.log")
	if err := LogAlsoToFile(fileName); err != nil {
		t.Fatalf("LogAlsoToFile error %s", err.Error())
	}
	LogPrintf("level %d: %s\n", 2, "converged")
	LogPrintln("done")
	LogSync()

	data, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatalf("read error %s", err.Error())
	}
	if got := string(data); !strings.Contains(got, "level 2: converged\n") || !strings.HasSuffix(got, "done\n") {
		t.Errorf("log file %q; want both lines", got)
	}

	if err := LogAlsoToFile(filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Errorf("logging into a missing directory succeeded; want error")
	}
}
