//go:build linux || darwin
// +build linux darwin

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
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// Confines the server process to the given directory as filesystem root (requires root),
// then drops to the given user ID. Empty chroot or negative setuid skip the respective step
func MakeSandbox(chroot string, setuid int, log io.Writer) error {
	if chroot != "" {
		fmt.Fprintf(log, "Changing filesystem root to %s\n", chroot)
		if err := syscall.Chroot(chroot); err != nil {
			return errors.New(fmt.Sprintf("chroot(%s): %s", chroot, err.Error()))
		}
		if err := os.Chdir("/"); err != nil {
			return errors.New(fmt.Sprintf("chdir(/) after chroot: %s", err.Error()))
		}
	}
	if setuid >= 0 {
		fmt.Fprintf(log, "Setting user id from %d/%d to %d\n", syscall.Getuid(), syscall.Geteuid(), setuid)
		if err := syscall.Setuid(setuid); err != nil {
			return errors.New(fmt.Sprintf("setuid(%d): %s", setuid, err.Error()))
		}
	}
	return nil
}
