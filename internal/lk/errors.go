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


package lk

import (
	"fmt"
)

// Invalid input or parameters, detected before any numeric work starts
type ConfigurationError struct {
	Param string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Msg)
}

// The least squares system of a pyramid level cannot be solved, e.g. because the
// target image has no texture. Level is -1 if the level is not known
type NumericalError struct {
	Level int
	Msg   string
}

func (e *NumericalError) Error() string {
	if e.Level < 0 {
		return fmt.Sprintf("numerical failure: %s", e.Msg)
	}
	return fmt.Sprintf("numerical failure on pyramid level %d: %s", e.Level, e.Msg)
}
