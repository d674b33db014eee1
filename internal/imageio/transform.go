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
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mlnoga/affinereg/internal/affine"
)

// Writes a value as indented JSON to the given file
func WriteJSONFile(fileName string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fileName, append(data, '\n'), 0644)
}

// Reads a transformation from a JSON file. Accepts either a bare transformation
// {"a":..,"b":..,"tx":..,"c":..,"d":..,"ty":..} or a registration result with a "transform" member
func ReadTransformFile(fileName string) (affine.Transform, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return affine.Transform{}, err
	}
	return ParseTransform(data)
}

// Parses a transformation from JSON, see ReadTransformFile
func ParseTransform(data []byte) (affine.Transform, error) {
	var wrapped struct {
		Transform *affine.Transform `json:"transform"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return affine.Transform{}, err
	}
	if wrapped.Transform != nil {
		return *wrapped.Transform, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return affine.Transform{}, err
	}
	for _, key := range []string{"a", "b", "tx", "c", "d", "ty"} {
		if _, ok := raw[key]; !ok {
			return affine.Transform{}, errors.New(fmt.Sprintf("transform is missing coefficient '%s'", key))
		}
	}
	var t affine.Transform
	if err := json.Unmarshal(data, &t); err != nil {
		return affine.Transform{}, err
	}
	return t, nil
}
