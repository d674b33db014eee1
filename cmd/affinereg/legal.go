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
	"fmt"
	"io"
)

// Licensing information
const legal = `Affinereg is Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

The binary version of this program uses several open source libraries and components, which come with their own licensing terms:

| Library                                                                            | License type                            | Usage    |
|------------------------------------------------------------------------------------|-----------------------------------------|----------|
| [github.com/gin-gonic/gin](https://github.com/gin-gonic/gin)                       | MIT License                             |          |
| [github.com/go-playground/validator/](https://github.com/go-playground/validator/) | MIT License                             | indirect |
| [github.com/json-iterator/go](https://github.com/json-iterator/go)                 | MIT License                             | indirect |
| [github.com/klauspost/cpuid](https://github.com/klauspost/cpuid)                   | MIT License                             |          |
| [github.com/lucasb-eyer/go-colorful](https://github.com/lucasb-eyer/go-colorful)   | MIT License                             |          |
| [github.com/mattn/go-isatty](https://github.com/mattn/go-isatty)                   | MIT License                             | indirect |
| [github.com/pbnjay/memory](https://github.com/pbnjay/memory)                       | BSD 3-Clause "New" or "Revised" License |          |
| [github.com/valyala/fastrand](https://github.com/valyala/fastrand)                 | MIT License                             | tests    |
| [golang.org/x/image](https://golang.org/x/image)                                   | BSD 3-Clause                            |          |
| [golang.org/x/sys](https://golang.org/x/sys)                                       | BSD 3-Clause                            | indirect |
| [golang.org/x/text](https://golang.org/x/text)                                     | BSD 3-Clause                            | indirect |
| [gonum.org/v1/gonum](https://gonum.org/v1/gonum)                                   | BSD 3-Clause "New" or "Revised" License |          |
| [google.golang.org/protobuf](https://google.golang.org/protobuf)                   | BSD 3-Clause                            | indirect |
| [gopkg.in/yaml.v3](https://gopkg.in/yaml.v3)                                       | MIT and Apache 2.0 License              | indirect |
`

// Attributions for the directly used libraries
var attributions = []struct{ URL, Copyright, License string }{
	{"https://github.com/gonum/gonum", "Copyright (c) 2013 The Gonum Authors. All rights reserved.", "BSD 3-Clause"},
	{"https://github.com/pbnjay/memory", "Copyright (c) 2017, Jeremy Jay. All rights reserved.", "BSD 3-Clause"},
	{"https://github.com/valyala/fastrand", "Copyright (c) 2017 Aliaksandr Valialkin", "MIT"},
	{"https://github.com/lucasb-eyer/go-colorful", "Copyright (c) 2013 Lucas Beyer", "MIT"},
	{"https://github.com/klauspost/cpuid", "Copyright (c) 2015 Klaus Post", "MIT"},
	{"https://github.com/gin-gonic/gin", "Copyright (c) 2014 Manuel Martínez-Almeida", "MIT"},
	{"https://golang.org/x/image", "Copyright (c) 2009 The Go Authors. All rights reserved.", "BSD 3-Clause"},
}

// Show license and attribution information
func cmdLegal(logWriter io.Writer) {
	fmt.Fprint(logWriter, legal)
	fmt.Fprintf(logWriter, "\nATTRIBUTIONS\n\n")
	for i, a := range attributions {
		fmt.Fprintf(logWriter, "A%d. %s is %s\nLicensed under the %s license, see the repository for the full license text.\n\n", i+1, a.URL, a.Copyright, a.License)
	}
}
