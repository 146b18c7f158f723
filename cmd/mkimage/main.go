// Copyright (C) 2024 the lst authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// mkimage runs the bootstrap pipeline that builds a fresh image:
// build the hand-constructed class hierarchy, file in every
// source module named on the command line, and write the result out
// as a single image file the lst driver can load directly.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/smalltalk-go/lst/compile"
	"github.com/smalltalk-go/lst/logutil"
	"github.com/smalltalk-go/lst/object"
)

func main() {
	out := flag.String("o", "systemImage", "path to write the built image to")
	compress := flag.Bool("z", false, "zstd-compress the image body")
	large := flag.Bool("large", false, "use the LARGE_MEM profile instead of SMALL_MEM")
	verbose := flag.Bool("v", false, "verbose diagnostics")
	flag.Parse()
	logutil.Verbose = *verbose

	profile := object.SmallMem
	if *large {
		profile = object.LargeMem
	}
	tbl := object.NewTable(profile)
	if err := object.Bootstrap(tbl); err != nil {
		logutil.Fatalf("bootstrap failed", err.Error())
	}

	for _, src := range flag.Args() {
		logutil.Logf("filing in %s", src)
		f, err := os.Open(src)
		if err != nil {
			logutil.Fatalf("cannot open source file", err.Error())
		}
		err = compile.FileIn(tbl, f)
		f.Close()
		if err != nil {
			logutil.Fatalf("file-in failed for "+src, err.Error())
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		logutil.Fatalf("cannot create image file", err.Error())
	}
	defer f.Close()

	stamp, err := object.SaveImage(f, tbl, object.SaveOptions{Compress: *compress})
	if err != nil {
		logutil.Fatalf("image write failed", err.Error())
	}
	fmt.Printf("wrote %s (stamp %s)\n", *out, stamp)
}
