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

// lst loads a built image and drives its systemProcess to completion,
// reproducing st.c's main()/run(): read the image, stash an optional
// "-e" script as the "launchscript" global for Smalltalk code to pick
// up, then repeatedly call Execute until the process finishes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/smalltalk-go/lst/config"
	"github.com/smalltalk-go/lst/interp"
	"github.com/smalltalk-go/lst/logutil"
	"github.com/smalltalk-go/lst/object"
	"github.com/smalltalk-go/lst/primitive"
)

func main() {
	imagePath := flag.String("image", "", "path to the image file (overrides the config file's image setting)")
	configPath := flag.String("config", "", "optional YAML config file")
	script := flag.String("e", "", "script text to run, stashed as the launchscript global")
	verbose := flag.Bool("v", false, "verbose diagnostics")
	large := flag.Bool("large", false, "image was saved with the LARGE_MEM profile")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logutil.Fatalf("cannot load config", err.Error())
	}
	if *imagePath != "" {
		cfg.Image = *imagePath
	}
	logutil.Verbose = *verbose || cfg.Verbose

	f, err := os.Open(cfg.Image)
	if err != nil {
		logutil.Fatalf("cannot open image", err.Error())
	}
	profile := object.SmallMem
	if *large {
		profile = object.LargeMem
	}
	tbl, err := object.LoadImage(f, profile)
	f.Close()
	if err != nil {
		logutil.Fatalf("image load failed", err.Error())
	}
	if err := tbl.InitCommonSymbols(); err != nil {
		logutil.Fatalf("common symbol interning failed", err.Error())
	}

	if *script != "" {
		ref, err := tbl.NewStString(*script)
		if err != nil {
			logutil.Fatalf("cannot store launch script", err.Error())
		}
		if err := tbl.InternGlobal("launchscript", ref); err != nil {
			logutil.Fatalf("cannot store launch script", err.Error())
		}
	}

	vm := interp.New(tbl)
	vm.Prims = primitive.New()

	proc, err := tbl.LookupGlobal("systemProcess")
	if err != nil {
		logutil.Fatalf("no initial process", "image has no systemProcess global")
	}

	fmt.Println("Little Smalltalk, Go edition")

	for {
		running, err := vm.Execute(proc, cfg.MaxSteps)
		if err != nil {
			logutil.Fatalf("interpreter error", err.Error())
		}
		if !running {
			break
		}
	}
}
