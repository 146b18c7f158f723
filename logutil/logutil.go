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

// Package logutil provides the small verbosity-gated stderr logging
// the cmd/ drivers use in place of an interactive-terminal diagnostic
// path that a headless deployment has no use for.
package logutil

import (
	"fmt"
	"os"
)

// Verbose gates Logf's output; drivers flip it from a -v flag, the
// same shape cmd/sdb's package-scope dashv/logf pair uses.
var Verbose bool

// Logf writes a diagnostic line to stderr when Verbose is set. A
// trailing newline is added if the caller didn't supply one.
func Logf(format string, args ...interface{}) {
	if !Verbose {
		return
	}
	if len(format) == 0 || format[len(format)-1] != '\n' {
		format += "\n"
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

// Warnf always writes to stderr, regardless of Verbose — the
// unconditional half of tty.c's sysWarn (report and keep going).
func Warnf(format string, args ...interface{}) {
	if len(format) == 0 || format[len(format)-1] != '\n' {
		format += "\n"
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

// Fatalf reports an unconditional error and terminates the process,
// matching tty.c's sysError (short/long message pair, then abort).
func Fatalf(short, long string) {
	if long != "" {
		fmt.Fprintf(os.Stderr, "%s: %s\n", short, long)
	} else {
		fmt.Fprintf(os.Stderr, "%s\n", short)
	}
	os.Exit(1)
}
