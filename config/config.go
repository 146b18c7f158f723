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

// Package config loads the optional YAML settings file the cmd/
// drivers accept alongside their flags: an image path and a "-e"
// script argument cover the minimal command line, but a headless
// deployment benefits from a file for the handful of
// host knobs (time slice size, stack cushion, verbosity) that aren't
// part of the image itself.
package config

import (
	"os"

	"sigs.k8s.io/yaml"
)

// Config holds the host-level knobs that sit outside the image:
// the execute(process, maxSteps) time-slice size, the process
// stack's growth cushion, and diagnostic verbosity. StackCushion is
// loaded but not read by anything: the interpreter always uses its own
// fixed 100-slot cushion.
type Config struct {
	Image        string `json:"image"`
	MaxSteps     int    `json:"maxSteps"`
	StackCushion int    `json:"stackCushion"`
	Verbose      bool   `json:"verbose"`
}

// Default returns the baseline host knobs: image path "systemImage"
// and a 15000-bytecode time slice per execute() call.
func Default() Config {
	return Config{
		Image:        "systemImage",
		MaxSteps:     15000,
		StackCushion: 100,
	}
}

// Load reads path as YAML, overlaying it onto Default(). A missing
// file is not an error — the defaults alone are a complete Config.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
