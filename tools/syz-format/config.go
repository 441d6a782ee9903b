// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"fmt"
	"runtime"
)

// Config is the syz-format config file. Command line flags take precedence.
type Config struct {
	// Data model definition file (yaml or json).
	Definition string `json:"definition"`
	// Number of parallel roundtrip workers.
	Procs int `json:"procs"`
	// Listen address of the serve command.
	HTTP      string `json:"http"`
	Verbosity int    `json:"verbosity"`
	// Bound on generation passes, 0 means the model default.
	MaxIterations int `json:"max_iterations"`
	// Corpus directory used by roundtrip when no inputs are given.
	Corpus string `json:"corpus"`
}

func defaultConfig() Config {
	return Config{
		Procs: runtime.NumCPU(),
		HTTP:  "127.0.0.1:8080",
	}
}

func (cfg *Config) validate() error {
	if cfg.Procs < 1 || cfg.Procs > 1024 {
		return fmt.Errorf("bad config param procs: %v, want [1, 1024]", cfg.Procs)
	}
	if cfg.MaxIterations < 0 {
		return fmt.Errorf("bad config param max_iterations: %v", cfg.MaxIterations)
	}
	return nil
}
