// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/syzformat/pkg/osutil"
	"github.com/google/syzformat/pkg/runner"
	"github.com/google/syzformat/pkg/tool"
	"github.com/spf13/cobra"
)

// exitMismatch is the exit status when some inputs do not round-trip.
const exitMismatch = 2

func newRoundtripCmd(a *app) *cobra.Command {
	var (
		procs int
		stop  bool
		diffs bool
	)
	cmd := &cobra.Command{
		Use:   "roundtrip [file|dir]...",
		Short: "Check that inputs generate back byte-identical",
		Long: "Roundtrip cracks every input, generates it back and compares the bytes.\n" +
			"Directories are read non-recursively. Without arguments the corpus from the config is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.load()
			if err != nil {
				return err
			}
			if len(args) == 0 && a.cfg.Corpus != "" {
				args = []string{a.cfg.Corpus}
			}
			if len(args) == 0 {
				return fmt.Errorf("no inputs")
			}
			inputs, err := loadInputs(args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("procs") {
				procs = a.cfg.Procs
			}
			run, err := runner.New(m, runner.Config{
				Procs:         procs,
				StopOnFailure: stop,
				Stats:         a.stats,
			})
			if err != nil {
				return err
			}
			ctx := osutil.HandleInterrupts(context.Background())
			results, runErr := run.Run(ctx, inputs)
			out := cmd.OutOrStdout()
			failed := report(out, results, diffs)
			printStats(out, a.stats)
			if runErr != nil {
				return runErr
			}
			if failed != 0 {
				return tool.Exitf(exitMismatch, "%v out of %v inputs did not round-trip", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&procs, "procs", "j", 1, "number of parallel workers (config procs if not set)")
	cmd.Flags().BoolVar(&stop, "stop", false, "stop at the first failure")
	cmd.Flags().BoolVar(&diffs, "diff", false, "print hex dump diffs of mismatches")
	return cmd
}

func loadInputs(paths []string) ([]runner.Input, error) {
	var inputs []runner.Input
	for _, path := range paths {
		st, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if st.IsDir() {
			dir, err := runner.LoadDir(path)
			if err != nil {
				return nil, err
			}
			for _, in := range dir {
				in.Name = filepath.Join(path, in.Name)
				inputs = append(inputs, in)
			}
			continue
		}
		data, err := osutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, runner.Input{Name: path, Data: data})
	}
	return inputs, nil
}

// report prints failed results and a per-status summary, and returns the number of failures.
func report(w io.Writer, results []*runner.Result, diffs bool) int {
	failed := 0
	for _, res := range results {
		if res.Status == runner.OK {
			continue
		}
		failed++
		fmt.Fprintf(w, "%v: %v: %v\n", res.Name, res.Status, res.Err)
		if diffs && res.Diff != "" {
			fmt.Fprint(w, res.Diff)
		}
	}
	summary := runner.Summary(results)
	var statuses []runner.Status
	for status := range summary {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, status := range statuses {
		fmt.Fprintf(w, "%-16v %v\n", status.String()+":", summary[status])
	}
	return failed
}
