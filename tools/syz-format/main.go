// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// syz-format cracks binary inputs into a data model and generates them back.
//
//	syz-format --def png.yaml crack -o in.snap input.png
//	syz-format --def png.yaml generate -o out.png in.snap
//	syz-format --def png.yaml roundtrip corpus/
package main

import (
	"fmt"
	"io"

	"github.com/google/syzformat/model"
	"github.com/google/syzformat/pkg/bitstream"
	"github.com/google/syzformat/pkg/config"
	"github.com/google/syzformat/pkg/definition"
	"github.com/google/syzformat/pkg/log"
	"github.com/google/syzformat/pkg/stat"
	"github.com/google/syzformat/pkg/tool"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		tool.Fail(err)
	}
}

// app is the state shared by all subcommands of one invocation.
type app struct {
	cfg       Config
	cfgFile   string
	defFile   string
	verbosity int
	cpuprof   string
	memprof   string
	stopProf  func() error
	stats     *stat.Set

	model *model.DataModel
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "syz-format",
		Short:         "Crack and generate binary formats described by a data model",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.stopProf != nil {
				return a.stopProf()
			}
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.defFile, "def", "", "data model definition file (overrides config)")
	flags.StringVar(&a.cfgFile, "config", "", "config file (json, yaml or toml)")
	flags.IntVarP(&a.verbosity, "verbose", "v", 0, "log verbosity")
	flags.StringVar(&a.cpuprof, "cpuprofile", "", "write cpu profile to this file")
	flags.StringVar(&a.memprof, "memprofile", "", "write memory profile to this file")

	cmd.AddCommand(
		newCrackCmd(a),
		newGenerateCmd(a),
		newRoundtripCmd(a),
		newDumpCmd(a),
		newShellCmd(a),
		newServeCmd(a),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	a.cfg = defaultConfig()
	if a.cfgFile != "" {
		if err := config.LoadFile(a.cfgFile, &a.cfg); err != nil {
			return err
		}
	}
	if err := a.cfg.validate(); err != nil {
		return err
	}
	if a.defFile != "" {
		a.cfg.Definition = a.defFile
	}
	verbosity := a.cfg.Verbosity
	if cmd.Flags().Changed("verbose") {
		verbosity = a.verbosity
	}
	log.SetVerbosity(verbosity)
	log.SetOutput(cmd.ErrOrStderr())
	stop, err := tool.InstallProfiling(a.cpuprof, a.memprof)
	if err != nil {
		return err
	}
	a.stopProf = stop
	a.stats = stat.NewSet(nil)
	return nil
}

// load builds the data model once per invocation.
func (a *app) load() (*model.DataModel, error) {
	if a.model != nil {
		return a.model, nil
	}
	if a.cfg.Definition == "" {
		return nil, fmt.Errorf("no data model definition, use --def or the config file")
	}
	m, err := definition.LoadFile(a.cfg.Definition)
	if err != nil {
		return nil, err
	}
	if a.cfg.MaxIterations != 0 {
		m.Options.MaxIterations = a.cfg.MaxIterations
	}
	if log.V(3) {
		m.Hooks.OnCrackExit = func(name string, start, end int64, buf *bitstream.Buffer) {
			log.Logf(3, "cracked %v [%v:%v)", name, start, end)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	log.Logf(1, "loaded data model %v from %v", m.Name(), a.cfg.Definition)
	a.model = m
	return m, nil
}

func printStats(w io.Writer, set *stat.Set) {
	for _, ui := range set.Collect(stat.All) {
		fmt.Fprintf(w, "%-20v %v\n", ui.Name+":", ui.Value)
	}
}
