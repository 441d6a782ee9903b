// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/google/syzformat/pkg/log"
	"github.com/google/syzformat/pkg/osutil"
	"github.com/google/syzformat/pkg/snapshot"
	"github.com/spf13/cobra"
)

func newGenerateCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "generate [snapshot]",
		Short: "Generate bytes from the model defaults or from snapshots",
		Long: "Without arguments generate serializes the default values of the data model.\n" +
			"With a snapshot stream every snapshot is applied to a fresh model and generated;\n" +
			"several snapshots require -o to name a directory.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := a.load()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				data, err := base.Clone().Bytes()
				if err != nil {
					return err
				}
				return osutil.WriteOutput(cmd.OutOrStdout(), output, data)
			}
			raw, err := osutil.ReadFile(args[0])
			if err != nil {
				return err
			}
			snaps, err := snapshot.Read(bytes.NewReader(raw))
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				return fmt.Errorf("%v: no snapshots", args[0])
			}
			if len(snaps) > 1 {
				if output == "" || output == "-" {
					return fmt.Errorf("%v snapshots need an output directory", len(snaps))
				}
				if err := osutil.MkdirAll(output); err != nil {
					return err
				}
			}
			for _, snap := range snaps {
				m := base.Clone()
				if err := snap.Apply(m); err != nil {
					return err
				}
				data, err := m.Bytes()
				if err != nil {
					return fmt.Errorf("snapshot %v: %w", snap.ID, err)
				}
				file := output
				if len(snaps) > 1 {
					file = filepath.Join(output, snap.ID.String())
				}
				log.Logf(1, "snapshot %v: generated %v bytes", snap.ID, len(data))
				if err := osutil.WriteOutput(cmd.OutOrStdout(), file, data); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file or directory (stdout if empty)")
	return cmd
}
