// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"

	"github.com/google/syzformat/pkg/log"
	"github.com/google/syzformat/pkg/osutil"
	"github.com/google/syzformat/pkg/snapshot"
	"github.com/spf13/cobra"
)

func newCrackCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "crack input...",
		Short: "Crack inputs and write their snapshots",
		Long: "Crack parses every input into the data model and writes a snapshot stream\n" +
			"(one CBOR document per input) that generate accepts after mutation.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := a.load()
			if err != nil {
				return err
			}
			var snaps []*snapshot.Snapshot
			for _, file := range args {
				data, err := osutil.ReadFile(file)
				if err != nil {
					return err
				}
				m := base.Clone()
				if err := m.CrackBytes(data); err != nil {
					return fmt.Errorf("%v: %w", file, err)
				}
				snap := snapshot.Take(m)
				log.Logf(1, "%v: cracked %v bytes into snapshot %v", file, len(data), snap.ID)
				snaps = append(snaps, snap)
			}
			buf := new(bytes.Buffer)
			if err := snapshot.Write(buf, snaps...); err != nil {
				return err
			}
			return osutil.WriteOutput(cmd.OutOrStdout(), output, buf.Bytes())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "snapshot output file (stdout if empty)")
	return cmd
}
