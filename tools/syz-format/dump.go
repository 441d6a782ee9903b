// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/google/syzformat/model"
	"github.com/google/syzformat/pkg/osutil"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

// Node is the dump form of an element. Offsets and sizes are in bits.
type Node struct {
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	Offset   int64   `json:"offset"`
	Bits     int64   `json:"bits"`
	Value    string  `json:"value,omitempty"`
	Selected string  `json:"selected,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

func newDumpCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "dump [input]",
		Short: "Print the element tree as yaml",
		Long: "Dump cracks the input and prints every active element with its bit span and value.\n" +
			"Without an input the tree of the default generated model is printed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := a.load()
			if err != nil {
				return err
			}
			m := base.Clone()
			cracked := len(args) != 0
			if cracked {
				data, err := osutil.ReadFile(args[0])
				if err != nil {
					return err
				}
				if err := m.CrackBytes(data); err != nil {
					return err
				}
			}
			node, err := dumpModel(m, cracked)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(node)
			if err != nil {
				return err
			}
			return osutil.WriteOutput(cmd.OutOrStdout(), output, out)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")
	return cmd
}

// dumpModel describes the tree of m. If cracked is set, spans come from the last crack,
// otherwise they are computed from generated values.
func dumpModel(m *model.DataModel, cracked bool) (*Node, error) {
	if _, err := m.Bytes(); err != nil {
		return nil, err
	}
	var pos int64
	return dumpElement(m.Root(), cracked, &pos)
}

func dumpElement(e model.Element, cracked bool, pos *int64) (*Node, error) {
	node := &Node{
		Name: e.Name(),
		Kind: model.Kind(e),
	}
	if f, ok := e.(*model.Flag); ok {
		node.Offset, node.Bits = *pos+int64(f.Position), int64(f.Bits)
	} else if start, end, ok := model.Common(e).CrackSpan(); cracked && ok {
		node.Offset, node.Bits = start, end-start
	} else {
		val, err := e.Value()
		if err != nil {
			return nil, err
		}
		node.Offset, node.Bits = *pos, val.LengthBits()
	}
	var children []model.Element
	switch x := e.(type) {
	case *model.Number:
		if x.Signed {
			node.Value = strconv.FormatInt(x.Int(), 10)
		} else {
			node.Value = strconv.FormatUint(x.Uint(), 10)
		}
	case *model.Flag:
		node.Value = fmt.Sprint(x.InternalValue())
	case *model.String:
		node.Value = strconv.Quote(x.Str())
	case *model.Blob:
		node.Value = hex.EncodeToString(x.Data().Bytes())
	case *model.Block:
		children = x.Children()
	case *model.Choice:
		if sel := x.Selected(); sel != nil {
			node.Selected = sel.Name()
			children = []model.Element{sel}
		}
	case *model.Array:
		children = x.Items()
	case *model.Flags:
		for _, f := range x.Fields() {
			children = append(children, f)
		}
	}
	_, isFlags := e.(*model.Flags)
	childPos := node.Offset
	for _, c := range children {
		if isFlags {
			childPos = node.Offset
		}
		child, err := dumpElement(c, cracked, &childPos)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	*pos = node.Offset + node.Bits
	return node, nil
}
