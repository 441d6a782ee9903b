// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/syzformat/model"
	"github.com/google/syzformat/pkg/osutil"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell [input]",
		Short: "Interactively crack, edit and generate a model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := a.load()
			if err != nil {
				return err
			}
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          base.Name() + "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return err
			}
			defer rl.Close()
			sh := newShell(base.Clone(), rl.Stdout())
			if len(args) != 0 {
				if _, err := sh.exec("load " + args[0]); err != nil {
					return err
				}
			}
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if err != nil {
					if err == io.EOF {
						return nil
					}
					return err
				}
				quit, err := sh.exec(line)
				if err != nil {
					fmt.Fprintf(sh.out, "error: %v\n", err)
				}
				if quit {
					return nil
				}
			}
		},
	}
}

type shell struct {
	m   *model.DataModel
	out io.Writer
	// cracked is reset by edits, spans of the last crack are stale after that.
	cracked bool
}

type shellCmd struct {
	args  string
	help  string
	nargs int
	fn    func(sh *shell, args []string) error
}

var shellCmds map[string]shellCmd

func init() {
	shellCmds = map[string]shellCmd{
		"load":   {"file", "crack the file into the model", 1, (*shell).load},
		"crack":  {"hex", "crack hex encoded bytes into the model", 1, (*shell).crack},
		"show":   {"[element]", "print the element tree", -1, (*shell).show},
		"set":    {"element value", "set a leaf value", 2, (*shell).set},
		"gen":    {"[file]", "generate the model and print or save the bytes", -1, (*shell).gen},
		"append": {"array", "append an item to the array", 1, (*shell).append},
		"remove": {"array index", "remove an array item", 2, (*shell).remove},
		"select": {"choice candidate", "select a choice candidate", 2, (*shell).choose},
		"help":   {"", "print this help", 0, (*shell).help},
	}
}

func newShell(m *model.DataModel, out io.Writer) *shell {
	return &shell{m: m, out: out}
}

// exec runs one command line and reports whether the shell should exit.
func (sh *shell) exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := fields[0], fields[1:]
	if name == "exit" || name == "quit" {
		return true, nil
	}
	cmd, ok := shellCmds[name]
	if !ok {
		return false, fmt.Errorf("unknown command %q, try help", name)
	}
	if name == "set" && len(args) > 2 {
		// String values may contain spaces.
		args = []string{args[0], strings.Join(args[1:], " ")}
	}
	if cmd.nargs >= 0 && len(args) != cmd.nargs || cmd.nargs < 0 && len(args) > 1 {
		return false, fmt.Errorf("usage: %v %v", name, cmd.args)
	}
	switch name {
	case "set", "append", "remove", "select":
		sh.cracked = false
	}
	return false, cmd.fn(sh, args)
}

func (sh *shell) find(name string) (model.Element, error) {
	e := sh.m.Find(name)
	if e == nil {
		return nil, fmt.Errorf("no element %q", name)
	}
	return e, nil
}

func (sh *shell) load(args []string) error {
	data, err := osutil.ReadFile(args[0])
	if err != nil {
		return err
	}
	return sh.crackData(data)
}

func (sh *shell) crack(args []string) error {
	data, err := hex.DecodeString(args[0])
	if err != nil {
		return err
	}
	return sh.crackData(data)
}

func (sh *shell) crackData(data []byte) error {
	if err := sh.m.CrackBytes(data); err != nil {
		return err
	}
	sh.cracked = true
	fmt.Fprintf(sh.out, "cracked %v bytes\n", len(data))
	return nil
}

func (sh *shell) show(args []string) error {
	node, err := dumpModel(sh.m, sh.cracked)
	if err != nil {
		return err
	}
	if len(args) != 0 {
		e, err := sh.find(args[0])
		if err != nil {
			return err
		}
		node = findNode(node, strings.Split(e.FullName(), ".")[1:])
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	_, err = sh.out.Write(out)
	return err
}

func findNode(node *Node, path []string) *Node {
	for _, name := range path {
		for _, c := range node.Children {
			if c.Name == name {
				node = c
				break
			}
		}
	}
	return node
}

func (sh *shell) set(args []string) error {
	e, err := sh.find(args[0])
	if err != nil {
		return err
	}
	leaf, ok := e.(model.Leaf)
	if !ok {
		return fmt.Errorf("%v: %v is not a leaf", e.FullName(), model.Kind(e))
	}
	return leaf.SetValue(args[1])
}

func (sh *shell) gen(args []string) error {
	data, err := sh.m.Bytes()
	if err != nil {
		return err
	}
	if len(args) != 0 {
		return osutil.WriteFile(args[0], data)
	}
	fmt.Fprint(sh.out, hex.Dump(data))
	return nil
}

func (sh *shell) array(name string) (*model.Array, error) {
	e, err := sh.find(name)
	if err != nil {
		return nil, err
	}
	arr, ok := e.(*model.Array)
	if !ok {
		return nil, fmt.Errorf("%v: %v is not an array", e.FullName(), model.Kind(e))
	}
	return arr, nil
}

func (sh *shell) append(args []string) error {
	arr, err := sh.array(args[0])
	if err != nil {
		return err
	}
	item, err := arr.Append()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "added %v\n", item.FullName())
	return nil
}

func (sh *shell) remove(args []string) error {
	arr, err := sh.array(args[0])
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	return arr.Remove(idx)
}

func (sh *shell) choose(args []string) error {
	e, err := sh.find(args[0])
	if err != nil {
		return err
	}
	ch, ok := e.(*model.Choice)
	if !ok {
		return fmt.Errorf("%v: %v is not a choice", e.FullName(), model.Kind(e))
	}
	return ch.Select(args[1])
}

func (sh *shell) help(args []string) error {
	var names []string
	for name := range shellCmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := shellCmds[name]
		fmt.Fprintf(sh.out, "  %-24v %v\n", name+" "+cmd.args, cmd.help)
	}
	fmt.Fprintf(sh.out, "  %-24v %v\n", "exit", "leave the shell")
	return nil
}
