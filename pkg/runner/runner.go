// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package runner checks that a data model round-trips a corpus of inputs:
// every input is cracked into the model and generated back, and the output
// must be byte-identical to the input. Inputs are processed in parallel,
// each worker owns a clone of the model.
package runner

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/syzformat/model"
	"github.com/google/syzformat/pkg/log"
	"github.com/google/syzformat/pkg/osutil"
	"github.com/google/syzformat/pkg/stat"
	dmp "github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/errgroup"
)

type Input struct {
	Name string
	Data []byte
}

type Status int

const (
	OK Status = iota
	// CrackFailed means the input does not match the model.
	CrackFailed
	// GenerateFailed means the cracked model could not be serialized.
	GenerateFailed
	// Mismatch means the generated output differs from the input.
	Mismatch
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case CrackFailed:
		return "crack failed"
	case GenerateFailed:
		return "generate failed"
	case Mismatch:
		return "mismatch"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type Result struct {
	Name   string
	Status Status
	Err    error
	// Diff is a hex dump diff of the input (-) and the output (+) for mismatches.
	Diff     string
	Duration time.Duration
}

type Config struct {
	Procs int
	// StopOnFailure stops at the first input that does not round-trip.
	StopOnFailure bool
	// Stats receives metrics, the global set is used if nil.
	Stats *stat.Set
}

type Runner struct {
	model *model.DataModel
	cfg   Config

	statInputs     *stat.Val
	statFailed     *stat.Val
	statMismatched *stat.Val
	statBytes      *stat.Val
	statSize       *stat.Val
	avgTime        stat.AverageValue[time.Duration]
}

func New(m *model.DataModel, cfg Config) (*Runner, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if cfg.Procs <= 0 {
		cfg.Procs = 1
	}
	if cfg.Stats == nil {
		cfg.Stats = stat.Global()
	}
	r := &Runner{
		model: m,
		cfg:   cfg,
	}
	set := cfg.Stats
	r.statInputs = set.New("inputs", "Number of processed inputs", stat.Console, stat.Rate{},
		stat.Prometheus("syz_format_inputs"))
	r.statFailed = set.New("failed", "Inputs that failed to crack or generate", stat.Console,
		stat.Prometheus("syz_format_failed"))
	r.statMismatched = set.New("mismatched", "Inputs that did not round-trip", stat.Console,
		stat.Prometheus("syz_format_mismatched"))
	r.statBytes = set.New("bytes", "Total size of processed inputs", stat.Rate{})
	r.statSize = set.New("input size", "Input size distribution", stat.Distribution{})
	set.New("avg time", "Average round trip time (us)", func() int {
		return int(r.avgTime.Value() / time.Microsecond)
	})
	return r, nil
}

// Run processes inputs and returns results in the order of inputs.
// Results of inputs that were not processed because of cancellation are missing.
func (r *Runner) Run(ctx context.Context, inputs []Input) ([]*Result, error) {
	results := make([]*Result, len(inputs))
	models := make([]*model.DataModel, r.cfg.Procs)
	for i := range models {
		models[i] = r.model.Clone()
	}
	var stopOnce sync.Once
	g, gctx := errgroup.WithContext(ctx)
	work := make(chan int)
	for _, m := range models {
		m := m
		g.Go(func() error {
			for idx := range work {
				res := r.check(m, inputs[idx])
				results[idx] = res
				if res.Status != OK && r.cfg.StopOnFailure {
					var err error
					stopOnce.Do(func() {
						err = fmt.Errorf("%v: %v", res.Name, res.Status)
					})
					if err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(work)
		for idx := range inputs {
			select {
			case work <- idx:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	var done []*Result
	for _, res := range results {
		if res != nil {
			done = append(done, res)
		}
	}
	return done, err
}

func (r *Runner) check(m *model.DataModel, in Input) *Result {
	start := time.Now()
	res := &Result{Name: in.Name}
	defer func() {
		res.Duration = time.Since(start)
		r.avgTime.Save(res.Duration)
		r.statInputs.Add(1)
		r.statBytes.Add(len(in.Data))
		r.statSize.Add(len(in.Data))
		switch res.Status {
		case CrackFailed, GenerateFailed:
			r.statFailed.Add(1)
		case Mismatch:
			r.statMismatched.Add(1)
		}
		log.Logf(2, "%v: %v (%v)", in.Name, res.Status, res.Duration)
	}()
	if err := m.CrackBytes(in.Data); err != nil {
		res.Status, res.Err = CrackFailed, err
		return res
	}
	out, err := m.Bytes()
	if err != nil {
		res.Status, res.Err = GenerateFailed, err
		return res
	}
	if string(out) != string(in.Data) {
		res.Status = Mismatch
		res.Diff = Diff(in.Data, out)
		res.Err = fmt.Errorf("generated %v bytes differ from %v input bytes", len(out), len(in.Data))
	}
	return res
}

// Diff returns a line diff of hex dumps of a and b.
func Diff(a, b []byte) string {
	differ := dmp.New()
	ca, cb, lines := differ.DiffLinesToChars(hex.Dump(a), hex.Dump(b))
	diffs := differ.DiffCharsToLines(differ.DiffMain(ca, cb, false), lines)
	buf := new(strings.Builder)
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case dmp.DiffDelete:
			prefix = "-"
		case dmp.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line != "" {
				buf.WriteString(prefix + line)
			}
		}
	}
	return buf.String()
}

// LoadDir reads all regular files in dir as inputs.
func LoadDir(dir string) ([]Input, error) {
	files, err := osutil.ListDir(dir)
	if err != nil {
		return nil, err
	}
	var inputs []Input
	for _, file := range files {
		data, err := osutil.ReadFile(file)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, Input{Name: filepath.Base(file), Data: data})
	}
	return inputs, nil
}

// Summary counts results by status.
func Summary(results []*Result) map[Status]int {
	res := make(map[Status]int)
	for _, r := range results {
		res[r.Status]++
	}
	return res
}
