// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log is a small levelled logger shared by all syzformat packages.
// Messages with level <= the global verbosity are printed, the most recent
// low-level messages can additionally be kept in memory (see EnableLogCaching).
package log

import (
	"bytes"
	"fmt"
	"io"
	golog "log"
	"sync"
	"sync/atomic"
	"time"
)

var (
	verbosity    atomic.Int32
	mu           sync.Mutex
	cacheMem     int
	cacheMaxMem  int
	cachePos     int
	cacheEntries []string
	prependTime  = true // for testing
)

// SetVerbosity sets the global verbosity level.
func SetVerbosity(v int) {
	verbosity.Store(int32(v))
}

// V reports whether messages of level v are printed.
func V(v int) bool {
	return v <= int(verbosity.Load())
}

// SetOutput redirects printed messages to w.
func SetOutput(w io.Writer) {
	golog.SetOutput(w)
}

// EnableLogCaching keeps up to maxLines messages of level <= 1,
// but no more than maxMem bytes. Use CachedLogOutput to query them.
func EnableLogCaching(maxLines, maxMem int) {
	mu.Lock()
	defer mu.Unlock()
	if cacheEntries != nil {
		Fatalf("log caching is already enabled")
	}
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	cacheMaxMem = maxMem
	cacheEntries = make([]string, maxLines)
}

func CachedLogOutput() string {
	mu.Lock()
	defer mu.Unlock()
	buf := new(bytes.Buffer)
	for i := range cacheEntries {
		pos := (cachePos + i) % len(cacheEntries)
		if cacheEntries[pos] == "" {
			continue
		}
		buf.WriteString(cacheEntries[pos])
		buf.WriteByte('\n')
	}
	return buf.String()
}

func Logf(v int, msg string, args ...any) {
	if v <= 1 {
		cache(msg, args...)
	}
	if V(v) {
		golog.Printf(msg, args...)
	}
}

// Errorf logs at level 0 and returns the formatted error.
func Errorf(msg string, args ...any) error {
	err := fmt.Errorf(msg, args...)
	Logf(0, "%v", err)
	return err
}

func cache(msg string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if cacheEntries == nil {
		return
	}
	cacheMem -= len(cacheEntries[cachePos])
	timeStr := ""
	if prependTime {
		timeStr = time.Now().Format("2006/01/02 15:04:05 ")
	}
	cacheEntries[cachePos] = timeStr + fmt.Sprintf(msg, args...)
	cacheMem += len(cacheEntries[cachePos])
	cachePos = (cachePos + 1) % len(cacheEntries)
	for i := 0; i < len(cacheEntries)-1 && cacheMem > cacheMaxMem; i++ {
		pos := (cachePos + i) % len(cacheEntries)
		cacheMem -= len(cacheEntries[pos])
		cacheEntries[pos] = ""
	}
	if cacheMem < 0 {
		panic("log cache size underflow")
	}
}

func Fatal(err error) {
	golog.Fatal(err)
}

func Fatalf(msg string, args ...any) {
	golog.Fatalf(msg, args...)
}

// VerboseWriter logs everything written to it at the given level.
type VerboseWriter int

func (w VerboseWriter) Write(data []byte) (int, error) {
	Logf(int(w), "%s", bytes.TrimRight(data, "\n"))
	return len(data), nil
}
