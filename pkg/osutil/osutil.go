// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

const (
	DefaultDirPerm  = 0755
	DefaultFilePerm = 0644
)

// IsExist returns true if the file name exists.
func IsExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func MkdirAll(dir string) error {
	return os.MkdirAll(dir, DefaultDirPerm)
}

// WriteFile writes data to a temp file next to filename and renames it over filename,
// so readers never observe a partially written file.
func WriteFile(filename string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if err1 := f.Close(); err == nil {
		err = err1
	}
	if err == nil {
		err = os.Chmod(tmp, DefaultFilePerm)
	}
	if err == nil {
		err = os.Rename(tmp, filename)
	}
	if err != nil {
		os.Remove(tmp)
	}
	return err
}

// ReadFile reads filename, or stdin if filename is "-".
func ReadFile(filename string) ([]byte, error) {
	if filename == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filename)
}

// WriteOutput writes data to filename, or to w if filename is "" or "-".
func WriteOutput(w io.Writer, filename string, data []byte) error {
	if filename == "" || filename == "-" {
		_, err := w.Write(data)
		return err
	}
	return WriteFile(filename, data)
}

// ListDir returns paths of all regular files in dir, sorted by name.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		if ent.Type().IsRegular() {
			files = append(files, filepath.Join(dir, ent.Name()))
		}
	}
	return files, nil
}

// HandleInterrupts returns a context that is cancelled on the first SIGINT/SIGTERM
// (expecting that the program will gracefully shutdown and exit)
// and terminates the process on the third one.
func HandleInterrupts(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		c := make(chan os.Signal, 3)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
		fmt.Fprint(os.Stderr, "SIGINT: shutting down...\n")
		<-c
		fmt.Fprint(os.Stderr, "SIGINT: shutting down harder...\n")
		<-c
		fmt.Fprint(os.Stderr, "SIGINT: terminating\n")
		os.Exit(int(syscall.SIGINT))
	}()
	return ctx
}
