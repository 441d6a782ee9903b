// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tool contains helpers for implementation of command line tools.
package tool

import (
	"errors"
	"fmt"
	"os"
)

// ExitError makes Fail exit with Code instead of 1.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exitf formats an error that makes the tool exit with the given status.
func Exitf(code int, msg string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(msg, args...)}
}

// ExitCode returns the process status for err.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// Fail prints err and exits with ExitCode(err).
func Fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(ExitCode(err))
}
