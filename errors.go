// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
)

// errUsage indicates a malformed command line. Usage errors are
// independent of the source code being rewritten.
type errUsage struct {
	err string
}

func newErrUsage(f string, args ...any) *errUsage {
	return &errUsage{fmt.Sprintf(f, args...)}
}

func (e *errUsage) Error() string {
	return "usage: " + e.err
}

// errPrecondition indicates that a command was well-formed, but some
// requirement of the command wasn't met by the loaded catalogs or
// packages. For example, every selected rule failed to compile.
type errPrecondition struct {
	err string
}

func newErrPrecondition(f string, args ...any) *errPrecondition {
	return &errPrecondition{fmt.Sprintf(f, args...)}
}

func (e *errPrecondition) Error() string {
	return e.err
}

var (
	errParallel       = errors.New("parallel must be at least 1")
	errMaxPasses      = errors.New("max_passes must be at least 1")
	errInvalidCatalog = errors.New("invalid catalog")
)
