// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rewrite

import (
	"errors"
	"fmt"
)

// ErrUnknownRule is wrapped by errors reporting a follow-up that names
// a rule missing from the registry.
var ErrUnknownRule = errors.New("unknown follow-up rule")

// An OverflowError reports a rule whose follow-ups kept queueing more
// follow-ups past the engine's pass limit.
type OverflowError struct {
	Unit   string
	Rule   string
	Passes int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s: rule %s did not converge after %d passes", e.Unit, e.Rule, e.Passes)
}

// IsOverflow reports whether err is or wraps an *OverflowError.
func IsOverflow(err error) bool {
	var oe *OverflowError
	return errors.As(err, &oe)
}

// A ValidationError reports a rewritten unit that no longer parses
// or type-checks, or whose rewrite an action abandoned with Fail.
// The rewrite is discarded.
type ValidationError struct {
	Unit string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: rewrite discarded: %v", e.Unit, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
