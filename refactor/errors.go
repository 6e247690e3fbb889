// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refactor

import (
	"cmp"
	"fmt"
	"go/scanner"
	"go/token"
	"go/types"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"
)

// An Error is a diagnostic at a source position, such as a type error in
// a loaded package or in rewritten code. Errors reported by the type
// checker as continuations of an earlier error are attached to it.
type Error struct {
	Pos token.Position
	Msg string

	Secondary []*Error
}

func (e *Error) Error() string {
	if !e.Pos.IsValid() {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// An ErrorList collects the diagnostics of a load or a validation,
// dropping duplicates. The zero value is an empty list, ready to use.
type ErrorList struct {
	errs []*Error
	seen map[token.Position]map[string]bool
}

// Add adds err to l, taking its position from the parser, type checker
// or package loader error it is. Lists are merged.
func (l *ErrorList) Add(err error) {
	var e *Error
	switch err := err.(type) {
	case nil:
		return
	case *ErrorList:
		for _, e := range err.errs {
			l.Add(e)
		}
		return
	case scanner.ErrorList:
		for _, e := range err {
			l.Add(e)
		}
		return
	case *Error:
		e = err
	case *scanner.Error:
		e = &Error{Pos: err.Pos, Msg: err.Msg}
	case types.Error:
		e = &Error{Pos: err.Fset.Position(err.Pos), Msg: err.Msg}
		if strings.HasPrefix(err.Msg, "\t") && len(l.errs) > 0 {
			last := l.errs[len(l.errs)-1]
			last.Secondary = append(last.Secondary, e)
			return
		}
	case packages.Error:
		e = &Error{Pos: parsePos(err.Pos), Msg: err.Msg}
	default:
		e = &Error{Msg: err.Error()}
	}

	if l.seen == nil {
		l.seen = make(map[token.Position]map[string]bool)
	}
	msgs := l.seen[e.Pos]
	if msgs == nil {
		msgs = make(map[string]bool)
		l.seen[e.Pos] = msgs
	}
	if !msgs[e.Msg] {
		msgs[e.Msg] = true
		l.errs = append(l.errs, e)
	}
}

// parsePos parses a position written file:line:col, as the package
// loader reports them.
func parsePos(s string) token.Position {
	var p token.Position
	rest, col, ok := cutLastColon(s)
	if !ok {
		return token.Position{Filename: s}
	}
	rest, line, ok := cutLastColon(rest)
	if !ok {
		// file:line
		p.Filename, p.Line = rest, col
		return p
	}
	p.Filename, p.Line, p.Column = rest, line, col
	return p
}

func cutLastColon(s string) (string, int, bool) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], n, true
}

// Error formats the errors in position order, one per line. A message
// reported at more than three positions is printed once, at its first
// position, with a count: one broken rewrite tends to break every use
// of what it touched.
func (l *ErrorList) Error() string {
	if len(l.errs) == 0 {
		return "no errors"
	}
	errs := l.Sorted()
	count := make(map[string]int)
	for _, e := range errs {
		count[e.Msg]++
	}

	var b strings.Builder
	for _, e := range errs {
		msg := e.Msg
		switch n := count[msg]; {
		case n < 0:
			continue
		case n > 3:
			count[msg] = -1
			msg = fmt.Sprintf("%s [× %d]", msg, n)
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString((&Error{Pos: e.Pos, Msg: msg}).Error())
		for _, e2 := range e.Secondary {
			b.WriteString("\n" + e2.Error())
		}
	}
	return b.String()
}

// Sorted returns the errors ordered by file and offset.
func (l *ErrorList) Sorted() []*Error {
	errs := slices.Clone(l.errs)
	slices.SortStableFunc(errs, func(x, y *Error) int {
		return cmp.Or(
			strings.Compare(x.Pos.Filename, y.Pos.Filename),
			cmp.Compare(x.Pos.Line, y.Pos.Line),
			cmp.Compare(x.Pos.Column, y.Pos.Column),
		)
	})
	return errs
}

// Len returns the number of errors in the list.
func (l *ErrorList) Len() int { return len(l.errs) }

// Errors returns the errors in the order they were added.
func (l *ErrorList) Errors() []*Error { return l.errs }

// Unwrap returns the errors, for errors.As.
func (l *ErrorList) Unwrap() []error {
	out := make([]error, len(l.errs))
	for i, e := range l.errs {
		out[i] = e
	}
	return out
}

// Err returns l, or nil if l is empty.
func (l *ErrorList) Err() error {
	if len(l.errs) == 0 {
		return nil
	}
	return l
}
