// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/rewritekit/rw/chain"
	"github.com/rewritekit/rw/match"
	"github.com/rewritekit/rw/refactor"
	"github.com/rewritekit/rw/rewrite"
)

// A DefinitionError reports a definition that could not be compiled.
type DefinitionError struct {
	ID  string
	Err error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.ID, e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// Options control Compile.
type Options struct {
	// GoVersion is the Go version of the code being rewritten, as in a
	// go.mod go line. Rules whose requires_go it does not satisfy are
	// skipped. When empty, no rule is skipped for its Go version.
	GoVersion string

	// Only, if set, restricts compilation to the named rules.
	// Naming a disabled rule enables it.
	Only []string

	// Cache memoizes pattern compilation. When nil, a new cache is used.
	Cache *match.Cache

	Log *slog.Logger
}

// A Skip records a definition that was not compiled, and why.
type Skip struct {
	ID     string
	Reason string
}

// A Set is a compiled catalog.
type Set struct {
	Rules    []rewrite.Rule
	Registry map[string]rewrite.Factory
	Skipped  []Skip
	Errors   []*DefinitionError
}

// Compile compiles defs. Definitions that fail to compile are recorded
// in the set's Errors and left out.
func Compile(defs []Definition, opts Options) *Set {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	cache := opts.Cache
	if cache == nil {
		cache = new(match.Cache)
	}
	set := &Set{Registry: make(map[string]rewrite.Factory)}
	for _, d := range defs {
		selected := len(opts.Only) == 0 || slices.Contains(opts.Only, d.ID)
		switch {
		case !selected:
			continue
		case d.Disabled && len(opts.Only) == 0:
			set.Skipped = append(set.Skipped, Skip{d.ID, "disabled"})
			continue
		}
		ok, err := supported(d.RequiresGo, opts.GoVersion)
		if err != nil {
			set.Errors = append(set.Errors, &DefinitionError{d.ID, err})
			continue
		}
		if !ok {
			reason := fmt.Sprintf("requires go %s, module has %s", d.RequiresGo, opts.GoVersion)
			log.Debug("rule skipped", "rule", d.ID, "reason", reason)
			set.Skipped = append(set.Skipped, Skip{d.ID, reason})
			continue
		}
		r, err := compile(d, cache, set.Registry)
		if err != nil {
			log.Warn("rule not compiled", "rule", d.ID, "err", err)
			set.Errors = append(set.Errors, &DefinitionError{d.ID, err})
			continue
		}
		set.Rules = append(set.Rules, r)
	}
	return set
}

func compile(d Definition, cache *match.Cache, reg map[string]rewrite.Factory) (rewrite.Rule, error) {
	imports, err := parseImports(d.Imports)
	if err != nil {
		return rewrite.Rule{}, err
	}
	switch d.Kind {
	case KindTemplate:
		m, err := cache.Method(d.Match)
		if err != nil {
			return rewrite.Rule{}, err
		}
		return callTemplate(d.ID, m, d.Template, d.Bind, imports)

	case KindCollapse:
		var recv *match.TypeMatcher
		if d.Receiver != "" {
			if recv, err = cache.Type(d.Receiver); err != nil {
				return rewrite.Rule{}, err
			}
		}
		return chain.Collapse(d.ID, recv), nil

	case KindFold:
		spec := chain.FoldSpec{
			Name:        d.ID,
			Receiver:    d.Receiver,
			First:       d.First,
			Second:      d.Second,
			Replacement: d.Replacement,
			FirstArgs:   count(d.FirstArgs),
			SecondArgs:  count(d.SecondArgs),
		}
		for _, c := range d.Constants {
			spec.Constants = append(spec.Constants, chain.ArgConstant{Arg: c.Arg, Value: c.Value})
		}
		return chain.Fold(spec)

	case KindExpectPanic:
		m, err := cache.Method(d.Match)
		if err != nil {
			return rewrite.Rule{}, err
		}
		return chain.ExpectPanic(chain.ExpectSpec{
			Name:          d.ID,
			Sentinel:      m,
			Template:      d.Template,
			TypedTemplate: d.Typed,
			Imports:       imports,
			Bind:          d.Bind,
		})

	case KindHoist:
		m, err := cache.Method(d.Match)
		if err != nil {
			return rewrite.Rule{}, err
		}
		prefix := d.Prefix
		if prefix == "" {
			prefix = "On"
		}
		return chain.Hoist(chain.HoistSpec{Name: d.ID, Hook: m, Prefix: prefix}, reg), nil
	}
	return rewrite.Rule{}, fmt.Errorf("unknown kind %q", d.Kind)
}

func count(n *int) int {
	if n == nil {
		return -1
	}
	return *n
}

// parseImports parses import intents written as path or name=path.
func parseImports(list []string) ([]refactor.ImportChange, error) {
	var out []refactor.ImportChange
	for _, s := range list {
		name, path, ok := strings.Cut(s, "=")
		if !ok {
			name, path = "", s
		}
		if path == "" {
			return nil, fmt.Errorf("invalid import %q", s)
		}
		out = append(out, refactor.ImportChange{Path: path, Name: name})
	}
	return out, nil
}
