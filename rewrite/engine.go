// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rewrite

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rewritekit/rw/refactor"
)

// DefaultMaxPasses is the pass limit of an Engine with MaxPasses unset.
const DefaultMaxPasses = 8

const tracerName = "github.com/rewritekit/rw/rewrite"

// An Engine runs rules over units.
type Engine struct {
	// Log receives rule hits and synthesis failures at debug level and
	// import conflicts at warn level. When nil, slog.Default() is used.
	Log *slog.Logger

	// MaxPasses bounds the depth of follow-up passes for one rule,
	// counting the rule's own pass.
	MaxPasses int

	// Registry builds the rules that follow-up actions name.
	Registry map[string]Factory

	// Tracer creates spans for units and passes.
	// When nil, falls back to the global otel tracer provider.
	Tracer trace.Tracer
}

// A Report describes what running rules on a unit did.
type Report struct {
	Unit      string
	Changed   bool
	Passes    int
	Hits      map[string]int // edits per rule
	Failures  int            // synthesis failures
	Conflicts []refactor.Conflict
	Invalid   *ValidationError
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Engine) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return otel.Tracer(tracerName)
}

func (e *Engine) maxPasses() int {
	if e.MaxPasses > 0 {
		return e.MaxPasses
	}
	return DefaultMaxPasses
}

// ApplyRules runs rules on u with a default engine.
func ApplyRules(u *refactor.Unit, rules []Rule) (*refactor.Unit, error) {
	var e Engine
	out, _, err := e.Run(context.Background(), u, rules)
	return out, err
}

// Run applies rules to u in order. After each rule's pass, the follow-ups
// it queued run in further passes until none remain. Imports are then
// reconciled and the result is validated.
//
// Run returns the rewritten unit, or u itself if nothing changed, the
// rewritten code failed validation or an action failed; in the latter
// cases the report's Invalid field says why. An error is returned only
// for an overflowing or misconfigured rule, in which case the unit is
// left unchanged.
func (e *Engine) Run(ctx context.Context, u *refactor.Unit, rules []Rule) (*refactor.Unit, *Report, error) {
	ctx, span := e.tracer().Start(ctx, "rw.unit",
		trace.WithAttributes(
			attribute.String("unit", u.Name),
			attribute.Int("rules", len(rules)),
		))
	defer span.End()

	report := &Report{Unit: u.Name, Hits: make(map[string]int)}
	cur := u
	var intents []refactor.ImportChange
	for i := range rules {
		var err error
		cur, err = e.runRule(ctx, cur, &rules[i], report, &intents)
		var verr *ValidationError
		if errors.As(err, &verr) {
			report.Invalid = verr
			e.log().DebugContext(ctx, "abandoning rewrite", "unit", u.Name, "err", verr.Err)
			span.SetAttributes(attribute.Bool("invalid", true))
			return u, report, nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return u, report, err
		}
		if err := ctx.Err(); err != nil {
			return u, report, err
		}
	}

	if cur != u || len(intents) > 0 {
		var conflicts []refactor.Conflict
		cur, conflicts = refactor.Reconcile(cur, intents)
		for _, c := range conflicts {
			e.log().WarnContext(ctx, "import both added and removed; keeping it", "unit", u.Name, "path", c.Path)
		}
		report.Conflicts = conflicts
	}

	if cur == u {
		return u, report, nil
	}
	if err := cur.Source().Validate(cur); err != nil {
		report.Invalid = &ValidationError{Unit: u.Name, Err: err}
		e.log().DebugContext(ctx, "discarding rewrite", "unit", u.Name, "err", err)
		span.SetAttributes(attribute.Bool("invalid", true))
		return u, report, nil
	}
	report.Changed = !cur.Equal(u)
	span.SetAttributes(attribute.Bool("changed", report.Changed))
	return cur, report, nil
}

// runRule runs rule and, level by level, the follow-ups it queues.
func (e *Engine) runRule(ctx context.Context, u *refactor.Unit, rule *Rule, report *Report, intents *[]refactor.ImportChange) (*refactor.Unit, error) {
	level := []*Rule{rule}
	for num := 1; len(level) > 0; num++ {
		if num > e.maxPasses() {
			return nil, &OverflowError{Unit: u.Name, Rule: rule.Name, Passes: num - 1}
		}
		var next []*Rule
		for _, r := range level {
			p := &pass{
				rule: r,
				num:  num,
				log:  e.log().With("rule", r.Name, "unit", u.Name, "pass", num),
			}
			u = e.pass(ctx, u, p)
			report.Passes++
			report.Hits[r.Name] += p.hits
			report.Failures += p.failures
			if p.failed != nil {
				return nil, &ValidationError{Unit: u.Name, Err: fmt.Errorf("rule %s: %w", r.Name, p.failed)}
			}
			*intents = append(*intents, p.intents...)

			for _, a := range p.pending {
				switch a.Kind {
				case AddImport:
					*intents = append(*intents, refactor.ImportChange{Path: a.Path, Name: a.Name})
				case RemoveImport:
					*intents = append(*intents, refactor.ImportChange{Path: a.Path, Remove: true})
				case RunRule:
					f := e.Registry[a.Rule]
					if f == nil {
						return nil, fmt.Errorf("%s: rule %s: %w %q", u.Name, a.Origin, ErrUnknownRule, a.Rule)
					}
					follow, err := f(a)
					if err != nil {
						return nil, fmt.Errorf("%s: building follow-up %s of rule %s: %w", u.Name, a.Rule, a.Origin, err)
					}
					next = append(next, &follow)
				}
			}
		}
		level = next
	}
	return u, nil
}

// pass walks u once, applying p's rule.
func (e *Engine) pass(ctx context.Context, u *refactor.Unit, p *pass) *refactor.Unit {
	ctx, span := e.tracer().Start(ctx, "rw.pass",
		trace.WithAttributes(
			attribute.String("rule", p.rule.Name),
			attribute.Int("pass", p.num),
		))
	defer span.End()

	p.ctx = ctx
	c := &Cursor{u: u, p: p}
	f := u.Rebuild(u.File, func(stack []ast.Node) ast.Node {
		act := p.rule.Actions[KindOf(stack[0])]
		if act == nil {
			return stack[0]
		}
		c.stack = stack
		res := act(c)
		switch res.kind {
		case replace:
			if res.node == stack[0] {
				return stack[0]
			}
			p.hits++
			p.log.DebugContext(ctx, "replaced", "kind", KindOf(stack[0]), c.Position())
			return res.node
		case remove:
			if !inStmtList(stack) {
				p.log.DebugContext(ctx, "ignoring removal outside a statement list", "kind", KindOf(stack[0]), c.Position())
				return stack[0]
			}
			p.hits++
			p.log.DebugContext(ctx, "removed", "kind", KindOf(stack[0]), c.Position())
			return &refactor.Splice{}
		case fail:
			if p.failed == nil {
				p.failed = res.err
				p.log.DebugContext(ctx, "rewrite abandoned", "err", res.err, c.Position())
			}
		}
		return stack[0]
	}).(*ast.File)

	span.SetAttributes(attribute.Int("hits", p.hits))
	return u.With(f)
}

// inStmtList reports whether stack[0] is an element of a statement list.
func inStmtList(stack []ast.Node) bool {
	if _, ok := stack[0].(ast.Stmt); !ok || len(stack) < 2 {
		return false
	}
	switch stack[1].(type) {
	case *ast.BlockStmt, *ast.CaseClause, *ast.CommClause:
		return true
	}
	return false
}
