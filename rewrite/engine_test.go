// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rewrite

import (
	"context"
	"errors"
	"go/ast"
	"go/token"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/rewritekit/rw/match"
	"github.com/rewritekit/rw/refactor"
)

const oldNewSrc = `package p

type T struct{}

func (T) Old() int { return 1 }
func (T) New() int { return 2 }

func F(t T) int {
	// keep this comment
	t.Old()
	return t.Old() + 1
}
`

func parse(t *testing.T, pkgPath, src string) *refactor.Unit {
	t.Helper()
	u, err := refactor.NewSource().Parse("x.go", pkgPath, []byte(src))
	require.NoError(t, err)
	return u
}

func render(t *testing.T, u *refactor.Unit) string {
	t.Helper()
	out, err := u.Format()
	require.NoError(t, err)
	return string(out)
}

var oldCall = mustMethod("example.com/p.T Old()")

func mustMethod(pattern string) *match.MethodMatcher {
	m, err := match.CompileMethod(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func isOldCall(c *Cursor, e ast.Expr) bool {
	call, ok := e.(*ast.CallExpr)
	return ok && oldCall.Matches(c.Unit(), call)
}

var renameRule = Rule{
	Name: "rename",
	Actions: map[Kind]Action{
		CallExpr: func(c *Cursor) Result {
			call := c.Node().(*ast.CallExpr)
			if !oldCall.Matches(c.Unit(), call) {
				return Unchanged()
			}
			frag, err := c.Synthesize("#{}.New()", call.Fun.(*ast.SelectorExpr).X)
			if err != nil {
				return Unchanged()
			}
			return Replace(frag.Expr)
		},
	},
}

var dropRule = Rule{
	Name: "drop-old",
	Actions: map[Kind]Action{
		ExprStmt: func(c *Cursor) Result {
			if isOldCall(c, c.Node().(*ast.ExprStmt).X) {
				return Remove()
			}
			return Unchanged()
		},
	},
}

func TestReplace(t *testing.T) {
	u := parse(t, "example.com/p", oldNewSrc)
	var e Engine
	out, report, err := e.Run(context.Background(), u, []Rule{renameRule})
	require.NoError(t, err)
	assert.True(t, report.Changed)
	assert.Equal(t, 2, report.Hits["rename"])
	assert.Nil(t, report.Invalid)
	assert.Equal(t, `package p

type T struct{}

func (T) Old() int { return 1 }
func (T) New() int { return 2 }

func F(t T) int {
	// keep this comment
	t.New()
	return t.New() + 1
}
`, render(t, out))
}

func TestIdempotent(t *testing.T) {
	u := parse(t, "example.com/p", oldNewSrc)
	rules := []Rule{renameRule, dropRule}
	once, err := ApplyRules(u, rules)
	require.NoError(t, err)
	twice, err := ApplyRules(once, rules)
	require.NoError(t, err)
	assert.Same(t, once, twice)
	assert.Equal(t, render(t, once), render(t, twice))
}

func TestNoMatchKeepsUnit(t *testing.T) {
	u := parse(t, "example.com/p", oldNewSrc)
	rule := Rule{
		Name: "nothing",
		Actions: map[Kind]Action{
			CallExpr: func(c *Cursor) Result { return Unchanged() },
			ExprStmt: func(c *Cursor) Result { return Replace(c.Node()) },
		},
	}
	out, err := ApplyRules(u, []Rule{rule})
	require.NoError(t, err)
	assert.Same(t, u, out)
	assert.Equal(t, oldNewSrc, render(t, out))
}

func TestRemoveTakesComment(t *testing.T) {
	u := parse(t, "example.com/p", oldNewSrc)
	out, report, err := new(Engine).Run(context.Background(), u, []Rule{dropRule})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Hits["drop-old"])
	assert.Equal(t, `package p

type T struct{}

func (T) Old() int { return 1 }
func (T) New() int { return 2 }

func F(t T) int {
	return t.Old() + 1
}
`, render(t, out))
}

func TestRemoveOutsideListIgnored(t *testing.T) {
	u := parse(t, "example.com/p", oldNewSrc)
	rule := Rule{
		Name: "remove-calls",
		Actions: map[Kind]Action{
			CallExpr: func(c *Cursor) Result { return Remove() },
		},
	}
	out, report, err := new(Engine).Run(context.Background(), u, []Rule{rule})
	require.NoError(t, err)
	assert.Same(t, u, out)
	assert.Zero(t, report.Hits["remove-calls"])
}

func TestFollowUp(t *testing.T) {
	u := parse(t, "example.com/p", oldNewSrc)
	first := Rule{
		Name: "stage",
		Actions: map[Kind]Action{
			File: func(c *Cursor) Result {
				c.Enqueue(PendingAction{Kind: RunRule, Rule: "drop", Params: map[string]string{"why": "test"}})
				return Unchanged()
			},
		},
	}
	var got PendingAction
	e := &Engine{Registry: map[string]Factory{
		"drop": func(p PendingAction) (Rule, error) {
			got = p
			return dropRule, nil
		},
	}}
	out, report, err := e.Run(context.Background(), u, []Rule{first})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Passes)
	assert.Equal(t, "stage", got.Origin)
	assert.Equal(t, 2, got.Pass)
	assert.Equal(t, "test", got.Params["why"])
	assert.NotContains(t, render(t, out), "keep this comment")
}

func TestOverflow(t *testing.T) {
	u := parse(t, "example.com/p", oldNewSrc)
	again := Rule{
		Name: "again",
		Actions: map[Kind]Action{
			File: func(c *Cursor) Result {
				c.Enqueue(PendingAction{Kind: RunRule, Rule: "again"})
				return Unchanged()
			},
		},
	}
	e := &Engine{Registry: map[string]Factory{
		"again": func(PendingAction) (Rule, error) { return again, nil },
	}}
	out, _, err := e.Run(context.Background(), u, []Rule{again})
	require.Error(t, err)
	assert.True(t, IsOverflow(err))
	var oe *OverflowError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, DefaultMaxPasses, oe.Passes)
	assert.Equal(t, "again", oe.Rule)
	assert.Same(t, u, out)
}

func TestUnknownFollowUp(t *testing.T) {
	u := parse(t, "example.com/p", oldNewSrc)
	rule := Rule{
		Name: "lost",
		Actions: map[Kind]Action{
			File: func(c *Cursor) Result {
				c.Enqueue(PendingAction{Kind: RunRule, Rule: "nowhere"})
				return Unchanged()
			},
		},
	}
	_, err := ApplyRules(u, []Rule{rule})
	assert.ErrorIs(t, err, ErrUnknownRule)
	assert.False(t, IsOverflow(err))
}

func TestInvalidRewriteDiscarded(t *testing.T) {
	u := parse(t, "example.com/p", oldNewSrc)
	rule := Rule{
		Name: "break",
		Actions: map[Kind]Action{
			BasicLit: func(c *Cursor) Result {
				if lit := c.Node().(*ast.BasicLit); lit.Value == "1" {
					return Replace(&ast.BasicLit{Kind: token.STRING, Value: `"one"`})
				}
				return Unchanged()
			},
		},
	}
	out, report, err := new(Engine).Run(context.Background(), u, []Rule{rule})
	require.NoError(t, err)
	assert.Same(t, u, out)
	require.NotNil(t, report.Invalid)
	assert.False(t, report.Changed)
}

func TestImportsFollowRewrite(t *testing.T) {
	u := parse(t, "example.com/q", `package q

import "fmt"

func F(n int) string {
	return fmt.Sprint(n)
}
`)
	sprint := mustMethod("fmt Sprint(int)")
	rule := Rule{
		Name:    "itoa",
		Imports: []refactor.ImportChange{{Path: "strconv"}},
		Actions: map[Kind]Action{
			CallExpr: func(c *Cursor) Result {
				call := c.Node().(*ast.CallExpr)
				if !sprint.Matches(c.Unit(), call) {
					return Unchanged()
				}
				frag, err := c.Synthesize("strconv.Itoa(#{})", call.Args[0])
				if err != nil {
					return Unchanged()
				}
				c.DropImport("fmt")
				return Replace(frag.Expr)
			},
		},
	}
	out, err := ApplyRules(u, []Rule{rule})
	require.NoError(t, err)
	assert.Equal(t, `package q

import "strconv"

func F(n int) string {
	return strconv.Itoa(n)
}
`, render(t, out))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, CallExpr, KindOf(&ast.CallExpr{}))
	assert.Equal(t, CaseClause, KindOf(&ast.CommClause{}))
	assert.Equal(t, Other, KindOf(&ast.Ellipsis{}))
	assert.Equal(t, "ExprStmt", ExprStmt.String())
}

func TestFailAbandonsUnit(t *testing.T) {
	u := parse(t, "example.com/p", oldNewSrc)
	stage := Rule{
		Name: "stage",
		Actions: map[Kind]Action{
			ExprStmt: func(c *Cursor) Result {
				if !isOldCall(c, c.Node().(*ast.ExprStmt).X) {
					return Unchanged()
				}
				c.Enqueue(PendingAction{Kind: RunRule, Rule: "finish"})
				return Remove()
			},
		},
	}
	e := &Engine{Registry: map[string]Factory{
		"finish": func(p PendingAction) (Rule, error) {
			return Rule{
				Name: p.Rule,
				Actions: map[Kind]Action{
					File: func(c *Cursor) Result { return Fail(errors.New("cannot finish")) },
				},
			}, nil
		},
	}}
	out, report, err := e.Run(context.Background(), u, []Rule{stage, renameRule})
	require.NoError(t, err)
	assert.Same(t, u, out)
	assert.False(t, report.Changed)
	require.NotNil(t, report.Invalid)
	assert.ErrorContains(t, report.Invalid, "rule finish: cannot finish")
	assert.Zero(t, report.Hits["rename"], "rules after the failure do not run")
}

// spanHandler records, for each log record, whether its context
// carried a span.
type spanHandler struct {
	inSpan []bool
}

func (h *spanHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *spanHandler) Handle(ctx context.Context, r slog.Record) error {
	h.inSpan = append(h.inSpan, trace.SpanContextFromContext(ctx).IsValid())
	return nil
}

func (h *spanHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *spanHandler) WithGroup(string) slog.Handler      { return h }

func TestLogsCarrySpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	h := new(spanHandler)
	e := &Engine{Log: slog.New(h), Tracer: tp.Tracer("test")}
	u := parse(t, "example.com/p", oldNewSrc)
	_, _, err := e.Run(context.Background(), u, []Rule{renameRule})
	require.NoError(t, err)
	require.NotEmpty(t, h.inSpan)
	for i, ok := range h.inSpan {
		assert.True(t, ok, "record %d logged outside a span", i)
	}
}
