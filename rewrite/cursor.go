// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rewrite

import (
	"context"
	"go/ast"
	"go/types"
	"log/slog"

	"github.com/rewritekit/rw/refactor"
	"github.com/rewritekit/rw/template"
)

// A Cursor describes the node an action is called for.
// It is valid only during the call.
type Cursor struct {
	stack []ast.Node
	u     *refactor.Unit
	p     *pass
}

// pass holds the state of one rule's walk over a unit.
type pass struct {
	ctx      context.Context
	rule     *Rule
	num      int
	log      *slog.Logger
	pending  []PendingAction
	intents  []refactor.ImportChange
	hits     int
	failures int
	failed   error // first Fail
}

// Node returns the current node. Its children have already been visited,
// so it may be a copy of the node in the tree the walk started from.
func (c *Cursor) Node() ast.Node { return c.stack[0] }

// Parent returns the parent of the current node, or nil for the file.
func (c *Cursor) Parent() ast.Node {
	if len(c.stack) < 2 {
		return nil
	}
	return c.stack[1]
}

// Ancestors returns the ancestors of the current node, innermost first,
// as they were when the walk started.
func (c *Cursor) Ancestors() []ast.Node { return c.stack[1:] }

// Unit returns the unit being rewritten.
func (c *Cursor) Unit() *refactor.Unit { return c.u }

// Pass returns the number of the current pass, starting at 1.
func (c *Cursor) Pass() int { return c.p.num }

// TypeOf returns the type of e, or nil.
func (c *Cursor) TypeOf(e ast.Expr) types.Type { return c.u.TypeOf(e) }

// ObjectOf returns the object id denotes, or nil.
func (c *Cursor) ObjectOf(id *ast.Ident) types.Object { return c.u.ObjectOf(id) }

// Scope returns the insertion scope at the current node.
func (c *Cursor) Scope() refactor.Scope {
	return refactor.Scope{Unit: c.u, Pos: c.u.InsertionPos(c.stack)}
}

// Synthesize builds skeleton at the current node, with the rule's
// import intents visible. Failures are logged and counted.
func (c *Cursor) Synthesize(skeleton string, bound ...ast.Node) (*template.Fragment, error) {
	return c.SynthesizeAt(c.Scope(), skeleton, bound...)
}

// SynthesizeAt is like Synthesize but at an explicit insertion scope.
func (c *Cursor) SynthesizeAt(at refactor.Scope, skeleton string, bound ...ast.Node) (*template.Fragment, error) {
	frag, err := template.Synthesize(at, skeleton, bound, c.p.rule.Imports...)
	if err != nil {
		c.p.failures++
		c.Logger().DebugContext(c.Context(), "synthesis failed", "err", err)
		return nil, err
	}
	return frag, nil
}

// Enqueue queues follow-up work. A RunRule action runs in the next pass.
func (c *Cursor) Enqueue(a PendingAction) {
	a.Origin = c.p.rule.Name
	a.Pass = c.p.num + 1
	c.p.pending = append(c.p.pending, a)
}

// Queued returns the follow-ups queued so far in the current pass.
func (c *Cursor) Queued() []PendingAction {
	return c.p.pending
}

// NeedImport records that the rewritten code needs path imported,
// as name if name is not empty.
func (c *Cursor) NeedImport(path, name string) {
	c.p.intents = append(c.p.intents, refactor.ImportChange{Path: path, Name: name})
}

// DropImport records that the rewrite removed uses of path.
// The import is removed only if nothing else uses it.
func (c *Cursor) DropImport(path string) {
	c.p.intents = append(c.p.intents, refactor.ImportChange{Path: path, Remove: true})
}

// Context returns the context of the current pass. It carries the
// pass's trace span; log through Logger with it.
func (c *Cursor) Context() context.Context {
	return c.p.ctx
}

// Logger returns the logger for the current rule.
func (c *Cursor) Logger() *slog.Logger {
	return c.p.log
}

// Position returns the position of the current node in the unit.
func (c *Cursor) Position() slog.Attr {
	return slog.String("pos", c.u.Position(c.u.InsertionPos(c.stack)).String())
}
