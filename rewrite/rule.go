// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rewrite applies rules to units.
//
// A rule is a table from node kind to action. The engine walks the unit's
// tree in post-order, children before their parent, and calls the action
// registered for each node's kind. An action inspects the node through a
// Cursor and returns a Result: leave the node alone, replace it, or remove
// it from its statement list. Replacement nodes are not visited again.
// An action that cannot complete a change staged by an earlier pass
// fails, and the unit is left as it was.
//
// Trees are persistent: a change copies the path from the changed node up
// to the file, sharing everything else with the previous tree.
//
// An action may queue follow-up work as PendingActions. Follow-ups naming
// a rule are built through the engine's registry and run in later passes,
// after the pass that queued them completes.
package rewrite

import (
	"go/ast"

	"github.com/rewritekit/rw/refactor"
)

// An Action decides what happens to the node at c.
type Action func(c *Cursor) Result

// A Rule is a named table of actions.
type Rule struct {
	Name    string
	Actions map[Kind]Action

	// Imports lists import intents for packages the rule's templates
	// refer to. They are visible to synthesized fragments and added to
	// the unit when the rewritten code uses them.
	Imports []refactor.ImportChange
}

// A Factory builds the rule that carries out a queued follow-up.
type Factory func(p PendingAction) (Rule, error)

type resultKind int

const (
	unchanged resultKind = iota
	replace
	remove
	fail
)

// A Result is an action's verdict on a node.
type Result struct {
	kind resultKind
	node ast.Node
	err  error
}

// Unchanged leaves the node as it is.
func Unchanged() Result { return Result{} }

// Replace puts n in place of the node. For a statement in a statement
// list, n may be a *refactor.Splice standing for several statements.
func Replace(n ast.Node) Result {
	if n == nil {
		return Remove()
	}
	return Result{kind: replace, node: n}
}

// Remove deletes the node from its statement list. It is only
// meaningful for statements in a list; elsewhere it is ignored.
func Remove() Result { return Result{kind: remove} }

// Fail abandons the unit: every change the engine made to it is
// discarded and the report's Invalid field holds err. The node is left
// as it is and the walk goes on, but nothing it does is kept.
func Fail(err error) Result { return Result{kind: fail, err: err} }

// An ActionKind says what a PendingAction asks for.
type ActionKind int

const (
	RunRule ActionKind = iota
	AddImport
	RemoveImport
)

func (k ActionKind) String() string {
	switch k {
	case RunRule:
		return "run-rule"
	case AddImport:
		return "add-import"
	case RemoveImport:
		return "remove-import"
	}
	return "unknown"
}

// A PendingAction is follow-up work queued by an action.
// It is plain data; the syntax it captures is immutable.
type PendingAction struct {
	Kind   ActionKind
	Rule   string              // RunRule: registry name of the rule to run
	Params map[string]string   // RunRule: parameters for the factory
	Nodes  map[string]ast.Node // RunRule: captured syntax
	Path   string              // AddImport, RemoveImport
	Name   string              // AddImport: explicit package name, if any
	Pass   int                 // pass the action runs in; set when queued
	Origin string              // rule that queued the action; set when queued
}
