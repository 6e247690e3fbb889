// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chain implements rules that reshape sequences of calls:
// collapsing statements calling methods on the same receiver into one
// fluent chain, folding two chained calls into one, turning a deferred
// recover guard into a panic assertion, and hoisting hook callbacks into
// methods.
//
// All of them are conservative. Whenever a rewrite cannot be shown to
// keep the program's meaning, the code is left alone.
package chain

import (
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"github.com/rewritekit/rw/match"
	"github.com/rewritekit/rw/refactor"
	"github.com/rewritekit/rw/rewrite"
)

// Collapse returns a rule that collapses runs of adjacent statements
//
//	x.A(a)
//	x.B(b)
//	x.C(c)
//
// into x.A(a).B(b).C(c). The receivers must be identical expressions,
// each method but the last must return the receiver's type, which must be
// a pointer or an interface, and the arguments must not call functions or
// mention variables the receiver mentions. A method declared in the
// package must return its receiver on every path; methods declared
// elsewhere are trusted on their signature, so rules applying to types
// from other packages should name them with recv.
//
// If recv is not nil, only receivers whose type matches it are collapsed.
//
// The first statement's comments are kept. Comments on the lines of the
// other statements in a run are removed with them.
func Collapse(name string, recv *match.TypeMatcher) rewrite.Rule {
	act := func(c *rewrite.Cursor) rewrite.Result {
		return collapse(c, recv)
	}
	return rewrite.Rule{
		Name: name,
		Actions: map[rewrite.Kind]rewrite.Action{
			rewrite.BlockStmt:  act,
			rewrite.CaseClause: act,
		},
	}
}

// A link is a method call statement that can start or continue a chain.
type link struct {
	stmt ast.Stmt
	call *ast.CallExpr
	fn   *types.Func
	recv ast.Expr
}

func collapse(c *rewrite.Cursor, filter *match.TypeMatcher) rewrite.Result {
	u := c.Unit()
	list, ok := stmtList(c.Node())
	if !ok || len(list) < 2 {
		return rewrite.Unchanged()
	}

	links := make([]*link, len(list))
	for i, s := range list {
		links[i] = linkOf(u, s, filter)
	}

	var out []ast.Stmt
	changed := false
	for i := 0; i < len(list); {
		j := i + 1
		for j < len(list) && chains(u, links[j-1], links[j]) {
			j++
		}
		if j-i < 2 {
			out = append(out, list[i])
			i++
			continue
		}
		s, err := fold(c, links[i:j])
		if err != nil {
			out = append(out, list[i:j]...)
		} else {
			out = append(out, s)
			changed = true
		}
		i = j
	}
	if !changed {
		return rewrite.Unchanged()
	}
	return rewrite.Replace(withList(u, c.Node(), out))
}

// linkOf returns s as a link, or nil if s cannot be part of a chain.
func linkOf(u *refactor.Unit, s ast.Stmt, filter *match.TypeMatcher) *link {
	call, fn, recv := methodCall(u, s)
	if call == nil {
		return nil
	}
	t := u.TypeOf(recv)
	if t == nil {
		return nil
	}
	if filter != nil && !filter.MatchesIn(t, u) {
		return nil
	}
	busy := vars(u, recv)
	for _, a := range call.Args {
		if !pure(u, a) || mentions(u, a, busy) {
			return nil
		}
	}
	return &link{stmt: s, call: call, fn: fn, recv: recv}
}

// chains reports whether the call of b can be chained onto the call of a.
func chains(u *refactor.Unit, a, b *link) bool {
	if a == nil || b == nil || !match.Equal(u, a.recv, b.recv) {
		return false
	}
	t := u.TypeOf(a.recv)
	switch types.Unalias(t).Underlying().(type) {
	case *types.Pointer, *types.Interface:
	default:
		return false
	}
	res := a.fn.Type().(*types.Signature).Results()
	return res.Len() == 1 && types.Identical(res.At(0).Type(), t) && returnsReceiver(u, a.fn)
}

// returnsReceiver reports whether fn returns its receiver unchanged,
// judging by its declaration in u's package. A method without a
// declaration there is assumed to.
func returnsReceiver(u *refactor.Unit, fn *types.Func) bool {
	decl := funcDecl(u, fn)
	if decl == nil {
		return true
	}
	if decl.Body == nil || len(decl.Recv.List) != 1 || len(decl.Recv.List[0].Names) != 1 {
		return false
	}
	recv := u.ObjectOf(decl.Recv.List[0].Names[0])
	if recv == nil {
		return false
	}
	self := map[types.Object]bool{recv: true}
	isRecv := func(e ast.Expr) bool {
		id, ok := match.Unparen(e).(*ast.Ident)
		return ok && u.ObjectOf(id) == recv
	}
	ok := true
	ast.Inspect(decl.Body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			if mentions(u, n, self) {
				ok = false
			}
			return false
		case *ast.ReturnStmt:
			if len(n.Results) != 1 || !isRecv(n.Results[0]) {
				ok = false
			}
		case *ast.AssignStmt:
			for _, l := range n.Lhs {
				if isRecv(l) {
					ok = false
				}
			}
		case *ast.UnaryExpr:
			if n.Op == token.AND && isRecv(n.X) {
				ok = false
			}
		}
		return ok
	})
	return ok
}

// funcDecl returns the declaration of fn among the files of u's package,
// or nil.
func funcDecl(u *refactor.Unit, fn *types.Func) *ast.FuncDecl {
	pos := fn.Origin().Pos()
	for _, f := range append([]*ast.File{u.File}, u.Siblings...) {
		for _, d := range f.Decls {
			if d, ok := d.(*ast.FuncDecl); ok && d.Recv != nil && d.Name.Pos() == pos {
				return d
			}
		}
	}
	return nil
}

// fold synthesizes the chained statement for run. It takes the place of
// the first statement of the run.
func fold(c *rewrite.Cursor, run []*link) (ast.Stmt, error) {
	var b strings.Builder
	bound := []ast.Node{run[0].recv}
	b.WriteString("#{}")
	for _, l := range run {
		b.WriteString(".")
		b.WriteString(l.fn.Name())
		b.WriteString("(")
		for i, a := range l.call.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("#{}")
			bound = append(bound, a)
		}
		if l.call.Ellipsis.IsValid() {
			b.WriteString("...")
		}
		b.WriteString(")")
	}

	u := c.Unit()
	at := refactor.Scope{Unit: u, Pos: run[0].stmt.Pos()}
	frag, err := c.SynthesizeAt(at, b.String(), bound...)
	if err != nil {
		return nil, err
	}
	first := refactor.Derive(u, run[0].stmt.(*ast.ExprStmt))
	first.X = frag.Expr
	return first, nil
}

// withList returns a copy of the block or clause n holding list.
func withList(u *refactor.Unit, n ast.Node, list []ast.Stmt) ast.Node {
	switch n := n.(type) {
	case *ast.BlockStmt:
		b := refactor.Derive(u, n)
		b.List = list
		return b
	case *ast.CaseClause:
		cc := refactor.Derive(u, n)
		cc.Body = list
		return cc
	case *ast.CommClause:
		cc := refactor.Derive(u, n)
		cc.Body = list
		return cc
	}
	return n
}
