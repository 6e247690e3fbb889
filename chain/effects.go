// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"go/ast"
	"go/token"
	"go/types"

	"github.com/rewritekit/rw/match"
)

// vars returns the variables mentioned in n.
func vars(info match.Info, n ast.Node) map[types.Object]bool {
	objs := make(map[types.Object]bool)
	ast.Inspect(n, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok {
			if v, ok := info.ObjectOf(id).(*types.Var); ok {
				objs[v] = true
			}
		}
		return true
	})
	return objs
}

// mentions reports whether n mentions any of objs.
func mentions(info match.Info, n ast.Node, objs map[types.Object]bool) bool {
	found := false
	ast.Inspect(n, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && objs[info.ObjectOf(id)] {
			found = true
		}
		return !found
	})
	return found
}

// pure reports whether evaluating e cannot have side effects beyond
// those of builtins and conversions: e calls no function, receives from
// no channel and contains no function literal.
func pure(info match.Info, e ast.Expr) bool {
	ok := true
	ast.Inspect(e, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			ok = false
		case *ast.UnaryExpr:
			if n.Op == token.ARROW {
				ok = false
			}
		case *ast.CallExpr:
			tv, known := info.TypeAndValue(n.Fun)
			if !known || !tv.IsType() && !tv.IsBuiltin() {
				ok = false
			}
		}
		return ok
	})
	return ok
}

// methodCall returns the method called by the expression statement s
// and its receiver, or nil.
func methodCall(info match.Info, s ast.Stmt) (call *ast.CallExpr, fn *types.Func, recv ast.Expr) {
	es, ok := s.(*ast.ExprStmt)
	if !ok {
		return nil, nil, nil
	}
	call, ok = match.Unparen(es.X).(*ast.CallExpr)
	if !ok {
		return nil, nil, nil
	}
	fn, recv = match.Callee(info, call)
	if fn == nil || recv == nil {
		return nil, nil, nil
	}
	return call, fn, recv
}

// escapes reports whether body, the body of the function literal lit,
// refers to a variable declared outside lit other than the ones in allow.
// Package-level variables do not count.
func escapes(info match.Info, lit *ast.FuncLit, allow map[types.Object]bool) bool {
	found := false
	ast.Inspect(lit.Body, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok || found {
			return !found
		}
		v, ok := info.ObjectOf(id).(*types.Var)
		if !ok || allow[v] || v.Parent() == nil || v.Pkg() == nil {
			return true
		}
		if v.Parent() == v.Pkg().Scope() {
			return true
		}
		if v.Pos() < lit.Pos() || lit.End() <= v.Pos() {
			found = true
		}
		return !found
	})
	return found
}

// stmtList returns the statement list held by a block or clause.
func stmtList(n ast.Node) ([]ast.Stmt, bool) {
	switch n := n.(type) {
	case *ast.BlockStmt:
		return n.List, true
	case *ast.CaseClause:
		return n.Body, true
	case *ast.CommClause:
		return n.Body, true
	}
	return nil, false
}
