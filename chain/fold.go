// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/scanner"
	"go/token"
	"go/types"
	"strings"

	"github.com/rewritekit/rw/match"
	"github.com/rewritekit/rw/rewrite"
)

// A FoldSpec describes a chain of two calls to fold into one:
// x.First(a...).Second(b...) becomes x.Replacement(a..., b...).
// x is either a value whose type matches Receiver or, for package-level
// functions, the package Receiver names. A type pattern is matched in
// assignability mode, so that it also covers pointers to the type, types
// embedding it and implementations of an interface.
type FoldSpec struct {
	Name        string
	Receiver    string // type pattern or package path
	First       string
	Second      string
	Replacement string

	// FirstArgs and SecondArgs are the required argument counts of the
	// two calls. A negative count allows any number of arguments.
	FirstArgs  int
	SecondArgs int

	// Constants constrains arguments, counted across both calls, to
	// constant values. Constrained arguments are not passed on.
	Constants []ArgConstant
}

// An ArgConstant requires argument Arg to have the constant value Value,
// written as a Go literal.
type ArgConstant struct {
	Arg   int
	Value string
}

// Fold returns the rule described by spec.
func Fold(spec FoldSpec) (rewrite.Rule, error) {
	first, err := match.CompileMethod(spec.Receiver + " " + spec.First + "(..)")
	if err != nil {
		return rewrite.Rule{}, err
	}
	var assignable *match.MethodMatcher
	if !strings.HasSuffix(spec.Receiver, "+") {
		if _, err := match.CompileType(spec.Receiver); err == nil {
			assignable, _ = match.CompileMethod(spec.Receiver + "+ " + spec.First + "(..)")
		}
	}
	if !token.IsIdentifier(spec.Second) || !token.IsIdentifier(spec.Replacement) {
		return rewrite.Rule{}, fmt.Errorf("fold %s: method names must be identifiers", spec.Name)
	}
	consts := make(map[int]constant.Value)
	for _, ac := range spec.Constants {
		v, err := parseConstant(ac.Value)
		if err != nil {
			return rewrite.Rule{}, fmt.Errorf("fold %s: argument %d: %v", spec.Name, ac.Arg, err)
		}
		consts[ac.Arg] = v
	}
	f := &folder{spec: spec, first: first, assignable: assignable, consts: consts}
	return rewrite.Rule{
		Name:    spec.Name,
		Actions: map[rewrite.Kind]rewrite.Action{rewrite.CallExpr: f.fold},
	}, nil
}

// parseConstant parses a Go basic literal, true, false, or a negated
// numeric literal.
func parseConstant(lit string) (constant.Value, error) {
	bad := fmt.Errorf("bad constant %q", lit)

	var s scanner.Scanner
	file := token.NewFileSet().AddFile("", -1, len(lit))
	failed := false
	s.Init(file, []byte(lit), func(token.Position, string) { failed = true }, 0)
	var toks []token.Token
	var lits []string
	for {
		_, tok, l := s.Scan()
		if tok == token.EOF {
			break
		}
		if tok == token.SEMICOLON && l == "\n" {
			continue
		}
		toks = append(toks, tok)
		lits = append(lits, l)
	}
	neg := len(toks) == 2 && toks[0] == token.SUB
	if neg {
		toks, lits = toks[1:], lits[1:]
	}
	if failed || len(toks) != 1 {
		return nil, bad
	}

	var v constant.Value
	switch tok := toks[0]; tok {
	case token.IDENT:
		switch lits[0] {
		case "true":
			v = constant.MakeBool(true)
		case "false":
			v = constant.MakeBool(false)
		default:
			return nil, bad
		}
	case token.INT, token.FLOAT, token.IMAG, token.CHAR, token.STRING:
		v = constant.MakeFromLiteral(lits[0], tok, 0)
	default:
		return nil, bad
	}
	if v.Kind() == constant.Unknown {
		return nil, bad
	}
	if neg {
		switch v.Kind() {
		case constant.Int, constant.Float, constant.Complex:
			v = constant.UnaryOp(token.SUB, v, 0)
		default:
			return nil, bad
		}
	}
	return v, nil
}

type folder struct {
	spec       FoldSpec
	first      *match.MethodMatcher
	assignable *match.MethodMatcher // nil for package receivers
	consts     map[int]constant.Value
}

func (f *folder) matches(u match.Info, call *ast.CallExpr) bool {
	return f.first.Matches(u, call) || f.assignable != nil && f.assignable.Matches(u, call)
}

func (f *folder) fold(c *rewrite.Cursor) rewrite.Result {
	u := c.Unit()
	outer := c.Node().(*ast.CallExpr)
	sel, ok := match.Unparen(outer.Fun).(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != f.spec.Second {
		return rewrite.Unchanged()
	}
	inner, ok := match.Unparen(sel.X).(*ast.CallExpr)
	if !ok || !f.matches(u, inner) {
		return rewrite.Unchanged()
	}
	if fn, _ := match.Callee(u, outer); fn == nil || fn.Name() != f.spec.Second {
		return rewrite.Unchanged()
	}
	if !arity(f.spec.FirstArgs, inner) || !arity(f.spec.SecondArgs, outer) {
		return rewrite.Unchanged()
	}
	if inner.Ellipsis.IsValid() && len(outer.Args) > 0 {
		return rewrite.Unchanged()
	}
	if (inner.Ellipsis.IsValid() || outer.Ellipsis.IsValid()) && len(f.consts) > 0 {
		return rewrite.Unchanged()
	}

	var args []ast.Expr
	for i, a := range append(append([]ast.Expr(nil), inner.Args...), outer.Args...) {
		want, ok := f.consts[i]
		if !ok {
			args = append(args, a)
			continue
		}
		tv, _ := u.TypeAndValue(a)
		if tv.Value == nil || !constant.Compare(tv.Value, token.EQL, want) {
			return rewrite.Unchanged()
		}
	}

	var b strings.Builder
	var bound []ast.Node
	_, recv := match.Callee(u, inner)
	switch fun := match.Unparen(inner.Fun).(type) {
	case *ast.SelectorExpr:
		if recv != nil {
			b.WriteString("#{}.")
			bound = append(bound, recv)
		} else {
			b.WriteString(fun.X.(*ast.Ident).Name + ".")
		}
	case *ast.Ident:
	default:
		return rewrite.Unchanged()
	}
	b.WriteString(f.spec.Replacement + "(")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("#{}")
		bound = append(bound, a)
	}
	if inner.Ellipsis.IsValid() || outer.Ellipsis.IsValid() {
		b.WriteString("...")
	}
	b.WriteString(")")

	frag, err := c.Synthesize(b.String(), bound...)
	if err != nil {
		return rewrite.Unchanged()
	}
	if want := u.TypeOf(outer); want == nil || frag.Type() == nil || !types.Identical(want, frag.Type()) {
		c.Logger().DebugContext(c.Context(), "fold changes result type", c.Position())
		return rewrite.Unchanged()
	}
	return rewrite.Replace(frag.Expr)
}

func arity(n int, call *ast.CallExpr) bool {
	return n < 0 || len(call.Args) == n
}
