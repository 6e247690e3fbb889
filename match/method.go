// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import (
	"fmt"
	"go/ast"
	"go/types"
	"path"
	"strings"
)

// Info is the type information a matcher consults.
// *refactor.Unit implements it.
type Info interface {
	TypeAndValue(e ast.Expr) (types.TypeAndValue, bool)
	TypeOf(e ast.Expr) types.Type
	ObjectOf(id *ast.Ident) types.Object
	Selection(x *ast.SelectorExpr) *types.Selection
}

type argKind int

const (
	argType argKind = iota
	argOne          // *
	argAny          // ..
)

type argPattern struct {
	kind argKind
	typ  *TypeMatcher
}

// A MethodMatcher is a compiled method pattern.
// It is immutable and safe for concurrent use.
type MethodMatcher struct {
	pattern  string
	typ      *TypeMatcher // declaring type, for methods
	pkg      string       // declaring package, for functions
	pkgBelow bool
	name     string
	args     []argPattern
}

// CompileMethod compiles a method pattern of the form
//
//	decl name(arg, ...)
//
// decl is a type pattern, matching methods whose declaring type or
// receiver expression matches, or a package path (possibly ending in
// /...), matching package-level functions. name is a method name or a
// glob as understood by path.Match. Each arg is a type pattern, * for
// exactly one argument of any type, or .. for any number of arguments.
// An empty argument list matches only calls without arguments.
func CompileMethod(pattern string) (*MethodMatcher, error) {
	m, err := compileMethod(strings.TrimSpace(pattern))
	if err != nil {
		return nil, &CompileError{Pattern: pattern, Msg: err.Error()}
	}
	return m, nil
}

func compileMethod(p string) (*MethodMatcher, error) {
	m := &MethodMatcher{pattern: p}
	decl, rest, ok := strings.Cut(p, " ")
	if !ok {
		return nil, fmt.Errorf("missing method name")
	}
	rest = strings.TrimSpace(rest)
	open := strings.Index(rest, "(")
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return nil, fmt.Errorf("missing argument list")
	}
	m.name = strings.TrimSpace(rest[:open])
	if m.name == "" {
		return nil, fmt.Errorf("missing method name")
	}
	if _, err := path.Match(m.name, ""); err != nil {
		return nil, fmt.Errorf("invalid name glob %q", m.name)
	}

	if t, err := compileType(decl); err == nil {
		m.typ = t
	}
	pkg := strings.TrimSuffix(decl, "/...")
	if checkPath(pkg) == nil && !strings.ContainsAny(pkg, "*[]") {
		m.pkg = pkg
		m.pkgBelow = pkg != decl
	}
	if m.typ == nil && m.pkg == "" {
		return nil, fmt.Errorf("%q is neither a type nor a package pattern", decl)
	}

	list := strings.TrimSpace(rest[open+1 : len(rest)-1])
	if list == "" {
		return m, nil
	}
	for _, a := range strings.Split(list, ",") {
		a = strings.TrimSpace(a)
		switch a {
		case "":
			return nil, fmt.Errorf("empty argument pattern")
		case "*":
			m.args = append(m.args, argPattern{kind: argOne})
		case "..":
			m.args = append(m.args, argPattern{kind: argAny})
		default:
			t, err := compileType(a)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %v", a, err)
			}
			m.args = append(m.args, argPattern{typ: t})
		}
	}
	return m, nil
}

func (m *MethodMatcher) String() string {
	return m.pattern
}

// Matches reports whether call invokes a method or function matching m.
// If info also implements Resolver, it is used for assignability checks.
func (m *MethodMatcher) Matches(info Info, call *ast.CallExpr) bool {
	fn, recv := Callee(info, call)
	if fn == nil {
		return false
	}
	if ok, _ := path.Match(m.name, fn.Name()); !ok {
		return false
	}
	r, _ := info.(Resolver)
	if !m.declares(info, r, fn, recv) {
		return false
	}
	argTypes := make([]types.Type, len(call.Args))
	for i, a := range call.Args {
		argTypes[i] = info.TypeOf(a)
	}
	return matchArgs(m.args, argTypes, r)
}

// declares reports whether fn, called on recv, is declared where m says.
func (m *MethodMatcher) declares(info Info, r Resolver, fn *types.Func, recv ast.Expr) bool {
	sig, _ := fn.Type().(*types.Signature)
	if sig == nil {
		return false
	}
	if sig.Recv() == nil {
		if m.pkg == "" || fn.Pkg() == nil {
			return false
		}
		p := fn.Pkg().Path()
		return p == m.pkg || m.pkgBelow && strings.HasPrefix(p, m.pkg+"/")
	}
	if m.typ == nil {
		return false
	}
	if m.matchesRecv(sig.Recv().Type(), r) {
		return true
	}
	return recv != nil && m.matchesRecv(info.TypeOf(recv), r)
}

func (m *MethodMatcher) matchesRecv(t types.Type, r Resolver) bool {
	if t == nil {
		return false
	}
	if m.typ.MatchesIn(t, r) {
		return true
	}
	if p, ok := types.Unalias(t).(*types.Pointer); ok {
		return m.typ.MatchesIn(p.Elem(), r)
	}
	return false
}

// matchArgs matches argument types against patterns, backtracking over
// .. and variadic patterns like a glob matcher.
func matchArgs(pats []argPattern, ts []types.Type, r Resolver) bool {
	if len(pats) == 0 {
		return len(ts) == 0
	}
	p := pats[0]
	switch {
	case p.kind == argAny:
		for i := 0; i <= len(ts); i++ {
			if matchArgs(pats[1:], ts[i:], r) {
				return true
			}
		}
		return false
	case p.kind == argOne:
		return len(ts) > 0 && matchArgs(pats[1:], ts[1:], r)
	case p.typ.Variadic():
		// Either a spread slice or the individual elements.
		if len(ts) > 0 && p.typ.MatchesIn(ts[0], r) && matchArgs(pats[1:], ts[1:], r) {
			return true
		}
		for i := 0; i <= len(ts); i++ {
			if i > 0 && !p.typ.elem.MatchesIn(ts[i-1], r) {
				return false
			}
			if matchArgs(pats[1:], ts[i:], r) {
				return true
			}
		}
		return false
	}
	return len(ts) > 0 && p.typ.MatchesIn(ts[0], r) && matchArgs(pats[1:], ts[1:], r)
}

// Callee returns the function or method called by call and, for a method
// call, the receiver expression. It returns nil for calls of function
// values, conversions and builtins.
func Callee(info Info, call *ast.CallExpr) (fn *types.Func, recv ast.Expr) {
	fun := Unparen(call.Fun)
	switch f := fun.(type) {
	case *ast.IndexExpr:
		fun = Unparen(f.X)
	case *ast.IndexListExpr:
		fun = Unparen(f.X)
	}
	switch f := fun.(type) {
	case *ast.Ident:
		fn, _ = info.ObjectOf(f).(*types.Func)
		return fn, nil
	case *ast.SelectorExpr:
		if sel := info.Selection(f); sel != nil {
			if sel.Kind() != types.MethodVal {
				return nil, nil
			}
			fn, _ = sel.Obj().(*types.Func)
			return fn, f.X
		}
		// qualified identifier
		fn, _ = info.ObjectOf(f.Sel).(*types.Func)
		return fn, nil
	}
	return nil, nil
}

// Unparen returns e with any enclosing parentheses stripped.
func Unparen(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}
