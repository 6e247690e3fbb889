// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package match implements the pattern language used by rewrite rules
// to select types and calls, and structural comparison of expressions.
//
// A type pattern is one of
//
//	path.Name   the named type Name declared in package path
//	path.*      any named type declared in package path
//	path/...    any named type declared in path or a package below it
//	int, error  a predeclared type
//	*T, []T     pointers to and slices of types matching T
//	...T        the variadic parameter ...T, written as such in a call
//
// A trailing + switches the pattern to assignability mode: it then also
// matches pointers to the type, types embedding it, and, for interface
// types, every type implementing the interface.
//
// A method pattern is "decl name(args)", described at CompileMethod.
package match

import (
	"fmt"
	"go/token"
	"go/types"
	"strings"
)

// A CompileError reports a malformed pattern.
type CompileError struct {
	Pattern string
	Msg     string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("bad pattern %q: %s", e.Pattern, e.Msg)
}

type typeKind int

const (
	kindNamed  typeKind = iota // path.Name
	kindInPkg                  // path.*
	kindBelow                  // path/...
	kindBasic                  // predeclared
	kindPtr                    // *T
	kindSlice                  // []T
	kindVariadic               // ...T
)

// A TypeMatcher is a compiled type pattern.
// It is immutable and safe for concurrent use.
type TypeMatcher struct {
	pattern    string
	kind       typeKind
	path, name string
	basic      types.Type
	elem       *TypeMatcher
	assignable bool
}

// A Resolver finds named types by package path and name, for
// assignability checks against types the matched code does not mention.
type Resolver interface {
	LookupType(path, name string) types.Type
}

// CompileType compiles a type pattern.
func CompileType(pattern string) (*TypeMatcher, error) {
	m, err := compileType(strings.TrimSpace(pattern))
	if err != nil {
		return nil, &CompileError{Pattern: pattern, Msg: err.Error()}
	}
	return m, nil
}

func compileType(p string) (*TypeMatcher, error) {
	m := &TypeMatcher{pattern: p}
	if strings.HasSuffix(p, "+") {
		m.assignable = true
		p = strings.TrimSuffix(p, "+")
	}
	switch {
	case p == "":
		return nil, fmt.Errorf("missing type")
	case strings.HasPrefix(p, "..."):
		return m.wrap(kindVariadic, p[3:])
	case strings.HasPrefix(p, "[]"):
		return m.wrap(kindSlice, p[2:])
	case strings.HasPrefix(p, "*"):
		return m.wrap(kindPtr, p[1:])
	case strings.HasSuffix(p, "/..."):
		m.kind = kindBelow
		m.path = strings.TrimSuffix(p, "/...")
		if err := checkPath(m.path); err != nil {
			return nil, err
		}
		return m, nil
	}

	i := strings.LastIndex(p, ".")
	if i < 0 {
		obj, ok := types.Universe.Lookup(p).(*types.TypeName)
		if !ok {
			return nil, fmt.Errorf("%s is not a predeclared type; qualify it with its import path", p)
		}
		m.kind = kindBasic
		m.name = p
		m.basic = obj.Type()
		return m, nil
	}
	m.path, m.name = p[:i], p[i+1:]
	if err := checkPath(m.path); err != nil {
		return nil, err
	}
	switch {
	case m.name == "*":
		m.kind = kindInPkg
	case token.IsIdentifier(m.name):
		m.kind = kindNamed
	default:
		return nil, fmt.Errorf("invalid type name %q", m.name)
	}
	return m, nil
}

func (m *TypeMatcher) wrap(kind typeKind, rest string) (*TypeMatcher, error) {
	elem, err := compileType(rest)
	if err != nil {
		return nil, err
	}
	if elem.assignable {
		return nil, fmt.Errorf("+ must follow the whole type")
	}
	m.kind = kind
	m.elem = elem
	return m, nil
}

func checkPath(path string) error {
	if path == "" {
		return fmt.Errorf("missing package path")
	}
	for _, elem := range strings.Split(path, "/") {
		if elem == "" || elem == "." || elem == ".." || strings.ContainsAny(elem, "*+ \t(),") {
			return fmt.Errorf("invalid package path %q", path)
		}
	}
	return nil
}

func (m *TypeMatcher) String() string {
	return m.pattern
}

// Variadic reports whether the pattern is a variadic parameter ...T.
func (m *TypeMatcher) Variadic() bool {
	return m.kind == kindVariadic
}

// Matches reports whether t matches the pattern.
func (m *TypeMatcher) Matches(t types.Type) bool {
	return m.MatchesIn(t, nil)
}

// MatchesIn is like Matches, but in assignability mode it uses r to
// find the pattern's type when it is an interface that t may implement.
func (m *TypeMatcher) MatchesIn(t types.Type, r Resolver) bool {
	if t == nil {
		return false
	}
	t = types.Unalias(t)
	if b, ok := t.(*types.Basic); ok && b.Info()&types.IsUntyped != 0 {
		t = types.Default(t)
	}
	if m.exact(t) {
		return true
	}
	if !m.assignable {
		return false
	}
	if p, ok := t.(*types.Pointer); ok && m.exact(types.Unalias(p.Elem())) {
		return true
	}
	if m.embeds(t, 0) {
		return true
	}
	if m.kind == kindBasic {
		if iface, ok := m.basic.Underlying().(*types.Interface); ok {
			return types.Implements(t, iface)
		}
		return false
	}
	if m.kind == kindNamed && r != nil {
		if want := r.LookupType(m.path, m.name); want != nil {
			if iface, ok := want.Underlying().(*types.Interface); ok {
				return types.Implements(t, iface) || types.Implements(types.NewPointer(t), iface)
			}
			return types.AssignableTo(t, want)
		}
	}
	return false
}

func (m *TypeMatcher) exact(t types.Type) bool {
	switch m.kind {
	case kindBasic:
		return types.Identical(t, m.basic)
	case kindPtr:
		p, ok := t.(*types.Pointer)
		return ok && m.elem.Matches(p.Elem())
	case kindSlice, kindVariadic:
		s, ok := t.(*types.Slice)
		return ok && m.elem.Matches(s.Elem())
	}
	path, name, ok := namedOf(t)
	if !ok {
		return false
	}
	switch m.kind {
	case kindNamed:
		return path == m.path && name == m.name
	case kindInPkg:
		return path == m.path
	case kindBelow:
		return path == m.path || strings.HasPrefix(path, m.path+"/")
	}
	return false
}

// embeds reports whether t is a struct type, or a pointer to one,
// embedding a type that matches m.
func (m *TypeMatcher) embeds(t types.Type, depth int) bool {
	if depth > 8 {
		return false
	}
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	st, ok := t.Underlying().(*types.Struct)
	if !ok {
		return false
	}
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if !f.Embedded() {
			continue
		}
		ft := types.Unalias(f.Type())
		if p, ok := ft.(*types.Pointer); ok {
			ft = types.Unalias(p.Elem())
		}
		if m.exact(ft) || m.embeds(ft, depth+1) {
			return true
		}
	}
	return false
}

// namedOf returns the package path and name of a named type,
// looking through instantiation.
func namedOf(t types.Type) (path, name string, ok bool) {
	n, isNamed := t.(*types.Named)
	if !isNamed {
		return "", "", false
	}
	obj := n.Origin().Obj()
	if obj.Pkg() == nil {
		// error, comparable
		return "", obj.Name(), true
	}
	return obj.Pkg().Path(), obj.Name(), true
}
