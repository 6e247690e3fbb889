// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import (
	"errors"
	"go/ast"
	"go/types"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewritekit/rw/refactor"
)

const testSrc = `package p

type Type struct{}

func (Type) X(args ...any) {}
func (*Type) Y(s string, n int) {}

type Other struct{}

func (Other) X(args ...any) {}

type Namer interface{ Name() string }

type named struct{}

func (named) Name() string { return "" }

type Wrapper struct{ Type }

func Helper(s string) {}

func F(t Type, o Other, pt *Type, w Wrapper, list []string) {
	t.X("a")
	t.X("a", 1)
	t.X("a", 1, 2)
	t.X(1)
	o.X("a")
	pt.Y("s", 2)
	Helper("h")
	w.X()
	t.X(list[0])
}
`

func parse(t *testing.T) *refactor.Unit {
	t.Helper()
	u, err := refactor.NewSource().Parse("p.go", "example.com/p", []byte(testSrc))
	require.NoError(t, err)
	return u
}

// calls returns the calls in F, in order.
func calls(u *refactor.Unit) []*ast.CallExpr {
	var list []*ast.CallExpr
	for _, d := range u.File.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok && fd.Name.Name == "F" {
			for _, s := range fd.Body.List {
				list = append(list, s.(*ast.ExprStmt).X.(*ast.CallExpr))
			}
		}
	}
	return list
}

func objType(u *refactor.Unit, name string) types.Type {
	return u.Pkg.Scope().Lookup(name).Type()
}

func TestCompileTypeErrors(t *testing.T) {
	for _, p := range []string{
		"",
		"Foo",
		"example.com/p.",
		"example.com/p.1x",
		"*",
		"[]",
		"*example.com/p.T+x",
		"[]example.com/p.T++",
		"//...",
	} {
		_, err := CompileType(p)
		var ce *CompileError
		if assert.Error(t, err, "pattern %q", p) {
			assert.True(t, errors.As(err, &ce), "pattern %q: %T", p, err)
		}
	}
}

func TestTypeMatcher(t *testing.T) {
	u := parse(t)
	typ := objType(u, "Type")
	other := objType(u, "Other")

	tests := []struct {
		pattern string
		t       types.Type
		want    bool
	}{
		{"example.com/p.Type", typ, true},
		{"example.com/p.Type", other, false},
		{"example.com/p.Type", types.NewPointer(typ), false},
		{"example.com/p.Type+", types.NewPointer(typ), true},
		{"*example.com/p.Type", types.NewPointer(typ), true},
		{"example.com/p.*", other, true},
		{"example.com/...", other, true},
		{"example.com/q/...", other, false},
		{"example.com/p.Type+", objType(u, "Wrapper"), true},
		{"example.com/p.Namer+", objType(u, "named"), true},
		{"example.com/p.Namer+", typ, false},
		{"string", types.Typ[types.UntypedString], true},
		{"int", types.Typ[types.UntypedInt], true},
		{"int", types.Typ[types.String], false},
		{"[]string", types.NewSlice(types.Typ[types.String]), true},
		{"...string", types.NewSlice(types.Typ[types.String]), true},
		{"error", types.Universe.Lookup("error").Type(), true},
	}
	for _, tt := range tests {
		m, err := CompileType(tt.pattern)
		require.NoError(t, err, tt.pattern)
		assert.Equal(t, tt.want, m.MatchesIn(tt.t, u), "%s matching %v", tt.pattern, tt.t)
	}
}

func TestMethodMatcherWildcardArgs(t *testing.T) {
	u := parse(t)
	cs := calls(u)
	m, err := CompileMethod("example.com/p.Type *(string, ..)")
	require.NoError(t, err)

	assert.True(t, m.Matches(u, cs[0]), `t.X("a")`)
	assert.True(t, m.Matches(u, cs[1]), `t.X("a", 1)`)
	assert.True(t, m.Matches(u, cs[2]), `t.X("a", 1, 2)`)
	assert.False(t, m.Matches(u, cs[3]), `t.X(1)`)
	assert.False(t, m.Matches(u, cs[4]), `o.X("a")`)
	assert.True(t, m.Matches(u, cs[8]), `t.X(list[0])`)
}

func TestMethodMatcher(t *testing.T) {
	u := parse(t)
	cs := calls(u)
	tests := []struct {
		pattern string
		call    int
		want    bool
	}{
		{"example.com/p.Type Y(string, int)", 5, true},
		{"example.com/p.Type Y(string)", 5, false},
		{"example.com/p.Type Y(*, *)", 5, true},
		{"example.com/p.Type Y(..)", 5, true},
		{"example.com/p.Type Y(.., int)", 5, true},
		{"example.com/p.Type Z*(..)", 5, false},
		{"example.com/p.Type X()", 7, true},
		{"example.com/p.Wrapper X(..)", 7, true},
		{"example.com/p Helper(string)", 6, true},
		{"example.com/... Help*(*)", 6, true},
		{"example.com/p Helper()", 6, false},
		{"example.com/p.Type X(...any)", 0, false},
		{"example.com/p.Type X(string, int)", 1, true},
		{"example.com/p.Type X(any, int)", 1, false},
	}
	for _, tt := range tests {
		m, err := CompileMethod(tt.pattern)
		require.NoError(t, err, tt.pattern)
		assert.Equal(t, tt.want, m.Matches(u, cs[tt.call]), "%s on call %d", tt.pattern, tt.call)
	}
}

func TestCompileMethodErrors(t *testing.T) {
	for _, p := range []string{
		"example.com/p.Type",
		"example.com/p.Type X",
		"example.com/p.Type (..)",
		"example.com/p.Type X(,)",
		"example.com/p.Type X(Bad)",
		"example.com/p.Type [(..)",
	} {
		_, err := CompileMethod(p)
		var ce *CompileError
		if assert.Error(t, err, "pattern %q", p) {
			assert.True(t, errors.As(err, &ce))
		}
	}
}

func TestCache(t *testing.T) {
	var c Cache
	var wg sync.WaitGroup
	results := make([]*MethodMatcher, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := c.Method("example.com/p.Type X(..)")
			assert.NoError(t, err)
			results[i] = m
		}()
	}
	wg.Wait()
	for _, m := range results[1:] {
		assert.Same(t, results[0], m)
	}

	_, err1 := c.Type("Bogus")
	_, err2 := c.Type("Bogus")
	assert.Error(t, err1)
	assert.Same(t, err1, err2, "failures are cached")
}

func TestEqual(t *testing.T) {
	u, err := refactor.NewSource().Parse("e.go", "example.com/e", []byte(`package e

type T struct{ f int }

func (T) M(int) T { return T{} }

func F(a, b T) {
	a.M(1)
	a.M(1)
	b.M(1)
	(a).M(0x1)
	a.M(2)
	func() {}()
	func() {}()
}
`))
	require.NoError(t, err)
	var fd *ast.FuncDecl
	for _, d := range u.File.Decls {
		if d, ok := d.(*ast.FuncDecl); ok && d.Name.Name == "F" {
			fd = d
		}
	}
	require.NotNil(t, fd)
	e := func(i int) ast.Expr { return fd.Body.List[i].(*ast.ExprStmt).X }

	assert.True(t, Equal(u, e(0), e(1)))
	assert.False(t, Equal(u, e(0), e(2)), "different receiver objects")
	assert.True(t, Equal(u, e(0), e(3)), "parens and constant spelling do not matter")
	assert.False(t, Equal(u, e(0), e(4)))
	assert.False(t, Equal(u, e(5), e(6)), "function literals never match")
}
