// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refactor

import (
	"go/ast"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseUnit(t *testing.T, src string) *Unit {
	t.Helper()
	u, err := NewSource().Parse("p.go", "example.com/p", []byte(src))
	require.NoError(t, err)
	return u
}

func render(t *testing.T, u *Unit) string {
	t.Helper()
	out, err := u.Format()
	require.NoError(t, err)
	return string(out)
}

// callTo reports whether stack[0] is the statement calling the named function.
func callTo(stack []ast.Node, name string) bool {
	es, ok := stack[0].(*ast.ExprStmt)
	if !ok {
		return false
	}
	call, ok := es.X.(*ast.CallExpr)
	if !ok {
		return false
	}
	id, ok := call.Fun.(*ast.Ident)
	return ok && id.Name == name
}

func TestRebuildUnchanged(t *testing.T) {
	const src = "package p\n\n// F is F.\nfunc F() int   { return 1 }\n"
	u := parseUnit(t, src)
	f := u.Rebuild(u.File, func(stack []ast.Node) ast.Node { return stack[0] })
	assert.Same(t, u.File, f)

	u1 := u.With(f.(*ast.File))
	assert.False(t, u1.Modified())
	assert.Equal(t, src, render(t, u1), "unmodified unit must keep its exact text")
}

func TestRebuildSharesUntouched(t *testing.T) {
	u := parseUnit(t, `package p

// F doc.
func F() int {
	x := 1 // one
	return x
}

func G() int { return 2 }
`)
	f := u.Rebuild(u.File, func(stack []ast.Node) ast.Node {
		if lit, ok := stack[0].(*ast.BasicLit); ok && lit.Value == "1" {
			return &ast.BasicLit{Kind: token.INT, Value: "42"}
		}
		return stack[0]
	}).(*ast.File)

	require.NotSame(t, u.File, f)
	assert.NotSame(t, u.File.Decls[0], f.Decls[0])
	assert.Same(t, u.File.Decls[1], f.Decls[1])
	assert.Equal(t, "1", u.File.Decls[0].(*ast.FuncDecl).Body.List[0].(*ast.AssignStmt).Rhs[0].(*ast.BasicLit).Value,
		"original tree must not change")

	assert.Equal(t, `package p

// F doc.
func F() int {
	x := 42 // one
	return x
}

func G() int { return 2 }
`, render(t, u.With(f)))
}

const abcSrc = `package p

func a() {}
func b() {}
func c() {}

func F() {
	a()
	// about b
	b()
	c()
}
`

func TestRemoveStatement(t *testing.T) {
	u := parseUnit(t, abcSrc)
	f := u.Rebuild(u.File, func(stack []ast.Node) ast.Node {
		if callTo(stack, "b") {
			return &Splice{}
		}
		return stack[0]
	}).(*ast.File)

	assert.Equal(t, `package p

func a() {}
func b() {}
func c() {}

func F() {
	a()
	c()
}
`, render(t, u.With(f)))
}

func TestInsertStatement(t *testing.T) {
	u := parseUnit(t, abcSrc)
	f := u.Rebuild(u.File, func(stack []ast.Node) ast.Node {
		if callTo(stack, "a") {
			fresh := &ast.ExprStmt{X: &ast.CallExpr{Fun: ast.NewIdent("c")}}
			return &Splice{List: []ast.Stmt{stack[0].(ast.Stmt), fresh}}
		}
		return stack[0]
	}).(*ast.File)

	assert.Equal(t, `package p

func a() {}
func b() {}
func c() {}

func F() {
	a()
	c()
	// about b
	b()
	c()
}
`, render(t, u.With(f)))
}

func TestReconcileRemovesUnused(t *testing.T) {
	u := parseUnit(t, `package p

import (
	"fmt"
	"strings"
)

func F() string {
	fmt.Println()
	return strings.ToUpper("x")
}
`)
	f := u.Rebuild(u.File, func(stack []ast.Node) ast.Node {
		if es, ok := stack[0].(*ast.ExprStmt); ok {
			if _, ok := es.X.(*ast.CallExpr); ok {
				return &Splice{}
			}
		}
		return stack[0]
	}).(*ast.File)

	u1, conflicts := Reconcile(u.With(f), nil)
	assert.Empty(t, conflicts)
	assert.Equal(t, `package p

import (
	"strings"
)

func F() string {
	return strings.ToUpper("x")
}
`, render(t, u1))

	u2, _ := Reconcile(u1, nil)
	assert.Same(t, u1, u2, "reconcile must be idempotent")
}

func TestReconcileAddsUsed(t *testing.T) {
	u := parseUnit(t, `package p

import "fmt"

func F() {
	fmt.Println("A")
}
`)
	frag, err := u.Source().CheckFragment(Scope{Unit: u, Pos: u.File.Name.End()},
		[]byte("package p\n\nimport \"strings\"\n\nvar _ = strings.ToLower(\"A\")\n"))
	require.NoError(t, err)
	lower := frag.Decls[1].(*ast.GenDecl).Specs[0].(*ast.ValueSpec).Values[0]

	f := u.Rebuild(u.File, func(stack []ast.Node) ast.Node {
		if lit, ok := stack[0].(*ast.BasicLit); ok && lit.Value == `"A"` {
			return lower
		}
		return stack[0]
	}).(*ast.File)

	u1, conflicts := Reconcile(u.With(f), []ImportChange{
		{Path: "strings"},
		{Path: "strings", Remove: true},
	})
	assert.Equal(t, []Conflict{{Path: "strings"}}, conflicts)
	assert.Equal(t, `package p

import (
	"fmt"
	"strings"
)

func F() {
	fmt.Println(strings.ToLower("A"))
}
`, render(t, u1))
	require.NoError(t, u.Source().Validate(u1))

	u2, _ := Reconcile(u1, nil)
	assert.Same(t, u1, u2)
}

func TestReconcileKeepsPinned(t *testing.T) {
	u := parseUnit(t, `package p

import (
	_ "embed"
	"fmt"
)

func F() { fmt.Println() }
`)
	f := u.Rebuild(u.File, func(stack []ast.Node) ast.Node {
		if _, ok := stack[0].(*ast.ExprStmt); ok {
			return &Splice{}
		}
		return stack[0]
	}).(*ast.File)
	u1, _ := Reconcile(u.With(f), nil)
	assert.Equal(t, `package p

import (
	_ "embed"
)

func F() {}
`, render(t, u1))
}

func TestNodeRange(t *testing.T) {
	u := parseUnit(t, abcSrc)
	body := u.File.Decls[3].(*ast.FuncDecl).Body
	pos, end := nodeRange(body.List[1], u.Src, token.Pos(u.Fset.File(u.File.Pos()).Base()))
	base := u.Fset.File(u.File.Pos()).Base()
	assert.Equal(t, "\t// about b\n\tb()\n", string(u.Src[int(pos)-base:int(end)-base]))
}

func TestInsertionPos(t *testing.T) {
	u := parseUnit(t, abcSrc)
	decl := u.File.Decls[3].(*ast.FuncDecl)
	stmt := decl.Body.List[1]
	synthesized := &ast.CallExpr{Fun: ast.NewIdent("b")}
	assert.Equal(t, stmt.Pos(), u.InsertionPos([]ast.Node{synthesized, stmt, decl.Body, decl, u.File}))
	assert.Equal(t, u.File.Name.End(), u.InsertionPos([]ast.Node{synthesized}))
}
