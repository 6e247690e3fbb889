// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refactor

import (
	"go/ast"
	"go/token"
	"reflect"
)

// A Splice replaces one statement of a statement list
// by zero or more statements. An empty Splice removes the statement.
type Splice struct {
	List []ast.Stmt
}

func (s *Splice) Pos() token.Pos {
	if len(s.List) == 0 {
		return token.NoPos
	}
	return s.List[0].Pos()
}

func (s *Splice) End() token.Pos {
	if len(s.List) == 0 {
		return token.NoPos
	}
	return s.List[len(s.List)-1].End()
}

// Rebuild walks the tree rooted at root in post-order (children before
// their parent) and calls f for each node. The stack passed to f holds the
// node in stack[0], with its children already rebuilt, followed by its
// ancestors as they were before the walk. f returns the node to put in
// its place: the node itself to keep it, a different node to replace it,
// or a *Splice to replace a statement of a statement list.
//
// Rebuild never modifies a node: a node whose children change is
// shallow-copied and the copy is recorded in the overlay so it can be
// rendered relative to the original. Untouched subtrees are shared.
func (u *Unit) Rebuild(root ast.Node, f func(stack []ast.Node) ast.Node) ast.Node {
	r := &rebuilder{u: u, f: f}
	out := r.node(root)
	if sp, ok := out.(*Splice); ok {
		if len(sp.List) != 1 {
			return root
		}
		out = sp.List[0]
	}
	return out
}

type rebuilder struct {
	u     *Unit
	f     func([]ast.Node) ast.Node
	stack []ast.Node // root first
	view  []ast.Node
}

var (
	nodeType         = reflect.TypeOf((*ast.Node)(nil)).Elem()
	commentGroupType = reflect.TypeOf((*ast.CommentGroup)(nil))
	commentType      = reflect.TypeOf((*ast.Comment)(nil))
	stmtType         = reflect.TypeOf((*ast.Stmt)(nil)).Elem()
)

// skipField reports whether the field of a node struct is not part of the
// syntax tree proper: comments, resolution data, and File.Imports,
// which duplicates the import declarations.
func skipField(st reflect.Type, f reflect.StructField) bool {
	t := f.Type
	switch t.Kind() {
	case reflect.Slice:
		t = t.Elem()
	case reflect.Interface, reflect.Pointer:
	default:
		return true
	}
	if t == commentGroupType || t == commentType || !t.Implements(nodeType) {
		return true
	}
	if st == reflect.TypeOf(ast.File{}) && (f.Name == "Imports" || f.Name == "Unresolved") {
		return true
	}
	return false
}

func (r *rebuilder) node(n ast.Node) ast.Node {
	r.stack = append(r.stack, n)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	v := reflect.ValueOf(n)
	var cp reflect.Value
	if v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Struct {
		sv := v.Elem()
		st := sv.Type()
		for i := 0; i < st.NumField(); i++ {
			sf := st.Field(i)
			if !sf.IsExported() || skipField(st, sf) {
				continue
			}
			fv := sv.Field(i)
			var nv reflect.Value
			switch fv.Kind() {
			case reflect.Interface, reflect.Pointer:
				if fv.IsNil() {
					continue
				}
				child := fv.Interface().(ast.Node)
				nc := r.node(child)
				if nc == child {
					continue
				}
				if sp, ok := nc.(*Splice); ok {
					if len(sp.List) != 1 {
						continue
					}
					nc = sp.List[0]
				}
				rv := reflect.ValueOf(nc)
				if !rv.Type().AssignableTo(fv.Type()) {
					continue
				}
				nv = rv
			case reflect.Slice:
				nv = r.list(fv)
				if !nv.IsValid() {
					continue
				}
			}
			if !cp.IsValid() {
				cp = reflect.New(st)
				cp.Elem().Set(sv)
			}
			cp.Elem().Field(i).Set(nv)
		}
	}

	cur := n
	if cp.IsValid() {
		cur = cp.Interface().(ast.Node)
		r.u.ov.origin[cur] = r.u.Origin(n)
		if f, ok := cur.(*ast.File); ok {
			f.Imports = collectImports(f)
		}
	}
	if r.f == nil {
		return cur
	}

	r.view = r.view[:0]
	r.view = append(r.view, cur)
	for i := len(r.stack) - 2; i >= 0; i-- {
		r.view = append(r.view, r.stack[i])
	}
	out := r.f(r.view)
	if out == nil {
		return cur
	}
	if out != cur {
		if sp, ok := out.(*Splice); ok {
			if len(sp.List) > 0 {
				r.u.Supersede(n, sp.List[0])
			}
		} else {
			r.u.Supersede(n, out)
		}
	}
	return out
}

// list rebuilds the elements of a slice of nodes. It returns the invalid
// Value if no element changed.
func (r *rebuilder) list(fv reflect.Value) reflect.Value {
	var out reflect.Value
	et := fv.Type().Elem()
	for i := 0; i < fv.Len(); i++ {
		ev := fv.Index(i)
		if ev.Kind() == reflect.Pointer && ev.IsNil() || ev.Kind() == reflect.Interface && ev.IsNil() {
			if out.IsValid() {
				out = reflect.Append(out, ev)
			}
			continue
		}
		child := ev.Interface().(ast.Node)
		nc := r.node(child)
		if nc == child {
			if out.IsValid() {
				out = reflect.Append(out, ev)
			}
			continue
		}
		if !out.IsValid() {
			out = reflect.MakeSlice(fv.Type(), 0, fv.Len())
			out = reflect.AppendSlice(out, fv.Slice(0, i))
		}
		if sp, ok := nc.(*Splice); ok {
			if et == stmtType {
				for _, s := range sp.List {
					out = reflect.Append(out, reflect.ValueOf(&s).Elem())
				}
			} else if len(sp.List) == 1 && reflect.TypeOf(sp.List[0]).AssignableTo(et) {
				out = reflect.Append(out, reflect.ValueOf(sp.List[0]))
			} else {
				out = reflect.Append(out, ev)
			}
			continue
		}
		rv := reflect.ValueOf(nc)
		if !rv.Type().AssignableTo(et) {
			out = reflect.Append(out, ev)
			continue
		}
		out = reflect.Append(out, rv)
	}
	return out
}

func collectImports(f *ast.File) []*ast.ImportSpec {
	var list []*ast.ImportSpec
	for _, d := range f.Decls {
		d, ok := d.(*ast.GenDecl)
		if !ok || d.Tok != token.IMPORT {
			continue
		}
		for _, s := range d.Specs {
			if s, ok := s.(*ast.ImportSpec); ok {
				list = append(list, s)
			}
		}
	}
	return list
}

// Replace returns a copy of root in which old is replaced by repl.
// It returns root if old does not occur in the tree.
func (u *Unit) Replace(root, old, repl ast.Node) ast.Node {
	return u.Rebuild(root, func(stack []ast.Node) ast.Node {
		if stack[0] == old {
			return repl
		}
		return stack[0]
	})
}

// ReplaceList returns a copy of root in which the statements of the list
// container (a *ast.BlockStmt, *ast.CaseClause or *ast.CommClause) are
// replaced by list. Each element of list that stands for an element of the
// old list must be the old element, a copy of it, or be superseded by it.
func (u *Unit) ReplaceList(root, container ast.Node, list []ast.Stmt) ast.Node {
	var repl ast.Node
	switch c := container.(type) {
	case *ast.BlockStmt:
		b := *c
		b.List = list
		repl = &b
	case *ast.CaseClause:
		cc := *c
		cc.Body = list
		repl = &cc
	case *ast.CommClause:
		cc := *c
		cc.Body = list
		repl = &cc
	default:
		return root
	}
	u.ov.origin[repl] = u.Origin(container)
	return u.Replace(root, container, repl)
}

// Derive returns a shallow copy of n, recorded as derived from n, for the
// caller to modify before it is placed in a tree. n itself is not modified.
func Derive[N ast.Node](u *Unit, n N) N {
	v := reflect.ValueOf(n)
	cp := reflect.New(v.Elem().Type())
	cp.Elem().Set(v.Elem())
	out := cp.Interface().(N)
	u.ov.origin[out] = u.Origin(n)
	return out
}
