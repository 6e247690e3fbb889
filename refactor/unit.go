// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refactor

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	"go/types"
)

// A Unit is one Go source file together with the type information
// computed for it. A Unit is an immutable value: edits produce a new
// Unit sharing all untouched syntax with its predecessor.
type Unit struct {
	Name string         // file name
	Fset *token.FileSet // file set for all positions in the unit
	File *ast.File      // current syntax tree
	Pkg  *types.Package // package containing the file
	Info *types.Info    // type information for the original syntax
	Src  []byte         // original source text

	// Siblings holds the other files of the package, for validation.
	Siblings []*ast.File

	orig   *ast.File
	source *Source
	ov     *overlay
}

// An overlay records everything learned about syntax that was created after
// the unit was type-checked: the origin of copied nodes, the replacement
// history of spliced nodes, type information of synthesized fragments and
// the source text of every file a node can point into.
//
// Overlays only ever gain fresh keys, so they are shared by all Units
// derived from the same parse.
type overlay struct {
	origin map[ast.Node]ast.Node // copy -> root original
	anchor map[ast.Node]ast.Node // replacement -> replaced
	info   *types.Info
	srcs   map[*token.File][]byte
	files  map[*token.File]*ast.File
}

func newOverlay() *overlay {
	return &overlay{
		origin: make(map[ast.Node]ast.Node),
		anchor: make(map[ast.Node]ast.Node),
		info:   NewInfo(),
		srcs:   make(map[*token.File][]byte),
		files:  make(map[*token.File]*ast.File),
	}
}

// NewInfo returns a types.Info with all the maps the engine consults.
func NewInfo() *types.Info {
	return &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Implicits:  make(map[ast.Node]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
		Scopes:     make(map[ast.Node]*types.Scope),
		Instances:  make(map[*ast.Ident]types.Instance),
	}
}

func newUnit(src *Source, name string, file *ast.File, pkg *types.Package, info *types.Info, text []byte) *Unit {
	u := &Unit{
		Name:   name,
		Fset:   src.Fset,
		File:   file,
		Pkg:    pkg,
		Info:   info,
		Src:    text,
		orig:   file,
		source: src,
		ov:     newOverlay(),
	}
	tf := src.Fset.File(file.Pos())
	u.ov.srcs[tf] = text
	return u
}

// With returns a copy of u whose syntax tree is file.
func (u *Unit) With(file *ast.File) *Unit {
	if file == u.File {
		return u
	}
	u1 := *u
	u1.File = file
	return &u1
}

// Modified reports whether the unit's syntax differs from what was parsed.
func (u *Unit) Modified() bool {
	return u.File != u.orig
}

// Original returns the unit as it was parsed.
func (u *Unit) Original() *Unit {
	return u.With(u.orig)
}

// Source returns the provider that parsed the unit.
func (u *Unit) Source() *Source {
	return u.source
}

// Format returns the source text of the unit. An unmodified unit
// returns its original text unchanged; a modified unit is rendered
// by splicing the text of changed nodes into the original and then
// formatting the result with gofmt.
func (u *Unit) Format() ([]byte, error) {
	if !u.Modified() {
		return u.Src, nil
	}
	text, err := u.Text(u.File)
	if err != nil {
		return nil, err
	}
	out, err := format.Source([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%s: formatting rewritten file: %w", u.Name, err)
	}
	return out, nil
}

// Equal reports whether u and v render to the same text.
func (u *Unit) Equal(v *Unit) bool {
	if u.File == v.File {
		return true
	}
	a, err1 := u.Format()
	b, err2 := v.Format()
	return err1 == nil && err2 == nil && bytes.Equal(a, b)
}

// Position returns the position of pos, which may point into the unit
// or into a synthesized fragment.
func (u *Unit) Position(pos token.Pos) token.Position {
	return u.Fset.Position(pos)
}

// Origin returns the node n was copied from, or n itself.
func (u *Unit) Origin(n ast.Node) ast.Node {
	if o, ok := u.ov.origin[n]; ok {
		return o
	}
	return n
}

// Supersede records that repl took the place of old in the tree.
// Rendering uses the record to splice repl where old used to be.
func (u *Unit) Supersede(old, repl ast.Node) {
	if old == nil || repl == nil || old == repl {
		return
	}
	if _, ok := u.ov.anchor[repl]; !ok {
		u.ov.anchor[repl] = old
	}
}

// resolve follows copy and replacement records from n back to the
// oldest node it stands for.
func (u *Unit) resolve(n ast.Node) []ast.Node {
	chain := []ast.Node{n}
	for i := 0; i < 64; i++ {
		if o, ok := u.ov.origin[n]; ok && o != n {
			n = o
		} else if o, ok := u.ov.anchor[n]; ok && o != n {
			n = o
		} else {
			break
		}
		chain = append(chain, n)
	}
	return chain
}

// TypeOf returns the type of expression e, or nil if unknown.
func (u *Unit) TypeOf(e ast.Expr) types.Type {
	if tv, ok := u.TypeAndValue(e); ok {
		return tv.Type
	}
	if id, ok := e.(*ast.Ident); ok {
		if obj := u.ObjectOf(id); obj != nil {
			return obj.Type()
		}
	}
	return nil
}

// TypeAndValue returns the recorded type and value of e.
func (u *Unit) TypeAndValue(e ast.Expr) (types.TypeAndValue, bool) {
	for _, n := range u.resolve(e) {
		e, ok := n.(ast.Expr)
		if !ok {
			break
		}
		if tv, ok := u.Info.Types[e]; ok {
			return tv, true
		}
		if tv, ok := u.ov.info.Types[e]; ok {
			return tv, true
		}
	}
	return types.TypeAndValue{}, false
}

// ObjectOf returns the object denoted or defined by id, or nil.
func (u *Unit) ObjectOf(id *ast.Ident) types.Object {
	if obj := u.Info.ObjectOf(id); obj != nil {
		return obj
	}
	return u.ov.info.ObjectOf(id)
}

// Selection returns the selection recorded for x, or nil.
func (u *Unit) Selection(x *ast.SelectorExpr) *types.Selection {
	for _, n := range u.resolve(x) {
		x, ok := n.(*ast.SelectorExpr)
		if !ok {
			break
		}
		if sel := u.Info.Selections[x]; sel != nil {
			return sel
		}
		if sel := u.ov.info.Selections[x]; sel != nil {
			return sel
		}
	}
	return nil
}

// LookupType returns the type declared as name in the package with the
// given import path, as seen from the unit's package, or nil.
func (u *Unit) LookupType(path, name string) types.Type {
	p, err := u.source.importerFunc(u.Pkg).Import(path)
	if err != nil {
		return nil
	}
	tn, ok := p.Scope().Lookup(name).(*types.TypeName)
	if !ok {
		return nil
	}
	return tn.Type()
}

// LookupAt returns the object that name denotes at pos, or nil.
func (u *Unit) LookupAt(name string, pos token.Pos) types.Object {
	s := u.ScopeAt(pos)
	if s == nil {
		return nil
	}
	_, obj := s.LookupParent(name, pos)
	return obj
}

// InsertionPos returns the position to resolve names at for syntax placed
// at stack[0]: the start of the innermost node that was parsed from the
// unit's own file. Synthesized nodes carry positions in fragment files.
func (u *Unit) InsertionPos(stack []ast.Node) token.Pos {
	tf := u.Fset.File(u.orig.Pos())
	for _, n := range stack {
		if p := n.Pos(); p.IsValid() && u.Fset.File(p) == tf {
			return p
		}
	}
	return u.orig.Name.End()
}

// ScopeAt returns the innermost scope containing pos.
func (u *Unit) ScopeAt(pos token.Pos) *types.Scope {
	tf := u.Fset.File(pos)
	if tf == nil {
		return u.Pkg.Scope()
	}
	if f := u.ov.files[tf]; f != nil {
		if s := u.ov.info.Scopes[f]; s != nil {
			return s.Innermost(pos)
		}
	}
	if s := u.Info.Scopes[u.orig]; s != nil && u.Fset.File(u.orig.Pos()) == tf {
		if in := s.Innermost(pos); in != nil {
			return in
		}
		return s
	}
	return u.Pkg.Scope()
}

// A Scope is an insertion point: a position in a unit where
// synthesized syntax is going to be placed.
type Scope struct {
	Unit *Unit
	Pos  token.Pos
}

// Lookup returns the object name denotes at the insertion point.
func (s Scope) Lookup(name string) types.Object {
	return s.Unit.LookupAt(name, s.Pos)
}

// Locals returns the function-local objects visible at the
// insertion point, innermost first.
func (s Scope) Locals() []types.Object {
	var objs []types.Object
	seen := make(map[string]bool)
	pkgScope := s.Unit.Pkg.Scope()
	for sc := s.Unit.ScopeAt(s.Pos); sc != nil && sc != pkgScope && sc != types.Universe; sc = sc.Parent() {
		if sc.Parent() == pkgScope {
			// file scope
			break
		}
		for _, name := range sc.Names() {
			obj := sc.Lookup(name)
			if seen[name] || (obj.Pos().IsValid() && obj.Pos() > s.Pos && s.Unit.Fset.File(obj.Pos()) == s.Unit.Fset.File(s.Pos)) {
				continue
			}
			seen[name] = true
			objs = append(objs, obj)
		}
	}
	return objs
}

// absorb adds a synthesized fragment's file, text and type information
// to the unit's overlay.
func (u *Unit) absorb(file *ast.File, text []byte, info *types.Info) {
	tf := u.Fset.File(file.Pos())
	u.ov.srcs[tf] = text
	u.ov.files[tf] = file
	if info == nil {
		return
	}
	for k, v := range info.Types {
		u.ov.info.Types[k] = v
	}
	for k, v := range info.Defs {
		u.ov.info.Defs[k] = v
	}
	for k, v := range info.Uses {
		u.ov.info.Uses[k] = v
	}
	for k, v := range info.Implicits {
		u.ov.info.Implicits[k] = v
	}
	for k, v := range info.Selections {
		u.ov.info.Selections[k] = v
	}
	for k, v := range info.Scopes {
		u.ov.info.Scopes[k] = v
	}
	for k, v := range info.Instances {
		u.ov.info.Instances[k] = v
	}
}
