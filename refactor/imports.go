// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Adapted from golang.org/x/tools/go/ast/astutil/imports.go
// and from gofix's import insertion code.

package refactor

import (
	"bytes"
	"go/ast"
	"go/token"
	"go/types"
	"path"
	"sort"
	"strconv"
	"strings"
)

// An ImportChange is a request by a rewrite to add or remove an import.
type ImportChange struct {
	Path   string
	Name   string // local name for added imports; "" for the package name
	Remove bool
}

// A Conflict records a path that was both added and removed in one run.
// The add wins.
type Conflict struct {
	Path string
}

// Reconcile recomputes the import declarations of u after rewriting.
// Imports whose package is no longer referenced are dropped, unless pinned
// (blank and dot imports, "C", and imports whose use cannot be determined).
// Packages referenced by the tree but not imported, and added imports that
// the tree uses, are inserted next to the import with the longest shared
// path prefix, in sorted position. Reconcile is idempotent: it returns u
// itself when the imports already match the tree.
func Reconcile(u *Unit, changes []ImportChange) (*Unit, []Conflict) {
	adds := make(map[string]string)
	removes := make(map[string]bool)
	for _, c := range changes {
		if c.Remove {
			removes[c.Path] = true
		} else if _, ok := adds[c.Path]; !ok || c.Name != "" {
			adds[c.Path] = c.Name
		}
	}
	var conflicts []Conflict
	for p := range removes {
		if _, ok := adds[p]; ok {
			conflicts = append(conflicts, Conflict{Path: p})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })

	used, unknown := usedImports(u)

	// Decide which existing imports stay.
	have := make(map[string]bool)
	drop := make(map[*ast.ImportSpec]bool)
	for _, spec := range u.File.Imports {
		p := importPath(spec)
		have[p] = true
		name := importName(spec)
		if name == "_" || name == "." || p == "C" {
			continue
		}
		if _, ok := used[p]; ok {
			continue
		}
		if name == "" {
			name = u.importedName(spec)
		}
		if unknown[name] {
			continue
		}
		drop[spec] = true
	}

	// Decide which imports are missing.
	var needs []ImportChange
	for p, name := range used {
		if have[p] || p == u.Pkg.Path() {
			continue
		}
		if n, ok := adds[p]; ok && n != "" {
			name = n
		}
		needs = append(needs, ImportChange{Path: p, Name: name})
	}
	for p, name := range adds {
		if name == "_" && !have[p] {
			needs = append(needs, ImportChange{Path: p, Name: name})
		}
	}
	if len(drop) == 0 && len(needs) == 0 {
		return u, conflicts
	}
	sort.Slice(needs, func(i, j int) bool { return needs[i].Path < needs[j].Path })

	return u.With(u.rewriteImports(drop, needs)), conflicts
}

// usedImports returns the import paths referenced by qualified identifiers
// in u, mapped to the local name used, and the names of qualifiers that
// resolve to nothing.
func usedImports(u *Unit) (used map[string]string, unknown map[string]bool) {
	used = make(map[string]string)
	unknown = make(map[string]bool)
	ast.Inspect(u.File, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		id, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		switch obj := u.ObjectOf(id).(type) {
		case *types.PkgName:
			name := obj.Name()
			if name == obj.Imported().Name() {
				name = ""
			}
			if _, ok := used[obj.Imported().Path()]; !ok {
				used[obj.Imported().Path()] = name
			}
		case nil:
			unknown[id.Name] = true
		}
		return true
	})
	return used, unknown
}

// importedName returns the name under which spec's package is known.
func (u *Unit) importedName(spec *ast.ImportSpec) string {
	if obj := u.Info.PkgNameOf(spec); obj != nil {
		return obj.Name()
	}
	return path.Base(importPath(spec))
}

func (u *Unit) rewriteImports(drop map[*ast.ImportSpec]bool, needs []ImportChange) *ast.File {
	f := u.File
	var imps []*ast.GenDecl
	for _, d := range f.Decls {
		d, ok := d.(*ast.GenDecl)
		if !ok || d.Tok != token.IMPORT {
			break
		}
		imps = append(imps, d)
	}

	// Assign each new import to the existing spec sharing the longest
	// prefix with it. Same logic as go fix.
	into := make(map[*ast.GenDecl][]ImportChange)
	var orphans []ImportChange
	for _, need := range needs {
		bestMatch := -1
		var bestDecl *ast.GenDecl
		for _, imp := range imps {
			// Do not add to import "C", to avoid disrupting the
			// association with its doc comment, breaking cgo.
			if declImports(imp, "C") {
				continue
			}
			for _, spec := range imp.Specs {
				if drop[spec.(*ast.ImportSpec)] {
					continue
				}
				n := matchLen(importPath(spec.(*ast.ImportSpec)), need.Path)
				if n > bestMatch {
					bestMatch = n
					bestDecl = imp
				}
			}
		}
		if bestDecl == nil {
			// Add new group to first (non-C) import, if any.
			for _, imp := range imps {
				if !declImports(imp, "C") {
					bestDecl = imp
					break
				}
			}
		}
		if bestDecl == nil {
			orphans = append(orphans, need)
			continue
		}
		into[bestDecl] = append(into[bestDecl], need)
	}

	var decls []ast.Decl
	changed := false
	for i, d := range f.Decls {
		imp, ok := d.(*ast.GenDecl)
		if !ok || i >= len(imps) {
			decls = append(decls, d)
			continue
		}
		var specs []ast.Spec
		for _, spec := range imp.Specs {
			if !drop[spec.(*ast.ImportSpec)] {
				specs = append(specs, spec)
			}
		}
		specs = u.insertSpecs(specs, into[imp])
		switch {
		case len(specs) == len(imp.Specs) && len(into[imp]) == 0:
			decls = append(decls, imp)
		case len(specs) == 0:
			changed = true
		case !imp.Lparen.IsValid() && len(specs) > 1:
			decls = append(decls, freshImportDecl(specs))
			changed = true
		default:
			imp1 := Derive(u, imp)
			imp1.Specs = specs
			decls = append(decls, imp1)
			changed = true
		}
		if i == len(imps)-1 && len(orphans) > 0 {
			decls = append(decls, freshImportDecl(u.insertSpecs(nil, orphans)))
			changed = true
			orphans = nil
		}
	}
	if len(orphans) > 0 {
		decls = append([]ast.Decl{freshImportDecl(u.insertSpecs(nil, orphans))}, decls...)
		changed = true
	}
	if !changed {
		return f
	}
	f1 := Derive(u, f)
	f1.Decls = decls
	f1.Imports = collectImports(f1)
	return f1
}

// insertSpecs inserts new import specs into specs, each at its sorted
// position within the group of imports sharing the longest prefix with it.
func (u *Unit) insertSpecs(specs []ast.Spec, needs []ImportChange) []ast.Spec {
	for _, need := range needs {
		spec := &ast.ImportSpec{Path: &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(need.Path)}}
		if need.Name != "" {
			spec.Name = ast.NewIdent(need.Name)
		}
		best, bestLen := -1, -1
		for i, s := range specs {
			if n := matchLen(importPath(s.(*ast.ImportSpec)), need.Path); n > bestLen {
				best, bestLen = i, n
			}
		}
		at := len(specs)
		if best >= 0 {
			lo, hi := u.specGroup(specs, best)
			at = hi
			for i := lo; i < hi; i++ {
				if importPath(specs[i].(*ast.ImportSpec)) > need.Path {
					at = i
					break
				}
			}
		}
		specs = append(specs[:at:at], append([]ast.Spec{spec}, specs[at:]...)...)
	}
	return specs
}

// specGroup returns the bounds of the run of specs without blank lines
// between them that contains specs[i].
func (u *Unit) specGroup(specs []ast.Spec, i int) (lo, hi int) {
	line := func(pos token.Pos) int {
		if !pos.IsValid() {
			return 0
		}
		return u.Fset.Position(pos).Line
	}
	adjacent := func(a, b ast.Spec) bool {
		la, lb := line(a.End()), line(b.Pos())
		return la == 0 || lb == 0 || lb-la <= 1
	}
	lo, hi = i, i+1
	for lo > 0 && adjacent(specs[lo-1], specs[lo]) {
		lo--
	}
	for hi < len(specs) && adjacent(specs[hi-1], specs[hi]) {
		hi++
	}
	return lo, hi
}

// freshImportDecl returns a new import declaration holding copies of specs,
// parenthesized when there is more than one. It contains only fresh nodes
// so it can be printed without position information.
func freshImportDecl(specs []ast.Spec) *ast.GenDecl {
	d := &ast.GenDecl{Tok: token.IMPORT}
	for _, s := range specs {
		s := s.(*ast.ImportSpec)
		spec := &ast.ImportSpec{Path: &ast.BasicLit{Kind: token.STRING, Value: s.Path.Value}}
		if s.Name != nil {
			spec.Name = ast.NewIdent(s.Name.Name)
		}
		d.Specs = append(d.Specs, spec)
	}
	if len(d.Specs) > 1 {
		d.Lparen = 1
		d.Rparen = 1
	}
	return d
}

// groupAfter reports whether a new import spec e inserted between prev and
// next, which sit in different groups, belongs to prev's group.
func groupAfter(e, prev, next ast.Node) bool {
	es, ok1 := e.(*ast.ImportSpec)
	ps, ok2 := prev.(*ast.ImportSpec)
	ns, ok3 := next.(*ast.ImportSpec)
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	p := importPath(es)
	return matchLen(importPath(ps), p) >= matchLen(importPath(ns), p)
}

var (
	slashSlash = []byte("//")
	starSlash  = []byte("*/")
)

// nodeRange returns the range to delete to remove n from text, which is
// the source of n's file starting at position base: n's lines together with
// trailing comments and attached leading comments.
func nodeRange(n ast.Node, text []byte, base token.Pos) (pos, end token.Pos) {
	startFile, endFile := base, base+token.Pos(len(text))

	pos = n.Pos()
	end = n.End()

	// Include space and comments following the node.
	for end < endFile && text[end-startFile] == ' ' {
		end++
	}
	if bytes.HasPrefix(text[end-startFile:], slashSlash) {
		i := bytes.IndexByte(text[end-startFile:], '\n')
		if i >= 0 {
			end += token.Pos(i)
		} else {
			end = endFile
		}
	}
	if end > n.End() && end < endFile && text[end-startFile] != '\n' {
		// If we consumed spaces but did not reach a newline,
		// put a space back to avoid joining tokens.
		end--
	}

	// Include tabs preceding the node, to beginning of line.
	// (If there are spaces before the node, it means something else
	// precedes the node on the line, so don't bother removing anything.)
	for pos > startFile && text[pos-startFile-1] == '\t' {
		pos--
	}

	// Include comments "attached" to this node,
	// but stopping at a blank line.
	// Reading comments backward is a bit tricky:
	// if we see a */, we need to stop and assume
	// we don't know the state of the world.
	for pos > startFile && text[pos-startFile-1] == '\n' {
		i := bytes.LastIndexByte(text[:pos-startFile-1], '\n') + 1
		line := text[i : pos-startFile]
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, slashSlash) || bytes.Contains(line, starSlash) {
			break
		}
		pos = startFile + token.Pos(i)
	}

	// Consume final \n if we are deleting the whole line.
	if (pos == startFile || text[pos-startFile-1] == '\n') && end < endFile && text[end-startFile] == '\n' {
		end++
	}

	return pos, end
}

// importName returns the name of s,
// or "" if the import is not named.
func importName(s *ast.ImportSpec) string {
	if s.Name == nil {
		return ""
	}
	return s.Name.Name
}

// importPath returns the unquoted import path of s,
// or "" if the path is not properly quoted.
func importPath(s *ast.ImportSpec) string {
	t, err := strconv.Unquote(s.Path.Value)
	if err != nil {
		return ""
	}
	return t
}

// NeedImport returns the name under which the package with the given path
// and package name can be referred to at pos: the name of an existing
// import of it if one is visible, otherwise the first of name, name+"pkg"
// and name+"_" that is not shadowed at pos. The caller requests the import
// with an ImportChange using the returned name.
func (u *Unit) NeedImport(pos token.Pos, pkgPath, name string) (string, bool) {
	names := []string{name, name + "pkg", name + "_"}
	for _, spec := range u.File.Imports {
		if importPath(spec) != pkgPath {
			continue
		}
		id := importName(spec)
		if id == "" {
			id = name
		}
		if id == "_" || id == "." {
			continue
		}
		if obj := u.LookupAt(id, pos); obj == nil {
			return id, true
		} else if obj, ok := obj.(*types.PkgName); ok && obj.Imported().Path() == pkgPath {
			return id, true
		}
	}
	for _, id := range names {
		if obj := u.LookupAt(id, pos); obj == nil {
			return id, true
		} else if obj, ok := obj.(*types.PkgName); ok && obj.Imported().Path() == pkgPath {
			return id, true
		}
	}
	return name, false
}

// declImports reports whether gen contains an import of path.
func declImports(gen *ast.GenDecl, path string) bool {
	if gen.Tok != token.IMPORT {
		return false
	}
	for _, spec := range gen.Specs {
		impspec := spec.(*ast.ImportSpec)
		if importPath(impspec) == path {
			return true
		}
	}
	return false
}

// matchLen returns the length of the longest prefix shared by x and y.
func matchLen(x, y string) int {
	if pathKind(x) != pathKind(y) {
		return -1
	}

	i := 0
	for i < len(x) && i < len(y) && x[i] == y[i] {
		i++
	}
	return i
}

func pathKind(x string) int {
	first, _, _ := strings.Cut(x, "/")
	if strings.Contains(first, ".") {
		return 2
	}
	if first == "cmd" {
		return 1
	}
	return 0
}
