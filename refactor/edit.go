// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refactor

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	"reflect"
	"strings"

	"github.com/rewritekit/rw/edit"
)

// A Buffer is a queue of edits to apply to a file text.
// It's like edit.Buffer but uses token.Pos as coordinate space.
type Buffer struct {
	pos token.Pos
	end token.Pos
	ed  *edit.Buffer
}

func NewBufferAt(pos token.Pos, text []byte) *Buffer {
	return &Buffer{pos: pos, end: pos + token.Pos(len(text)), ed: edit.NewBuffer(text)}
}

func (b *Buffer) Bytes() ([]byte, error) {
	return b.ed.Bytes()
}

func (b *Buffer) String() string {
	return b.ed.String()
}

func (b *Buffer) Delete(pos, end token.Pos) {
	b.ed.Delete(int(pos-b.pos), int(end-b.pos))
}

func (b *Buffer) Insert(pos token.Pos, new string) {
	b.ed.Insert(int(pos-b.pos), new)
}

func (b *Buffer) Replace(pos, end token.Pos, new string) {
	b.ed.Replace(int(pos-b.pos), int(end-b.pos), new)
}

func (b *Buffer) contains(pos, end token.Pos) bool {
	return b.pos <= pos && pos <= end && end <= b.end
}

// errSplice is returned when a change cannot be expressed as an edit of
// the original text, for example a child appearing where there was none.
var errSplice = errors.New("cannot splice change into original text")

// Text returns the source text of n.
//
// A node that was parsed, from the unit or from a synthesized fragment,
// is its original text. A node derived from such a node by Rebuild is the
// original text with the text of every changed child spliced in, so
// comments and layout outside the changed children survive. A node built
// from scratch must consist of fresh nodes only and is printed.
func (u *Unit) Text(n ast.Node) (string, error) {
	if o, ok := u.ov.origin[n]; ok && o != n {
		if _, _, ok := u.sourceOf(o); ok {
			return u.derivedText(n, o)
		}
	}
	if src, base, ok := u.sourceOf(n); ok {
		pos, end := u.extent(n, src, base)
		return string(src[pos-base : end-base]), nil
	}
	var buf bytes.Buffer
	if err := format.Node(&buf, token.NewFileSet(), n); err != nil {
		return "", fmt.Errorf("printing %T: %w", n, err)
	}
	return buf.String(), nil
}

// sourceOf returns the text of the file n was parsed from
// and the position of the start of that text.
func (u *Unit) sourceOf(n ast.Node) (src []byte, base token.Pos, ok bool) {
	pos := n.Pos()
	if !pos.IsValid() {
		return nil, 0, false
	}
	tf := u.Fset.File(pos)
	if tf == nil {
		return nil, 0, false
	}
	src, ok = u.ov.srcs[tf]
	if !ok || int(n.End())-tf.Base() > len(src) {
		return nil, 0, false
	}
	return src, token.Pos(tf.Base()), true
}

func (u *Unit) extent(n ast.Node, src []byte, base token.Pos) (pos, end token.Pos) {
	if _, ok := n.(*ast.File); ok {
		return base, base + token.Pos(len(src))
	}
	return n.Pos(), n.End()
}

func (u *Unit) derivedText(n, o ast.Node) (string, error) {
	src, base, _ := u.sourceOf(o)
	pos, end := u.extent(o, src, base)
	b := NewBufferAt(pos, src[pos-base:end-base])
	if err := u.diff(b, n, o, src, base); err != nil {
		return "", err
	}
	out, err := b.Bytes()
	if err != nil {
		return "", fmt.Errorf("rendering %T: %w", n, err)
	}
	return string(out), nil
}

// diff queues in b the edits turning the text of o into the text of n,
// one child slot at a time.
func (u *Unit) diff(b *Buffer, n, o ast.Node, src []byte, base token.Pos) error {
	nv, ov := reflect.ValueOf(n).Elem(), reflect.ValueOf(o).Elem()
	if nv.Type() != ov.Type() {
		return errSplice
	}
	st := nv.Type()
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if !sf.IsExported() || skipField(st, sf) {
			continue
		}
		nf, of := nv.Field(i), ov.Field(i)
		switch nf.Kind() {
		case reflect.Interface, reflect.Pointer:
			if nf.IsNil() && of.IsNil() {
				continue
			}
			if !nf.IsNil() && !of.IsNil() && nf.Interface() == of.Interface() {
				continue
			}
			if of.IsNil() {
				return errSplice
			}
			oc := of.Interface().(ast.Node)
			if !b.contains(oc.Pos(), oc.End()) {
				return errSplice
			}
			if nf.IsNil() {
				b.Delete(oc.Pos(), oc.End())
				continue
			}
			t, err := u.Text(nf.Interface().(ast.Node))
			if err != nil {
				return err
			}
			b.Replace(oc.Pos(), oc.End(), t)
		case reflect.Slice:
			if err := u.diffList(b, o, nodes(nf), nodes(of), src, base); err != nil {
				return err
			}
		}
	}
	return nil
}

func nodes(v reflect.Value) []ast.Node {
	list := make([]ast.Node, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		if n, ok := v.Index(i).Interface().(ast.Node); ok && n != nil {
			list = append(list, n)
		}
	}
	return list
}

type listKind int

const (
	exprList listKind = iota
	stmtList
	specList
	declList
)

func kindOf(list []ast.Node) listKind {
	for _, n := range list {
		switch n.(type) {
		case ast.Stmt:
			return stmtList
		case ast.Spec:
			return specList
		case ast.Decl:
			return declList
		}
		break
	}
	return exprList
}

// anchor returns the index in old of the element e stands for, or -1.
func (u *Unit) anchor(e ast.Node, old []ast.Node) int {
	for _, a := range u.resolve(e) {
		for i, o := range old {
			if a == o {
				return i
			}
		}
	}
	return -1
}

func (u *Unit) diffList(b *Buffer, container ast.Node, new, old []ast.Node, src []byte, base token.Pos) error {
	if len(new) == len(old) {
		same := true
		for i := range new {
			if new[i] != old[i] {
				same = false
				break
			}
		}
		if same {
			return nil
		}
	}

	kind := kindOf(old)
	if len(old) == 0 {
		kind = kindOf(new)
	}

	// Match new elements to the old elements they stand for,
	// keeping only matches that preserve order.
	idx := make([]int, len(new))
	kept := make([]bool, len(old))
	last := -1
	for j, e := range new {
		i := u.anchor(e, old)
		if i <= last {
			i = -1
		}
		idx[j] = i
		if i >= 0 {
			kept[i] = true
			last = i
		}
	}

	if kind == exprList {
		return u.diffExprList(b, container, new, old, idx, src, base)
	}

	if g, ok := container.(*ast.GenDecl); ok && !g.Lparen.IsValid() {
		if len(new) != 1 || len(old) != 1 {
			return errSplice
		}
		t, err := u.Text(new[0])
		if err != nil {
			return err
		}
		b.Replace(old[0].Pos(), old[0].End(), t)
		return nil
	}

	for i, o := range old {
		if !kept[i] {
			pos, end := nodeRange(o, src, base)
			if !b.contains(pos, end) {
				return errSplice
			}
			b.Delete(pos, end)
		}
	}

	sep := "\n"
	if kind == declList {
		sep = "\n\n"
	}
	prev := -1
	for j, e := range new {
		if idx[j] >= 0 {
			prev = idx[j]
			if o := old[idx[j]]; e != o {
				t, err := u.Text(e)
				if err != nil {
					return err
				}
				b.Replace(o.Pos(), o.End(), t)
			}
			continue
		}
		t, err := u.Text(e)
		if err != nil {
			return err
		}
		next := -1
		for _, i := range idx[j+1:] {
			if i >= 0 {
				next = i
				break
			}
		}
		switch {
		case next >= 0 && (prev < 0 || kind == specList && !groupAfter(e, old[prev], old[next])):
			pos, _ := nodeRange(old[next], src, base)
			b.Insert(pos, t+sep)
		case prev >= 0:
			b.Insert(old[prev].End(), sep+t)
		default:
			pos, err := listStart(container)
			if err != nil {
				return err
			}
			b.Insert(pos, sep+t)
		}
	}
	return nil
}

// listStart returns the position just inside an empty list container.
func listStart(container ast.Node) (token.Pos, error) {
	switch c := container.(type) {
	case *ast.BlockStmt:
		return c.Lbrace + 1, nil
	case *ast.CaseClause:
		return c.Colon + 1, nil
	case *ast.CommClause:
		return c.Colon + 1, nil
	case *ast.GenDecl:
		if c.Lparen.IsValid() {
			return c.Lparen + 1, nil
		}
	case *ast.File:
		return c.Name.End(), nil
	}
	return token.NoPos, errSplice
}

// diffExprList handles comma-separated lists. Elements replaced in place
// are spliced individually; any other change rewrites the whole list.
func (u *Unit) diffExprList(b *Buffer, container ast.Node, new, old []ast.Node, idx []int, src []byte, base token.Pos) error {
	inPlace := len(new) == len(old)
	for j := range idx {
		if inPlace && idx[j] >= 0 && idx[j] != j {
			inPlace = false
		}
	}
	if inPlace {
		for j, e := range new {
			if e == old[j] {
				continue
			}
			t, err := u.Text(e)
			if err != nil {
				return err
			}
			b.Replace(old[j].Pos(), old[j].End(), t)
		}
		return nil
	}

	sep := ", "
	if fl, ok := container.(*ast.FieldList); ok && fl.Opening.IsValid() && src[fl.Opening-base] == '{' {
		sep = "\n"
	}
	var texts []string
	for _, e := range new {
		t, err := u.Text(e)
		if err != nil {
			return err
		}
		texts = append(texts, t)
	}
	text := strings.Join(texts, sep)
	if len(old) > 0 {
		b.Replace(old[0].Pos(), old[len(old)-1].End(), text)
		return nil
	}
	switch c := container.(type) {
	case *ast.CallExpr:
		b.Insert(c.Lparen+1, text)
	case *ast.CompositeLit:
		b.Insert(c.Lbrace+1, text)
	case *ast.FieldList:
		if !c.Opening.IsValid() {
			return errSplice
		}
		b.Insert(c.Opening+1, text)
	case *ast.ReturnStmt:
		b.Insert(c.Return+token.Pos(len("return")), " "+text)
	default:
		return errSplice
	}
	return nil
}
