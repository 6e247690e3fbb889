// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"slices"

	"github.com/rewritekit/rw/match"
	"github.com/rewritekit/rw/refactor"
	"github.com/rewritekit/rw/rewrite"
	"github.com/rewritekit/rw/template"
)

// An ExpectSpec describes the expect-panic rewrite. A function body of
// the form
//
//	defer func() {
//		if r := recover(); r == nil {
//			t.Error("no panic")
//		}
//	}()
//	body
//	t.Fatal("did not panic")
//
// where the last call matches Sentinel is replaced by Template, with the
// placeholder labeled t bound to the sentinel's receiver and the one
// labeled body bound to the statements in between. If the handler
// asserts the recovered value's type, TypedTemplate is used instead, with
// the placeholder labeled type bound to the asserted type; without a
// TypedTemplate such a body is left alone.
type ExpectSpec struct {
	Name          string
	Sentinel      *match.MethodMatcher
	Template      string
	TypedTemplate string
	Imports       []refactor.ImportChange

	// Bind, if set, lists the placeholder labels in placeholder order,
	// overriding the labels written in the templates.
	Bind []string
}

// ExpectPanic returns the rule described by spec.
func ExpectPanic(spec ExpectSpec) (rewrite.Rule, error) {
	for _, tmpl := range []string{spec.Template, spec.TypedTemplate} {
		if tmpl == "" {
			continue
		}
		if err := checkLabels(spec, tmpl); err != nil {
			return rewrite.Rule{}, err
		}
	}
	if spec.Template == "" {
		return rewrite.Rule{}, fmt.Errorf("expect-panic %s: no template", spec.Name)
	}
	e := &expecter{spec: spec}
	return rewrite.Rule{
		Name:    spec.Name,
		Imports: spec.Imports,
		Actions: map[rewrite.Kind]rewrite.Action{
			rewrite.BlockStmt: e.block,
			rewrite.ExprStmt:  e.literal,
		},
	}, nil
}

func checkLabels(spec ExpectSpec, tmpl string) error {
	labels := labelsOf(spec, tmpl)
	if len(labels) != template.Count(tmpl) {
		return fmt.Errorf("expect-panic %s: %d bind labels for %d placeholders in %q", spec.Name, len(labels), template.Count(tmpl), tmpl)
	}
	for _, l := range labels {
		switch l {
		case "t", "body", "type":
		default:
			return fmt.Errorf("expect-panic %s: unknown placeholder %q", spec.Name, l)
		}
	}
	return nil
}

func labelsOf(spec ExpectSpec, tmpl string) []string {
	if spec.Bind != nil {
		return spec.Bind
	}
	return template.Labels(tmpl)
}

// An expectState is how far a statement list got through the
// expect-panic recognizer. Each state requires the previous one.
type expectState int

const (
	scanning      expectState = iota
	sentinelLast              // the list ends with a sentinel call
	singleHandler             // and starts with the only deferred recover handler
	matched                   // and the statements in between are safe to wrap
)

func (s expectState) String() string {
	switch s {
	case scanning:
		return "scanning"
	case sentinelLast:
		return "sentinel-last"
	case singleHandler:
		return "single-handler"
	case matched:
		return "matched"
	}
	return "unknown"
}

// An expectMatch is a recognized expect-panic body.
type expectMatch struct {
	t     ast.Expr   // sentinel receiver
	body  []ast.Stmt // statements between handler and sentinel
	typ   ast.Expr   // asserted type, or nil
	state expectState
}

type expecter struct {
	spec ExpectSpec
}

// block rewrites the body of a function.
func (e *expecter) block(c *rewrite.Cursor) rewrite.Result {
	switch p := c.Parent().(type) {
	case *ast.FuncDecl:
	case *ast.FuncLit:
		// func() { ... }() is rewritten as a whole by literal.
		if anc := c.Ancestors(); len(anc) >= 3 {
			if call, ok := anc[1].(*ast.CallExpr); ok && call.Fun == p && len(call.Args) == 0 {
				if _, ok := anc[2].(*ast.ExprStmt); ok {
					return rewrite.Unchanged()
				}
			}
		}
	default:
		return rewrite.Unchanged()
	}

	blk := c.Node().(*ast.BlockStmt)
	s, err := e.synthesize(c, blk.List)
	if err != nil {
		return rewrite.Unchanged()
	}
	return rewrite.Replace(withList(c.Unit(), blk, []ast.Stmt{s}))
}

// literal rewrites an immediately invoked function literal.
func (e *expecter) literal(c *rewrite.Cursor) rewrite.Result {
	es := c.Node().(*ast.ExprStmt)
	call, ok := es.X.(*ast.CallExpr)
	if !ok || len(call.Args) != 0 {
		return rewrite.Unchanged()
	}
	lit, ok := call.Fun.(*ast.FuncLit)
	if !ok || lit.Type.Params.NumFields() != 0 || lit.Type.Results.NumFields() != 0 {
		return rewrite.Unchanged()
	}
	s, err := e.synthesize(c, lit.Body.List)
	if err != nil {
		return rewrite.Unchanged()
	}
	return rewrite.Replace(s)
}

func (e *expecter) synthesize(c *rewrite.Cursor, list []ast.Stmt) (ast.Stmt, error) {
	m := e.scan(c.Unit(), list)
	if m.state != matched {
		if m.state > scanning {
			c.Logger().DebugContext(c.Context(), "expect-panic shape rejected", "state", m.state, c.Position())
		}
		return nil, fmt.Errorf("stopped in state %s", m.state)
	}
	tmpl := e.spec.Template
	if m.typ != nil {
		if e.spec.TypedTemplate == "" {
			return nil, fmt.Errorf("no template for typed handler")
		}
		tmpl = e.spec.TypedTemplate
	}

	var bound []ast.Node
	for _, l := range labelsOf(e.spec, tmpl) {
		switch l {
		case "t":
			bound = append(bound, m.t)
		case "body":
			bound = append(bound, &refactor.Splice{List: m.body})
		case "type":
			if m.typ == nil {
				return nil, fmt.Errorf("template binds a type but the handler asserts none")
			}
			bound = append(bound, m.typ)
		}
	}
	frag, err := c.Synthesize(tmpl, bound...)
	if err != nil {
		return nil, err
	}
	s := frag.Stmt()
	if s == nil {
		return nil, fmt.Errorf("template %q is not a single statement", tmpl)
	}
	return s, nil
}

// scan runs the recognizer over list.
func (e *expecter) scan(u *refactor.Unit, list []ast.Stmt) expectMatch {
	var m expectMatch
	if len(list) < 3 {
		return m
	}

	// The last statement calls the sentinel.
	call, _, recv := methodCall(u, list[len(list)-1])
	if call == nil || !e.spec.Sentinel.Matches(u, call) {
		return m
	}
	m.t = recv
	m.state = sentinelLast

	// The first statement defers the only handler.
	d, ok := list[0].(*ast.DeferStmt)
	if !ok || len(d.Call.Args) != 0 {
		return m
	}
	lit, ok := d.Call.Fun.(*ast.FuncLit)
	if !ok || lit.Type.Params.NumFields() != 0 || lit.Type.Results.NumFields() != 0 {
		return m
	}
	typ, ok := handler(u, lit, recv)
	if !ok {
		return m
	}
	m.typ = typ
	m.state = singleHandler

	// The statements in between can run inside a function literal.
	body := list[1 : len(list)-1]
	for _, s := range body {
		if !movable(u, s) {
			return m
		}
	}
	m.body = slices.Clone(body)
	m.state = matched
	return m
}

// movable reports whether s can be moved into a function literal:
// it does not return, defer, recover, branch to labels or jump out.
func movable(u *refactor.Unit, s ast.Stmt) bool {
	ok := true
	ast.Inspect(s, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.ReturnStmt, *ast.DeferStmt, *ast.LabeledStmt:
			ok = false
		case *ast.BranchStmt:
			if n.Tok == token.GOTO || n.Label != nil {
				ok = false
			}
		case *ast.CallExpr:
			if isRecover(u, n) {
				ok = false
			}
		}
		return ok
	})
	return ok
}

func isRecover(u *refactor.Unit, call *ast.CallExpr) bool {
	id, ok := match.Unparen(call.Fun).(*ast.Ident)
	if !ok {
		return false
	}
	b, ok := u.ObjectOf(id).(*types.Builtin)
	return ok && b.Name() == "recover"
}

// A handlerCheck holds what is known while checking a recover handler.
type handlerCheck struct {
	u        *refactor.Unit
	t        ast.Expr // sentinel receiver
	locals   map[types.Object]bool
	recovers int
	typ      ast.Expr
	asserts  int
}

// handler reports whether lit is a recover handler that only inspects the
// recovered value and reports failures on t, and returns the type it
// asserts the value to have, if any.
func handler(u *refactor.Unit, lit *ast.FuncLit, t ast.Expr) (ast.Expr, bool) {
	h := &handlerCheck{u: u, t: t, locals: make(map[types.Object]bool)}
	if !h.stmts(lit.Body.List) {
		return nil, false
	}
	if h.recovers != 1 || h.asserts > 1 {
		return nil, false
	}
	if escapes(u, lit, vars(u, t)) {
		return nil, false
	}
	return h.typ, true
}

func (h *handlerCheck) stmts(list []ast.Stmt) bool {
	for _, s := range list {
		if !h.stmt(s) {
			return false
		}
	}
	return true
}

func (h *handlerCheck) stmt(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.ExprStmt:
		call, ok := s.X.(*ast.CallExpr)
		if !ok {
			return false
		}
		if isRecover(h.u, call) {
			h.recovers++
			return true
		}
		return h.failure(call)

	case *ast.AssignStmt:
		return h.define(s)

	case *ast.IfStmt:
		if s.Init != nil && !h.stmt(s.Init) {
			return false
		}
		if !h.cond(s.Cond) || !h.stmts(s.Body.List) {
			return false
		}
		switch els := s.Else.(type) {
		case nil:
			return true
		case *ast.BlockStmt:
			return h.stmts(els.List)
		case *ast.IfStmt:
			return h.stmt(els)
		}
	}
	return false
}

// define accepts v := recover(), v := recover().(T), v, ok := x.(T)
// and the like, where x is recover() or a local of the handler.
func (h *handlerCheck) define(s *ast.AssignStmt) bool {
	if s.Tok != token.DEFINE || len(s.Rhs) != 1 {
		return false
	}
	if !h.value(s.Rhs[0]) {
		return false
	}
	for _, l := range s.Lhs {
		id, ok := l.(*ast.Ident)
		if !ok {
			return false
		}
		if obj := h.u.ObjectOf(id); obj != nil {
			h.locals[obj] = true
		}
	}
	return true
}

// value accepts recover(), a handler local, and a type assertion of one
// of those.
func (h *handlerCheck) value(e ast.Expr) bool {
	switch e := match.Unparen(e).(type) {
	case *ast.CallExpr:
		if isRecover(h.u, e) {
			h.recovers++
			return true
		}
	case *ast.Ident:
		return h.locals[h.u.ObjectOf(e)]
	case *ast.TypeAssertExpr:
		if e.Type == nil {
			return false
		}
		h.asserts++
		h.typ = e.Type
		return h.value(e.X)
	}
	return false
}

// cond accepts nil checks of handler values and boolean locals.
func (h *handlerCheck) cond(e ast.Expr) bool {
	switch e := match.Unparen(e).(type) {
	case *ast.Ident:
		return h.locals[h.u.ObjectOf(e)]
	case *ast.UnaryExpr:
		return e.Op == token.NOT && h.cond(e.X)
	case *ast.BinaryExpr:
		if e.Op != token.EQL && e.Op != token.NEQ {
			return false
		}
		x, y := e.X, e.Y
		if isNil(h.u, x) {
			x, y = y, x
		}
		return isNil(h.u, y) && h.value(x)
	}
	return false
}

func isNil(u *refactor.Unit, e ast.Expr) bool {
	id, ok := match.Unparen(e).(*ast.Ident)
	if !ok {
		return false
	}
	_, ok = u.ObjectOf(id).(*types.Nil)
	return ok
}

// failure accepts a method call on the sentinel receiver whose arguments
// have no side effects.
func (h *handlerCheck) failure(call *ast.CallExpr) bool {
	fn, recv := match.Callee(h.u, call)
	if fn == nil || recv == nil || !match.Equal(h.u, recv, h.t) {
		return false
	}
	for _, a := range call.Args {
		if !pure(h.u, a) {
			return false
		}
	}
	return true
}
