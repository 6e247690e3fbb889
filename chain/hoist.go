// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"
	"sync"

	"github.com/rewritekit/rw/match"
	"github.com/rewritekit/rw/refactor"
	"github.com/rewritekit/rw/rewrite"
)

// A HoistSpec describes the hook hoisting rewrite. A statement
//
//	s.OnStart(func() { body })
//
// registering a callback through a method matching Hook is removed, and
// in a later pass the callback becomes the method
//
//	func (s *Server) Start() { body }
//
// of the receiver's type. The method name is the hook's name without
// Prefix. The receiver must be a variable whose type, or the type it
// points to, is declared in the unit's package, and the callback must not
// use local variables other than the receiver.
//
// A method is hoisted at most once per package, from the first file
// that registers it, however many files are rewritten. If the second
// pass cannot declare the method, the unit's rewrite is abandoned.
type HoistSpec struct {
	Name   string
	Hook   *match.MethodMatcher
	Prefix string
}

func (spec HoistSpec) followUp() string {
	return spec.Name + "/declare"
}

// Hoist returns the rule described by spec and registers the rule for its
// second pass in reg.
func Hoist(spec HoistSpec, reg map[string]rewrite.Factory) rewrite.Rule {
	reg[spec.followUp()] = declareMethod
	h := &hoister{spec: spec, claims: make(map[claim]string)}
	return rewrite.Rule{
		Name: spec.Name,
		Actions: map[rewrite.Kind]rewrite.Action{
			rewrite.ExprStmt: h.hook,
		},
	}
}

type hoister struct {
	spec HoistSpec

	mu     sync.Mutex
	claims map[claim]string // unit declaring each method
}

type claim struct {
	pkg, typ, method string
}

// reserve claims the method for unit, reporting whether no other unit
// holds it.
func (h *hoister) reserve(unit string, c claim) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if owner, ok := h.claims[c]; ok {
		return owner == unit
	}
	h.claims[c] = unit
	return true
}

func (h *hoister) hook(c *rewrite.Cursor) rewrite.Result {
	switch c.Parent().(type) {
	case *ast.BlockStmt, *ast.CaseClause, *ast.CommClause:
	default:
		return rewrite.Unchanged()
	}
	u := c.Unit()
	call, fn, recv := methodCall(u, c.Node().(ast.Stmt))
	if call == nil || len(call.Args) != 1 || !h.spec.Hook.Matches(u, call) {
		return rewrite.Unchanged()
	}
	name, ok := strings.CutPrefix(fn.Name(), h.spec.Prefix)
	if !ok || name == fn.Name() || !token.IsExported(name) {
		return rewrite.Unchanged()
	}
	lit, ok := call.Args[0].(*ast.FuncLit)
	if !ok || lit.Type.Params.NumFields() != 0 || lit.Type.Results.NumFields() != 0 {
		return rewrite.Unchanged()
	}
	id, ok := match.Unparen(recv).(*ast.Ident)
	if !ok {
		return rewrite.Unchanged()
	}
	v, ok := u.ObjectOf(id).(*types.Var)
	if !ok {
		return rewrite.Unchanged()
	}

	t, ptr := v.Type(), false
	if p, ok := types.Unalias(t).(*types.Pointer); ok {
		t, ptr = p.Elem(), true
	}
	named, ok := types.Unalias(t).(*types.Named)
	if !ok || named.Obj().Pkg() != u.Pkg || named.TypeParams().Len() > 0 {
		return rewrite.Unchanged()
	}
	if _, ok := named.Underlying().(*types.Interface); ok {
		return rewrite.Unchanged()
	}
	if obj, _, _ := types.LookupFieldOrMethod(types.NewPointer(named), true, u.Pkg, name); obj != nil {
		c.Logger().DebugContext(c.Context(), "hook target already declared", "type", named.Obj().Name(), "method", name)
		return rewrite.Unchanged()
	}
	for _, q := range c.Queued() {
		if q.Rule == h.spec.followUp() && q.Params["type"] == named.Obj().Name() && q.Params["method"] == name {
			return rewrite.Unchanged()
		}
	}
	if v.Parent() == u.Pkg.Scope() || escapes(u, lit, map[types.Object]bool{v: true}) {
		return rewrite.Unchanged()
	}
	if !h.reserve(u.Name, claim{u.Pkg.Path(), named.Obj().Name(), name}) {
		c.Logger().DebugContext(c.Context(), "hook hoisted from another file", "type", named.Obj().Name(), "method", name)
		return rewrite.Unchanged()
	}

	c.Enqueue(rewrite.PendingAction{
		Kind: rewrite.RunRule,
		Rule: h.spec.followUp(),
		Params: map[string]string{
			"type":   named.Obj().Name(),
			"recv":   id.Name,
			"method": name,
			"ptr":    fmt.Sprint(ptr),
		},
		Nodes: map[string]ast.Node{"body": lit.Body},
	})
	return rewrite.Remove()
}

// declareMethod builds the second pass of a hoist: it appends the
// method the first pass captured to the file. The first pass removed the
// hook, so when the method cannot be added the rewrite fails.
func declareMethod(p rewrite.PendingAction) (rewrite.Rule, error) {
	typ, recv, method := p.Params["type"], p.Params["recv"], p.Params["method"]
	body, ok := p.Nodes["body"].(*ast.BlockStmt)
	if typ == "" || recv == "" || method == "" || !ok {
		return rewrite.Rule{}, fmt.Errorf("incomplete hoist parameters %v", p.Params)
	}
	star := ""
	if p.Params["ptr"] == "true" {
		star = "*"
	}
	skeleton := fmt.Sprintf("func (%s %s%s) %s() {\n\t#{body}\n}", recv, star, typ, method)

	return rewrite.Rule{
		Name: p.Rule,
		Actions: map[rewrite.Kind]rewrite.Action{
			rewrite.File: func(c *rewrite.Cursor) rewrite.Result {
				f := c.Node().(*ast.File)
				u := c.Unit()
				for _, g := range append([]*ast.File{f}, u.Siblings...) {
					if declares(g, typ, method) {
						return rewrite.Fail(fmt.Errorf("%s.%s is already declared", typ, method))
					}
				}
				frag, err := c.Synthesize(skeleton, body)
				if err != nil {
					return rewrite.Fail(fmt.Errorf("declaring %s.%s: %w", typ, method, err))
				}
				if frag.Decl == nil {
					return rewrite.Fail(fmt.Errorf("declaring %s.%s: not a declaration", typ, method))
				}
				nf := refactor.Derive(u, f)
				nf.Decls = append(append([]ast.Decl(nil), f.Decls...), frag.Decl)
				return rewrite.Replace(nf)
			},
		},
	}, nil
}

// declares reports whether f declares method on typ.
func declares(f *ast.File, typ, method string) bool {
	for _, d := range f.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || fd.Name.Name != method || len(fd.Recv.List) != 1 {
			continue
		}
		t := fd.Recv.List[0].Type
		if st, ok := t.(*ast.StarExpr); ok {
			t = st.X
		}
		if id, ok := t.(*ast.Ident); ok && id.Name == typ {
			return true
		}
	}
	return false
}
