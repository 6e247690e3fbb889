// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"fmt"
	"go/ast"
	"go/types"
	"strconv"
	"strings"

	"github.com/rewritekit/rw/match"
	"github.com/rewritekit/rw/refactor"
	"github.com/rewritekit/rw/rewrite"
	"github.com/rewritekit/rw/template"
)

// callTemplate returns a rule replacing calls matching m by tmpl.
// Placeholders labeled receiver and argN are bound to the call's receiver
// and its Nth argument. The replacement must have the call's type.
func callTemplate(name string, m *match.MethodMatcher, tmpl string, bind []string, imports []refactor.ImportChange) (rewrite.Rule, error) {
	labels := bind
	if labels == nil {
		labels = template.Labels(tmpl)
	}
	if len(labels) != template.Count(tmpl) {
		return rewrite.Rule{}, fmt.Errorf("%d bind labels for %d placeholders", len(labels), template.Count(tmpl))
	}
	refs := make([]int, len(labels)) // -1 for the receiver
	for i, l := range labels {
		if l == "receiver" {
			refs[i] = -1
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(l, "arg"))
		if !strings.HasPrefix(l, "arg") || err != nil || n < 0 {
			return rewrite.Rule{}, fmt.Errorf("unknown placeholder %q", l)
		}
		refs[i] = n
	}

	return rewrite.Rule{
		Name:    name,
		Imports: imports,
		Actions: map[rewrite.Kind]rewrite.Action{
			rewrite.CallExpr: func(c *rewrite.Cursor) rewrite.Result {
				call := c.Node().(*ast.CallExpr)
				u := c.Unit()
				if call.Ellipsis.IsValid() || !m.Matches(u, call) {
					return rewrite.Unchanged()
				}
				_, recv := match.Callee(u, call)
				bound := make([]ast.Node, len(refs))
				for i, r := range refs {
					switch {
					case r < 0 && recv != nil:
						bound[i] = recv
					case r >= 0 && r < len(call.Args):
						bound[i] = call.Args[r]
					default:
						return rewrite.Unchanged()
					}
				}
				frag, err := c.Synthesize(tmpl, bound...)
				if err != nil || frag.Expr == nil {
					return rewrite.Unchanged()
				}
				if !types.Identical(frag.Type(), u.TypeOf(call)) {
					c.Logger().DebugContext(c.Context(), "template changes type", "from", u.TypeOf(call), "to", frag.Type())
					return rewrite.Unchanged()
				}
				return rewrite.Replace(frag.Expr)
			},
		},
	}, nil
}
