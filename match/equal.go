// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Expression comparison adapted from eg.

package match

import (
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"reflect"
)

// Equal reports whether the expressions x and y, both described by info,
// are structurally identical: the same shape, the same constants, and
// identifiers denoting the same objects. Function literals are never equal.
func Equal(info Info, x, y ast.Expr) bool {
	if x == nil || y == nil {
		return x == y
	}

	x = Unparen(x)
	y = Unparen(y)

	xtv, _ := info.TypeAndValue(x)
	ytv, _ := info.TypeAndValue(y)
	if xtv.IsType() != ytv.IsType() || xtv.IsValue() != ytv.IsValue() {
		return false
	}
	if xtv.IsType() {
		return xtv.Type != nil && ytv.Type != nil && types.Identical(xtv.Type, ytv.Type)
	}

	// Object identifiers (including pkg-qualified ones)
	// are handled semantically, not syntactically.
	xobj := isRef(info, x)
	yobj := isRef(info, y)
	if xobj != nil {
		return xobj == yobj
	}
	if yobj != nil {
		return false
	}

	if reflect.TypeOf(x) != reflect.TypeOf(y) {
		return false
	}
	switch x := x.(type) {
	case *ast.BasicLit:
		y := y.(*ast.BasicLit)
		xval := constant.MakeFromLiteral(x.Value, x.Kind, 0)
		yval := constant.MakeFromLiteral(y.Value, y.Kind, 0)
		return xval.Kind() != constant.Unknown && yval.Kind() != constant.Unknown &&
			constant.Compare(xval, token.EQL, yval)

	case *ast.CompositeLit:
		y := y.(*ast.CompositeLit)
		return (x.Type == nil) == (y.Type == nil) &&
			(x.Type == nil || Equal(info, x.Type, y.Type)) &&
			equalExprs(info, x.Elts, y.Elts)

	case *ast.SelectorExpr:
		y := y.(*ast.SelectorExpr)
		xs, ys := info.Selection(x), info.Selection(y)
		return xs != nil && ys != nil && xs.Obj() == ys.Obj() &&
			Equal(info, x.X, y.X)

	case *ast.IndexExpr:
		y := y.(*ast.IndexExpr)
		return Equal(info, x.X, y.X) &&
			Equal(info, x.Index, y.Index)

	case *ast.IndexListExpr:
		y := y.(*ast.IndexListExpr)
		return Equal(info, x.X, y.X) &&
			equalExprs(info, x.Indices, y.Indices)

	case *ast.SliceExpr:
		y := y.(*ast.SliceExpr)
		return Equal(info, x.X, y.X) &&
			Equal(info, x.Low, y.Low) &&
			Equal(info, x.High, y.High) &&
			Equal(info, x.Max, y.Max) &&
			x.Slice3 == y.Slice3

	case *ast.TypeAssertExpr:
		y := y.(*ast.TypeAssertExpr)
		return Equal(info, x.X, y.X) &&
			Equal(info, x.Type, y.Type)

	case *ast.CallExpr:
		y := y.(*ast.CallExpr)
		return x.Ellipsis.IsValid() == y.Ellipsis.IsValid() &&
			Equal(info, x.Fun, y.Fun) &&
			equalExprs(info, x.Args, y.Args)

	case *ast.StarExpr:
		y := y.(*ast.StarExpr)
		return Equal(info, x.X, y.X)

	case *ast.UnaryExpr:
		y := y.(*ast.UnaryExpr)
		return x.Op == y.Op &&
			Equal(info, x.X, y.X)

	case *ast.BinaryExpr:
		y := y.(*ast.BinaryExpr)
		return x.Op == y.Op &&
			Equal(info, x.X, y.X) &&
			Equal(info, x.Y, y.Y)

	case *ast.KeyValueExpr:
		y := y.(*ast.KeyValueExpr)
		return Equal(info, x.Key, y.Key) &&
			Equal(info, x.Value, y.Value)
	}

	// Identifiers without objects, func literals and anything else.
	return false
}

func equalExprs(info Info, xx, yy []ast.Expr) bool {
	if len(xx) != len(yy) {
		return false
	}
	for i := range xx {
		if !Equal(info, xx[i], yy[i]) {
			return false
		}
	}
	return true
}

func isRef(info Info, n ast.Expr) types.Object {
	switch n := n.(type) {
	case *ast.Ident:
		return info.ObjectOf(n)

	case *ast.SelectorExpr:
		if info.Selection(n) == nil {
			// qualified ident
			return info.ObjectOf(n.Sel)
		}
	}
	return nil
}
