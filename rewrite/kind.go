// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rewrite

import "go/ast"

// A Kind classifies syntax nodes for dispatch to rule actions.
type Kind int

const (
	Other Kind = iota

	// Expressions.
	BasicLit
	BinaryExpr
	CallExpr
	CompositeLit
	FuncLit
	Ident
	IndexExpr
	KeyValueExpr
	ParenExpr
	SelectorExpr
	SliceExpr
	StarExpr
	TypeAssertExpr
	UnaryExpr

	// Statements.
	AssignStmt
	BlockStmt
	BranchStmt
	CaseClause // switch and select clauses
	DeclStmt
	DeferStmt
	ExprStmt
	ForStmt
	GoStmt
	IfStmt
	IncDecStmt
	LabeledStmt
	RangeStmt
	ReturnStmt
	SelectStmt
	SwitchStmt
	TypeSwitchStmt

	// Declarations.
	FuncDecl
	GenDecl
	File

	numKinds
)

var kindNames = [...]string{
	Other:          "Other",
	BasicLit:       "BasicLit",
	BinaryExpr:     "BinaryExpr",
	CallExpr:       "CallExpr",
	CompositeLit:   "CompositeLit",
	FuncLit:        "FuncLit",
	Ident:          "Ident",
	IndexExpr:      "IndexExpr",
	KeyValueExpr:   "KeyValueExpr",
	ParenExpr:      "ParenExpr",
	SelectorExpr:   "SelectorExpr",
	SliceExpr:      "SliceExpr",
	StarExpr:       "StarExpr",
	TypeAssertExpr: "TypeAssertExpr",
	UnaryExpr:      "UnaryExpr",
	AssignStmt:     "AssignStmt",
	BlockStmt:      "BlockStmt",
	BranchStmt:     "BranchStmt",
	CaseClause:     "CaseClause",
	DeclStmt:       "DeclStmt",
	DeferStmt:      "DeferStmt",
	ExprStmt:       "ExprStmt",
	ForStmt:        "ForStmt",
	GoStmt:         "GoStmt",
	IfStmt:         "IfStmt",
	IncDecStmt:     "IncDecStmt",
	LabeledStmt:    "LabeledStmt",
	RangeStmt:      "RangeStmt",
	ReturnStmt:     "ReturnStmt",
	SelectStmt:     "SelectStmt",
	SwitchStmt:     "SwitchStmt",
	TypeSwitchStmt: "TypeSwitchStmt",
	FuncDecl:       "FuncDecl",
	GenDecl:        "GenDecl",
	File:           "File",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "Kind(?)"
	}
	return kindNames[k]
}

// KindOf returns the kind of n.
func KindOf(n ast.Node) Kind {
	switch n.(type) {
	case *ast.BasicLit:
		return BasicLit
	case *ast.BinaryExpr:
		return BinaryExpr
	case *ast.CallExpr:
		return CallExpr
	case *ast.CompositeLit:
		return CompositeLit
	case *ast.FuncLit:
		return FuncLit
	case *ast.Ident:
		return Ident
	case *ast.IndexExpr, *ast.IndexListExpr:
		return IndexExpr
	case *ast.KeyValueExpr:
		return KeyValueExpr
	case *ast.ParenExpr:
		return ParenExpr
	case *ast.SelectorExpr:
		return SelectorExpr
	case *ast.SliceExpr:
		return SliceExpr
	case *ast.StarExpr:
		return StarExpr
	case *ast.TypeAssertExpr:
		return TypeAssertExpr
	case *ast.UnaryExpr:
		return UnaryExpr
	case *ast.AssignStmt:
		return AssignStmt
	case *ast.BlockStmt:
		return BlockStmt
	case *ast.BranchStmt:
		return BranchStmt
	case *ast.CaseClause, *ast.CommClause:
		return CaseClause
	case *ast.DeclStmt:
		return DeclStmt
	case *ast.DeferStmt:
		return DeferStmt
	case *ast.ExprStmt:
		return ExprStmt
	case *ast.ForStmt:
		return ForStmt
	case *ast.GoStmt:
		return GoStmt
	case *ast.IfStmt:
		return IfStmt
	case *ast.IncDecStmt:
		return IncDecStmt
	case *ast.LabeledStmt:
		return LabeledStmt
	case *ast.RangeStmt:
		return RangeStmt
	case *ast.ReturnStmt:
		return ReturnStmt
	case *ast.SelectStmt:
		return SelectStmt
	case *ast.SwitchStmt:
		return SwitchStmt
	case *ast.TypeSwitchStmt:
		return TypeSwitchStmt
	case *ast.FuncDecl:
		return FuncDecl
	case *ast.GenDecl:
		return GenDecl
	case *ast.File:
		return File
	}
	return Other
}
