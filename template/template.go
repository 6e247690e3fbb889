// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package template synthesizes syntax from skeleton text.
//
// A skeleton is Go source text, an expression, a statement list or a
// single function declaration, containing placeholders written #{} or
// #{label}. Placeholders are bound, in order, to syntax taken from the
// unit being rewritten: expressions, type expressions, statements and
// blocks. A bound block stands for its statement list.
//
// The skeleton is type-checked at the insertion point, in the package of
// the unit, with every placeholder standing for a declaration of the
// bound syntax's type. Names in the skeleton therefore resolve exactly
// as they would if the skeleton were written at the insertion point.
package template

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"strconv"
	"strings"

	"github.com/rewritekit/rw/refactor"
)

// An Error reports a skeleton that could not be synthesized.
type Error struct {
	Skeleton string
	Pos      token.Position // insertion point
	Err      error
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: synthesizing %q: %v", e.Pos, e.Skeleton, e.Err)
	}
	return fmt.Sprintf("synthesizing %q: %v", e.Skeleton, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// A Fragment is synthesized syntax, ready to be placed in the unit
// it was synthesized for. Exactly one of Expr, Stmts and Decl is set.
type Fragment struct {
	Expr  ast.Expr
	Stmts []ast.Stmt
	Decl  *ast.FuncDecl

	stmt *ast.ExprStmt // Expr as a statement
	unit *refactor.Unit
}

// Type returns the type of an expression fragment, or nil.
func (f *Fragment) Type() types.Type {
	if f.Expr == nil {
		return nil
	}
	return f.unit.TypeOf(f.Expr)
}

// Stmt returns an expression fragment as an expression statement, a
// single-statement fragment as that statement, or nil.
func (f *Fragment) Stmt() ast.Stmt {
	switch {
	case f.stmt != nil:
		return f.stmt
	case len(f.Stmts) == 1:
		return f.Stmts[0]
	}
	return nil
}

// Node returns the fragment as a single node: the expression, the
// declaration, or the statements as a *refactor.Splice.
func (f *Fragment) Node() ast.Node {
	switch {
	case f.Expr != nil:
		return f.Expr
	case f.Decl != nil:
		return f.Decl
	}
	return &refactor.Splice{List: f.Stmts}
}

// Count returns the number of placeholders in skeleton.
func Count(skeleton string) int {
	n := 0
	forPlaceholders(skeleton, func(int, string) string { n++; return "" })
	return n
}

// Labels returns the labels of the placeholders in skeleton, in order.
// An unlabeled placeholder has the empty label.
func Labels(skeleton string) []string {
	var labels []string
	forPlaceholders(skeleton, func(_ int, label string) string {
		labels = append(labels, label)
		return ""
	})
	return labels
}

// forPlaceholders calls f for each placeholder in s, with its index and
// label, and returns s with each placeholder replaced by f's result.
func forPlaceholders(s string, f func(i int, label string) string) string {
	var b strings.Builder
	n := 0
	for {
		i := strings.Index(s, "#{")
		if i < 0 {
			break
		}
		j := strings.Index(s[i:], "}")
		if j < 0 {
			break
		}
		b.WriteString(s[:i])
		b.WriteString(f(n, s[i+2:i+j]))
		n++
		s = s[i+j+1:]
	}
	b.WriteString(s)
	return b.String()
}

type placeholderKind int

const (
	phValue placeholderKind = iota
	phType
	phStmt
)

type placeholder struct {
	name  string
	kind  placeholderKind
	bound ast.Node
}

// Synthesize builds the syntax for skeleton at the insertion point at,
// binding placeholders in order to bound. Import intents name packages
// the skeleton may refer to that the unit does not import yet; their
// package names are visible to the skeleton.
//
// On success the fragment's type information has been added to the unit.
// On failure nothing has been placed anywhere.
func Synthesize(at refactor.Scope, skeleton string, bound []ast.Node, intents ...refactor.ImportChange) (*Fragment, error) {
	s := &synth{
		at:       at,
		u:        at.Unit,
		skeleton: skeleton,
		aliases:  make(map[string]string),
	}
	frag, err := s.run(bound, intents)
	if err != nil {
		return nil, &Error{Skeleton: skeleton, Pos: at.Unit.Position(at.Pos), Err: err}
	}
	return frag, nil
}

type synth struct {
	at       refactor.Scope
	u        *refactor.Unit
	skeleton string
	phs      []*placeholder
	byName   map[string]*placeholder
	names    map[string]string // import path -> name in the unit file
	aliases  map[string]string // import path -> alias in the fragment
}

func (s *synth) run(bound []ast.Node, intents []refactor.ImportChange) (*Fragment, error) {
	if n := Count(s.skeleton); n != len(bound) {
		return nil, fmt.Errorf("skeleton has %d placeholders, %d bound", n, len(bound))
	}
	s.importNames()

	s.byName = make(map[string]*placeholder)
	var perr error
	text := forPlaceholders(s.skeleton, func(i int, label string) string {
		ph, err := s.classify(i, bound[i])
		if err != nil && perr == nil {
			perr = fmt.Errorf("placeholder %d (%s): %v", i, label, err)
		}
		if ph == nil {
			return "nil"
		}
		s.phs = append(s.phs, ph)
		s.byName[ph.name] = ph
		if ph.kind == phStmt {
			return ph.name + "()"
		}
		return ph.name
	})
	if perr != nil {
		return nil, perr
	}

	trimmed := strings.TrimSpace(text)
	expr := isExpr(trimmed)
	if strings.HasPrefix(trimmed, "func") && !expr {
		return s.decl(trimmed, intents)
	}
	return s.body(trimmed, expr, intents)
}

func isExpr(text string) bool {
	_, err := parser.ParseExpr(text)
	return err == nil
}

// importNames records the name under which the unit file imports each path.
func (s *synth) importNames() {
	s.names = make(map[string]string)
	for _, spec := range s.u.File.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		switch {
		case spec.Name != nil:
			if spec.Name.Name != "_" {
				s.names[path] = spec.Name.Name
			}
		default:
			if pn, ok := s.u.Info.Implicits[spec].(*types.PkgName); ok {
				s.names[path] = pn.Name()
			} else {
				s.names[path] = path[strings.LastIndex(path, "/")+1:]
			}
		}
	}
}

// classify decides how the placeholder bound to n is declared.
// It returns nil for an untyped nil, which is written inline.
func (s *synth) classify(i int, n ast.Node) (*placeholder, error) {
	ph := &placeholder{name: fmt.Sprintf("__rw%d", i), bound: n}
	switch n := n.(type) {
	case nil:
		return nil, fmt.Errorf("nothing bound")
	case *refactor.Splice, ast.Stmt:
		ph.kind = phStmt
		return ph, nil
	case ast.Expr:
		tv, ok := s.u.TypeAndValue(n)
		if !ok {
			if id, isID := n.(*ast.Ident); isID {
				if _, isTN := s.u.ObjectOf(id).(*types.TypeName); isTN {
					ph.kind = phType
					return ph, nil
				}
			}
			return ph, fmt.Errorf("no type information")
		}
		switch {
		case tv.IsType():
			ph.kind = phType
		case tv.IsNil():
			return nil, nil
		}
		return ph, nil
	}
	return ph, fmt.Errorf("cannot bind %T", n)
}

// qualifier prints package-qualified names as the unit file spells them,
// aliasing packages the file does not import.
func (s *synth) qualifier(p *types.Package) string {
	if p == s.u.Pkg {
		return ""
	}
	if name, ok := s.names[p.Path()]; ok {
		if name == "." {
			return ""
		}
		return name
	}
	alias, ok := s.aliases[p.Path()]
	if !ok {
		alias = fmt.Sprintf("__rwpkg%d", len(s.aliases))
		s.aliases[p.Path()] = alias
	}
	return alias
}

// prologue returns the declarations of the placeholders and of the
// locals the skeleton mentions, one statement per line.
func (s *synth) prologue(text string) ([]string, error) {
	var lines []string
	for _, ph := range s.phs {
		switch ph.kind {
		case phStmt:
			lines = append(lines, fmt.Sprintf("var %s func()", ph.name))
		case phType:
			t := s.typeOfBound(ph.bound)
			if t == nil {
				return nil, fmt.Errorf("no type for %s", ph.name)
			}
			lines = append(lines, fmt.Sprintf("type %s = %s", ph.name, types.TypeString(t, s.qualifier)))
		case phValue:
			tv, _ := s.u.TypeAndValue(ph.bound.(ast.Expr))
			line, err := s.valueDecl(ph.name, tv)
			if err != nil {
				return nil, err
			}
			lines = append(lines, line)
		}
	}

	mentioned := identifiers(text)
	for _, obj := range s.at.Locals() {
		if !mentioned[obj.Name()] || obj.Name() == "_" {
			continue
		}
		switch obj := obj.(type) {
		case *types.Var:
			lines = append(lines, fmt.Sprintf("var %s %s", obj.Name(), types.TypeString(obj.Type(), s.qualifier)))
		case *types.Const:
			lines = append(lines, fmt.Sprintf("const %s %s = %s", obj.Name(), types.TypeString(obj.Type(), s.qualifier), obj.Val().ExactString()))
		}
	}
	return lines, nil
}

func (s *synth) typeOfBound(n ast.Node) types.Type {
	e, ok := n.(ast.Expr)
	if !ok {
		return nil
	}
	if tv, ok := s.u.TypeAndValue(e); ok && tv.Type != nil {
		return tv.Type
	}
	if id, ok := e.(*ast.Ident); ok {
		if tn, ok := s.u.ObjectOf(id).(*types.TypeName); ok {
			return tn.Type()
		}
	}
	return nil
}

// valueDecl declares name with the type, and for untyped constants the
// value, of a bound expression.
func (s *synth) valueDecl(name string, tv types.TypeAndValue) (string, error) {
	t := tv.Type
	if t == nil || t == types.Typ[types.Invalid] {
		return "", fmt.Errorf("no type for %s", name)
	}
	b, isBasic := t.(*types.Basic)
	if !isBasic || b.Info()&types.IsUntyped == 0 {
		return fmt.Sprintf("var %s %s", name, types.TypeString(t, s.qualifier)), nil
	}
	if tv.Value == nil {
		return fmt.Sprintf("var %s %s", name, types.TypeString(types.Default(t), s.qualifier)), nil
	}
	v := tv.Value
	var lit string
	switch b.Kind() {
	case types.UntypedBool:
		lit = v.String()
	case types.UntypedInt:
		lit = v.ExactString()
	case types.UntypedRune:
		lit = `'\x00' + ` + v.ExactString()
	case types.UntypedFloat:
		num, den := constant.Num(v), constant.Denom(v)
		if num.Kind() == constant.Unknown || den.Kind() == constant.Unknown {
			return "", fmt.Errorf("constant %s cannot be declared exactly", v)
		}
		lit = fmt.Sprintf("%s.0 / %s.0", num.ExactString(), den.ExactString())
	case types.UntypedString:
		lit = strconv.Quote(constant.StringVal(v))
	default:
		return "", fmt.Errorf("cannot declare constant of type %s", t)
	}
	return fmt.Sprintf("const %s = %s", name, lit), nil
}

// identifiers returns the set of identifiers appearing in text.
func identifiers(text string) map[string]bool {
	ids := make(map[string]bool)
	var sc scanner.Scanner
	fset := token.NewFileSet()
	src := []byte(text)
	sc.Init(fset.AddFile("", -1, len(src)), src, nil, 0)
	for {
		_, tok, lit := sc.Scan()
		if tok == token.EOF {
			break
		}
		if tok == token.IDENT {
			ids[lit] = true
		}
	}
	return ids
}

// file returns the text of a fragment file whose only function holds the
// prologue followed by body.
func (s *synth) file(prologue []string, body string, intents []refactor.ImportChange) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "package %s\n\n", s.u.Pkg.Name())

	seen := make(map[string]bool)
	imp := func(name, path string) {
		key := name + " " + path
		if seen[key] {
			return
		}
		seen[key] = true
		if name != "" {
			fmt.Fprintf(&buf, "import %s %q\n", name, path)
		} else {
			fmt.Fprintf(&buf, "import %q\n", path)
		}
	}
	for _, spec := range s.u.File.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil || path == "C" {
			continue
		}
		name := ""
		if spec.Name != nil {
			name = spec.Name.Name
		}
		imp(name, path)
	}
	for _, c := range intents {
		if c.Remove {
			continue
		}
		if _, ok := s.names[c.Path]; ok && c.Name == "" {
			continue
		}
		imp(c.Name, c.Path)
	}
	for path, alias := range s.aliases {
		imp(alias, path)
	}

	buf.WriteString("\nfunc _() {\n")
	for _, line := range prologue {
		buf.WriteString("\t" + line + "\n")
	}
	buf.WriteString(body)
	buf.WriteString("\n}\n")
	return buf.Bytes()
}

// body synthesizes an expression or a statement list.
func (s *synth) body(text string, expr bool, intents []refactor.ImportChange) (*Fragment, error) {
	prologue, err := s.prologue(text)
	if err != nil {
		return nil, err
	}
	f, err := s.u.Source().CheckFragment(s.at, s.file(prologue, text, intents))
	if err != nil {
		return nil, err
	}
	fn := f.Decls[len(f.Decls)-1].(*ast.FuncDecl)
	list := fn.Body.List[len(prologue):]

	frag := &Fragment{unit: s.u}
	if expr {
		if len(list) != 1 {
			return nil, fmt.Errorf("expression skeleton parsed as %d statements", len(list))
		}
		es, ok := list[0].(*ast.ExprStmt)
		if !ok {
			return nil, fmt.Errorf("expression skeleton parsed as %T", list[0])
		}
		if st, ok := s.subst(es).(*ast.ExprStmt); ok {
			frag.stmt = st
			frag.Expr = st.X
			return frag, nil
		}
		// A lone statement placeholder.
		frag.Stmts = s.substList(list)
		return frag, nil
	}
	frag.Stmts = s.substList(list)
	return frag, nil
}

// decl synthesizes a function or method declaration. The declaration is
// checked as a function literal, receiver first, so that checking it
// does not add a method to a type of the package.
func (s *synth) decl(text string, intents []refactor.ImportChange) (*Fragment, error) {
	src := []byte(fmt.Sprintf("package %s\n\n%s\n", s.u.Pkg.Name(), text))
	df, err := s.u.Source().ParseFragment(s.u, src)
	if err != nil {
		return nil, err
	}
	if len(df.Decls) != 1 {
		return nil, fmt.Errorf("declaration skeleton must declare one function")
	}
	fd, ok := df.Decls[0].(*ast.FuncDecl)
	if !ok || fd.Body == nil {
		return nil, fmt.Errorf("declaration skeleton must declare one function")
	}

	base := s.u.Fset.File(df.Pos()).Base()
	slice := func(n ast.Node) string {
		return string(src[int(n.Pos())-base : int(n.End())-base])
	}
	var params []string
	if fd.Recv != nil {
		for _, f := range fd.Recv.List {
			params = append(params, slice(f))
		}
	}
	for _, f := range fd.Type.Params.List {
		params = append(params, slice(f))
	}
	lit := "_ = func(" + strings.Join(params, ", ") + ")"
	if fd.Type.Results != nil {
		lit += " " + slice(fd.Type.Results)
	}
	lit += " " + slice(fd.Body)

	prologue, err := s.prologue(text)
	if err != nil {
		return nil, err
	}
	if _, err := s.u.Source().CheckFragment(s.at, s.file(prologue, lit, intents)); err != nil {
		return nil, err
	}
	return &Fragment{Decl: s.subst(fd).(*ast.FuncDecl), unit: s.u}, nil
}

// placeholderStmt returns the placeholder a statement stands for.
func (s *synth) placeholderStmt(n ast.Node) *placeholder {
	es, ok := n.(*ast.ExprStmt)
	if !ok {
		return nil
	}
	call, ok := es.X.(*ast.CallExpr)
	if !ok || len(call.Args) != 0 {
		return nil
	}
	id, ok := call.Fun.(*ast.Ident)
	if !ok {
		return nil
	}
	if ph := s.byName[id.Name]; ph != nil && ph.kind == phStmt {
		return ph
	}
	return nil
}

func stmtsOf(n ast.Node) []ast.Stmt {
	switch n := n.(type) {
	case *ast.BlockStmt:
		return n.List
	case *refactor.Splice:
		return n.List
	case ast.Stmt:
		return []ast.Stmt{n}
	}
	return nil
}

func (s *synth) substList(list []ast.Stmt) []ast.Stmt {
	var out []ast.Stmt
	for _, st := range list {
		if ph := s.placeholderStmt(st); ph != nil {
			out = append(out, stmtsOf(ph.bound)...)
			continue
		}
		out = append(out, s.subst(st).(ast.Stmt))
	}
	return out
}

// subst replaces the placeholders in n by the syntax bound to them.
func (s *synth) subst(n ast.Node) ast.Node {
	return s.u.Rebuild(n, func(stack []ast.Node) ast.Node {
		if ph := s.placeholderStmt(stack[0]); ph != nil {
			return &refactor.Splice{List: stmtsOf(ph.bound)}
		}
		id, ok := stack[0].(*ast.Ident)
		if !ok {
			return stack[0]
		}
		ph := s.byName[id.Name]
		if ph == nil || ph.kind == phStmt {
			return stack[0]
		}
		x := ph.bound.(ast.Expr)
		if needParen(x, stack) {
			return &ast.ParenExpr{X: x}
		}
		return x
	})
}
