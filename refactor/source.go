// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refactor

import (
	"context"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/tools/go/packages"
)

// A Source parses and type-checks Go source for the rewrite engine.
// It owns the file set shared by every unit it produces and by every
// fragment synthesized into those units.
type Source struct {
	Fset   *token.FileSet
	Config Config

	// GoVersion is the go directive of the main module, set by Load.
	GoVersion string

	files fileCache
	imp   types.Importer
	dir   string

	mu    sync.Mutex
	known map[string]*types.Package
	locks map[*types.Package]*sync.Mutex
	nfrag int
}

// NewSource returns a Source using the default importer for packages
// that were not loaded through it.
func NewSource() *Source {
	fset := token.NewFileSet()
	return &Source{
		Fset:  fset,
		imp:   chainImporter{importer.Default(), importer.ForCompiler(fset, "source", nil)},
		known: make(map[string]*types.Package),
		locks: make(map[*types.Package]*sync.Mutex),
	}
}

type chainImporter []types.Importer

func (c chainImporter) Import(path string) (*types.Package, error) {
	var err error
	for _, imp := range c {
		var p *types.Package
		if p, err = imp.Import(path); err == nil {
			return p, nil
		}
	}
	return nil, err
}

type fileCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (fc *fileCache) cacheRead(name string, src []byte) []byte {
	fc.mu.Lock()
	if fc.data[name] == nil {
		if fc.data == nil {
			fc.data = make(map[string][]byte)
		}
		fc.data[name] = src
	} else {
		src = fc.data[name]
	}
	fc.mu.Unlock()
	return src
}

func (fc *fileCache) ParseFile(fset *token.FileSet, filename string, src []byte) (*ast.File, error) {
	const mode = parser.AllErrors | parser.ParseComments
	return parser.ParseFile(fset, filename, fc.cacheRead(filename, src), mode)
}

func (fc *fileCache) text(name string) []byte {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.data[name]
}

// Parse parses and type-checks src as the only file of package pkgPath.
func (s *Source) Parse(name, pkgPath string, src []byte) (*Unit, error) {
	f, err := s.files.ParseFile(s.Fset, name, src)
	if err != nil {
		return nil, err
	}
	var errs ErrorList
	conf := &types.Config{
		Importer: s.importerFunc(nil),
		Error:    func(err error) { errs.Add(err) },
	}
	info := NewInfo()
	pkg, _ := conf.Check(pkgPath, s.Fset, []*ast.File{f}, info)
	if err := errs.Err(); err != nil {
		return nil, err
	}
	s.remember(pkg)
	return newUnit(s, name, f, pkg, info, src), nil
}

// Load loads the packages matching patterns, relative to dir, and returns
// one unit per Go source file. With tests set, test files are included and
// files compiled into both a package and its test variant appear once,
// checked as part of the test variant.
func (s *Source) Load(ctx context.Context, dir string, tests bool, patterns ...string) ([]*Unit, error) {
	flags, envs, err := s.Config.flagsEnvs()
	if err != nil {
		return nil, err
	}
	s.dir = dir
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo |
			packages.NeedImports | packages.NeedDeps | packages.NeedModule,
		Context:    ctx,
		Dir:        dir,
		Tests:      tests,
		Fset:       s.Fset,
		ParseFile:  s.files.ParseFile,
		BuildFlags: flags,
	}
	if len(envs) > 0 {
		cfg.Env = append(os.Environ(), envs...)
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, err
	}

	var errs ErrorList
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		if p.Types != nil {
			s.remember(p.Types)
		}
	})

	// Test variants first, so their files win.
	sort.SliceStable(pkgs, func(i, j int) bool {
		return strings.Contains(pkgs[i].ID, " [") && !strings.Contains(pkgs[j].ID, " [")
	})
	seen := make(map[string]bool)
	var units []*Unit
	for _, p := range pkgs {
		if strings.HasSuffix(p.ID, ".test") {
			continue
		}
		if s.GoVersion == "" && p.Module != nil && p.Module.Main {
			s.GoVersion = p.Module.GoVersion
		}
		for _, e := range p.Errors {
			errs.Add(e)
		}
		if len(p.Errors) > 0 {
			continue
		}
		for _, f := range p.Syntax {
			name := s.Fset.File(f.Pos()).Name()
			if seen[name] || filepath.Base(name) == "_cgo_gotypes.go" {
				continue
			}
			seen[name] = true
			u := newUnit(s, name, f, p.Types, p.TypesInfo, s.files.text(name))
			for _, g := range p.Syntax {
				if g != f {
					u.Siblings = append(u.Siblings, g)
				}
			}
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units, errs.Err()
}

func (s *Source) remember(p *types.Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.known[p.Path()]; !ok {
		s.known[p.Path()] = p
	}
}

// lock returns the mutex serializing fragment checks against p.
// Checking a fragment adds a file scope and possibly imports to p.
func (s *Source) lock(p *types.Package) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.locks[p]
	if m == nil {
		m = new(sync.Mutex)
		s.locks[p] = m
	}
	return m
}

// importerFunc returns an importer that prefers packages already imported,
// directly or indirectly, by from, then packages known to s, and only then
// imports from export data or source. Indirect imports read from export
// data are incomplete and are never returned from the first search.
func (s *Source) importerFunc(from *types.Package) types.Importer {
	return importerFunc(func(path string) (*types.Package, error) {
		if from != nil {
			seen := map[*types.Package]bool{from: true}
			q := []*types.Package{from}
			for len(q) > 0 {
				p := q[0]
				q = q[1:]
				if p.Path() == path && p.Complete() {
					return p, nil
				}
				for _, i := range p.Imports() {
					if !seen[i] {
						seen[i] = true
						q = append(q, i)
					}
				}
			}
		}
		s.mu.Lock()
		p := s.known[path]
		s.mu.Unlock()
		if p != nil {
			return p, nil
		}
		if s.dir != "" {
			if p, err := s.loadOne(path); err == nil {
				return p, nil
			}
		}
		p, err := s.imp.Import(path)
		if err != nil {
			return nil, err
		}
		s.remember(p)
		return p, nil
	})
}

// loadOne type-checks, from source, a package that the loaded packages
// do not import. Its own imports resolve through s, so that types shared
// with the loaded packages are identical.
func (s *Source) loadOne(path string) (*types.Package, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedImports,
		Dir:  s.dir,
	}
	pkgs, err := packages.Load(cfg, path)
	if err != nil {
		return nil, err
	}
	if len(pkgs) != 1 || len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("cannot load %s", path)
	}
	var files []*ast.File
	for _, name := range pkgs[0].GoFiles {
		text, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		f, err := s.files.ParseFile(s.Fset, name, text)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	conf := &types.Config{Importer: s.importerFunc(nil)}
	p, err := conf.Check(pkgs[0].PkgPath, s.Fset, files, nil)
	if err != nil {
		return nil, err
	}
	s.remember(p)
	return p, nil
}

type importerFunc func(path string) (*types.Package, error)

func (f importerFunc) Import(path string) (*types.Package, error) {
	return f(path)
}

// CheckFragment parses text as a new file of the package of at.Unit and
// type-checks it against that package, so that its names resolve like
// names in the package's own files. Unused variables, imports and values
// are not errors. The fragment's syntax, text and type information are
// added to the unit.
func (s *Source) CheckFragment(at Scope, text []byte) (*ast.File, error) {
	u := at.Unit
	s.mu.Lock()
	s.nfrag++
	name := fmt.Sprintf("%s#fragment%d", u.Name, s.nfrag)
	s.mu.Unlock()

	f, err := parser.ParseFile(s.Fset, name, text, parser.AllErrors|parser.ParseComments)
	if err != nil {
		return nil, err
	}

	var errs ErrorList
	conf := &types.Config{
		Importer: s.importerFunc(u.Pkg),
		Error: func(err error) {
			if terr, ok := err.(types.Error); ok && (terr.Soft || strings.Contains(terr.Msg, "is not used")) {
				return
			}
			errs.Add(err)
		},
	}
	info := NewInfo()
	mu := s.lock(u.Pkg)
	mu.Lock()
	types.NewChecker(conf, s.Fset, u.Pkg, info).Files([]*ast.File{f})
	mu.Unlock()
	if err := errs.Err(); err != nil {
		return nil, err
	}
	u.absorb(f, text, info)
	return f, nil
}

// ParseFragment parses text as a new file belonging to u without
// type-checking it. The fragment's syntax can be placed in u's tree.
func (s *Source) ParseFragment(u *Unit, text []byte) (*ast.File, error) {
	s.mu.Lock()
	s.nfrag++
	name := fmt.Sprintf("%s#fragment%d", u.Name, s.nfrag)
	s.mu.Unlock()

	f, err := parser.ParseFile(s.Fset, name, text, parser.AllErrors|parser.ParseComments)
	if err != nil {
		return nil, err
	}
	u.absorb(f, text, nil)
	return f, nil
}

// ResolveType returns the type denoted by name at the insertion point.
// The name is either a Go type expression valid at that point or a
// fully-qualified name of the form "import/path.Name".
func (s *Source) ResolveType(name string, at Scope) (types.Type, error) {
	if tv, err := types.Eval(s.Fset, at.Unit.Pkg, at.Pos, name); err == nil && tv.IsType() {
		return tv.Type, nil
	}
	i := strings.LastIndex(name, ".")
	if i < 0 {
		if obj := types.Universe.Lookup(name); obj != nil {
			if tn, ok := obj.(*types.TypeName); ok {
				return tn.Type(), nil
			}
		}
		return nil, fmt.Errorf("unknown type %s", name)
	}
	p, err := s.importerFunc(at.Unit.Pkg).Import(name[:i])
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", name, err)
	}
	tn, ok := p.Scope().Lookup(name[i+1:]).(*types.TypeName)
	if !ok {
		return nil, fmt.Errorf("%s is not a type", name)
	}
	return tn.Type(), nil
}

// Validate checks that the rendered text of u parses and type-checks
// together with the other files of its package.
func (s *Source) Validate(u *Unit) error {
	text, err := u.Format()
	if err != nil {
		return err
	}
	f, err := parser.ParseFile(s.Fset, u.Name+"#validate", text, parser.AllErrors|parser.ParseComments)
	if err != nil {
		return err
	}
	var errs ErrorList
	conf := &types.Config{
		Importer: s.importerFunc(u.Pkg),
		Error:    func(err error) { errs.Add(err) },
	}
	files := append([]*ast.File{f}, u.Siblings...)
	conf.Check(u.Pkg.Path(), s.Fset, files, nil)
	return errs.Err()
}
