// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewritekit/rw/match"
	"github.com/rewritekit/rw/refactor"
	"github.com/rewritekit/rw/rewrite"
)

func ids(rules []rewrite.Rule) []string {
	var out []string
	for _, r := range rules {
		out = append(out, r.Name)
	}
	return out
}

func skipped(set *Set) []string {
	var out []string
	for _, s := range set.Skipped {
		out = append(out, s.ID)
	}
	return out
}

func TestBuiltin(t *testing.T) {
	defs := Builtin()
	require.NotEmpty(t, defs)
	set := Compile(defs, Options{GoVersion: "1.24"})
	assert.Empty(t, set.Errors)
	assert.Equal(t, []string{"collapse-fluent", "hoist-hooks"}, skipped(set))
	assert.Len(t, set.Rules, len(defs)-2)
	assert.Contains(t, ids(set.Rules), "expect-panic")
	assert.NotContains(t, ids(set.Rules), "collapse-fluent")
	assert.Empty(t, set.Registry)
}

func TestGoVersionGating(t *testing.T) {
	defs := Builtin()
	tests := []struct {
		version string
		has     []string
		lacks   []string
	}{
		{"1.15", []string{"time-since"}, []string{"ioutil-readall", "reflect-pointerto"}},
		{"1.16", []string{"ioutil-readall"}, []string{"reflect-pointerto"}},
		{"go1.22rc1", []string{"ioutil-readall", "reflect-pointerto"}, nil},
		{"", []string{"ioutil-readall", "reflect-pointerto"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			set := Compile(defs, Options{GoVersion: tt.version})
			require.Empty(t, set.Errors)
			for _, id := range tt.has {
				assert.Contains(t, ids(set.Rules), id)
			}
			for _, id := range tt.lacks {
				assert.NotContains(t, ids(set.Rules), id)
				assert.Contains(t, skipped(set), id)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	tests := []struct {
		constraint, version string
		ok                  bool
	}{
		{"", "1.10", true},
		{">= 1.16", "1.16", true},
		{">= 1.16", "1.16.3", true},
		{">= 1.16", "1.15", false},
		{"< 1.22", "go1.22.0", false},
		{">= 1.21", "1.21rc2", true},
		{">= 1.21", "", true},
	}
	for _, tt := range tests {
		ok, err := supported(tt.constraint, tt.version)
		require.NoError(t, err)
		assert.Equal(t, tt.ok, ok, "%q against %q", tt.version, tt.constraint)
	}

	_, err := supported(">= banana", "1.20")
	assert.Error(t, err)
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing kind", "rules:\n  - id: x\n"},
		{"unknown kind", "rules:\n  - id: x\n    kind: magic\n"},
		{"unknown field", "rules:\n  - id: x\n    kind: collapse\n    colour: red\n"},
		{"template without match", "rules:\n  - id: x\n    kind: template\n    template: f()\n"},
		{"fold without replacement", "rules:\n  - id: x\n    kind: fold\n    receiver: time\n    first: Now\n    second: Sub\n"},
		{"bad id", "rules:\n  - id: Not_An_Id\n    kind: collapse\n"},
		{"no rules", "other: 1\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("c.yaml", []byte(tt.yaml))
			var serr *SchemaError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, "c.yaml", serr.Name)
			assert.NotEmpty(t, serr.Problems)
		})
	}
}

func TestParseDuplicate(t *testing.T) {
	_, err := Parse("c.yaml", []byte(`rules:
  - id: a
    kind: collapse
  - id: a
    kind: collapse
`))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse("c.yaml", []byte("rules: [\n"))
	require.Error(t, err)
	var serr *SchemaError
	assert.NotErrorAs(t, err, &serr)
	assert.Contains(t, err.Error(), "c.yaml: ")
}

func TestParseFields(t *testing.T) {
	defs, err := Parse("c.yaml", []byte(`rules:
  - id: empty-len
    kind: fold
    receiver: example.com/p
    first: That
    second: HasLen
    replacement: Empty
    first_args: 1
    constants:
      - arg: 1
        value: "0"
    requires_go: ">= 1.18"
`))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	d := defs[0]
	assert.Equal(t, "empty-len", d.ID)
	assert.Equal(t, KindFold, d.Kind)
	require.NotNil(t, d.FirstArgs)
	assert.Equal(t, 1, *d.FirstArgs)
	assert.Nil(t, d.SecondArgs)
	assert.Equal(t, []Constant{{Arg: 1, Value: "0"}}, d.Constants)
	assert.Equal(t, ">= 1.18", d.RequiresGo)
}

func TestCompileErrors(t *testing.T) {
	defs := []Definition{
		{ID: "bad-pattern", Kind: KindTemplate, Match: "nospace", Template: "f()"},
		{ID: "bad-label", Kind: KindTemplate, Match: "time Now()", Template: "g(#{x})"},
		{ID: "bad-bind", Kind: KindTemplate, Match: "time Now()", Template: "g(#{}, #{})", Bind: []string{"arg0"}},
		{ID: "bad-constraint", Kind: KindCollapse, RequiresGo: "soon"},
		{ID: "bad-import", Kind: KindExpectPanic, Match: "testing.T Fatal(..)", Template: "f(#{t}, func() { #{body} })", Imports: []string{"x="}},
		{ID: "good", Kind: KindCollapse},
	}
	set := Compile(defs, Options{})
	assert.Equal(t, []string{"good"}, ids(set.Rules))
	require.Len(t, set.Errors, 5)

	byID := make(map[string]*DefinitionError)
	for _, e := range set.Errors {
		byID[e.ID] = e
	}
	var cerr *match.CompileError
	assert.ErrorAs(t, byID["bad-pattern"], &cerr)
	assert.ErrorContains(t, byID["bad-label"], `unknown placeholder "x"`)
	assert.ErrorContains(t, byID["bad-bind"], "1 bind labels for 2 placeholders")
	assert.ErrorContains(t, byID["bad-constraint"], "requires_go")
	assert.ErrorContains(t, byID["bad-import"], `invalid import "x="`)
	assert.Contains(t, byID["bad-pattern"].Error(), "rule bad-pattern: ")
}

func TestCompileOnly(t *testing.T) {
	set := Compile(Builtin(), Options{Only: []string{"hoist-hooks", "time-since"}})
	assert.Empty(t, set.Errors)
	assert.Equal(t, []string{"time-since", "hoist-hooks"}, ids(set.Rules))
	assert.Contains(t, set.Registry, "hoist-hooks/declare")
}

func TestMerge(t *testing.T) {
	a := []Definition{{ID: "x", Kind: KindCollapse}, {ID: "y", Kind: KindCollapse}}
	b := []Definition{{ID: "x", Kind: KindCollapse, Disabled: true}, {ID: "z", Kind: KindCollapse}}
	got := Merge(a, b)
	require.Len(t, got, 3)
	assert.Equal(t, "x", got[0].ID)
	assert.True(t, got[0].Disabled)
	assert.Equal(t, "y", got[1].ID)
	assert.Equal(t, "z", got[2].ID)
}

func TestModuleGoVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/m\n\ngo 1.21\n"), 0o666))
	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o777))

	v, err := ModuleGoVersion(sub)
	require.NoError(t, err)
	assert.Equal(t, "1.21", v)
}

func apply(t *testing.T, src string, only ...string) string {
	t.Helper()
	set := Compile(Builtin(), Options{GoVersion: "1.24", Only: only})
	require.Empty(t, set.Errors)
	u, err := refactor.NewSource().Parse("x.go", "example.com/p", []byte(src))
	require.NoError(t, err)
	e := &rewrite.Engine{Registry: set.Registry}
	out, report, err := e.Run(context.Background(), u, set.Rules)
	require.NoError(t, err)
	require.Nil(t, report.Invalid)
	text, err := out.Format()
	require.NoError(t, err)
	return string(text)
}

func TestTemplateRule(t *testing.T) {
	out := apply(t, `package p

import (
	"io/ioutil"
	"strings"
)

func Read() ([]byte, error) {
	return ioutil.ReadAll(strings.NewReader("x"))
}
`, "ioutil-readall")
	assert.Contains(t, out, `return io.ReadAll(strings.NewReader("x"))`)
	assert.Contains(t, out, `"io"`)
	assert.NotContains(t, out, "ioutil")
}

func TestTemplateRuleKeepsOtherCalls(t *testing.T) {
	src := `package p

import "io/ioutil"

func Dir() ([]string, error) {
	infos, err := ioutil.ReadDir(".")
	var names []string
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	return names, err
}
`
	assert.Equal(t, src, apply(t, src, "ioutil-readall", "ioutil-readfile"))
}

func TestFoldRule(t *testing.T) {
	out := apply(t, `package p

import "time"

func Elapsed(start time.Time) time.Duration {
	return time.Now().Sub(start)
}
`, "time-since")
	assert.Contains(t, out, "return time.Since(start)")
}
