// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

// TestRun runs the archives in testdata. The archive comment is the
// command line; the files stdout and stderr hold the expected output and
// every other file is written to the run directory. After the run, a
// file named want/NAME is compared with the rewritten NAME.
func TestRun(t *testing.T) {
	files, err := filepath.Glob("testdata/*.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no test cases")
	}

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			ar, err := txtar.ParseFile(file)
			if err != nil {
				t.Fatal(err)
			}
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module m\n\ngo 1.22\n"), 0666); err != nil {
				t.Fatal(err)
			}
			var wantStdout, wantStderr txtar.File
			var wants []txtar.File
			for _, file := range ar.Files {
				switch {
				case file.Name == "stdout":
					wantStdout = file
					continue
				case file.Name == "stderr":
					wantStderr = file
					continue
				case strings.HasPrefix(file.Name, "want/"):
					wants = append(wants, file)
					continue
				}
				targ := filepath.Join(dir, file.Name)
				if err := os.MkdirAll(filepath.Dir(targ), 0777); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(targ, file.Data, 0666); err != nil {
					t.Fatal(err)
				}
			}

			stdout, stderr := execute(t, dir, strings.Fields(string(ar.Comment))...)

			cmp := func(name string, have, want []byte) {
				have = trimSpace(have)
				want = trimSpace(want)
				if !bytes.Equal(have, want) {
					t.Errorf("%s:\n%s", name, have)
					t.Errorf("want:\n%s", want)
				}
			}
			cmp("stderr", stderr, wantStderr.Data)
			cmp("stdout", stdout, wantStdout.Data)
			for _, want := range wants {
				name := strings.TrimPrefix(want.Name, "want/")
				have, err := os.ReadFile(filepath.Join(dir, name))
				if err != nil {
					t.Fatal(err)
				}
				cmp(name, have, want.Data)
			}
		})
	}
}

// execute runs rw in dir and returns its output. A returned error is
// reported on stderr, as main does.
func execute(t *testing.T, dir string, args ...string) (stdout, stderr []byte) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"-C", dir, "--color=never"}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		errOut.WriteString("ERROR: " + err.Error() + "\n")
	}
	return out.Bytes(), errOut.Bytes()
}

func trimSpace(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = bytes.TrimRight(line, " ")
	}
	return bytes.Join(lines, []byte("\n"))
}

func TestRulesList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module m\n\ngo 1.15\n"), 0666))
	stdout, stderr := execute(t, dir, "rules")
	assert.Empty(t, string(stderr))

	out := string(stdout)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "DESCRIPTION")
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "ioutil-readall"):
			assert.Contains(t, line, "requires go >= 1.16, module has 1.15")
		case strings.Contains(line, "time-since"):
			assert.Contains(t, line, "enabled")
		case strings.Contains(line, "hoist-hooks"), strings.Contains(line, "collapse-fluent"):
			assert.Contains(t, line, "disabled")
		}
	}
}

func TestRulesFromConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rw.yaml"), []byte("builtin: false\nrules: [local.yaml]\n"), 0666))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.yaml"), []byte(`rules:
  - id: local-collapse
    kind: collapse
    description: Collapse fluent calls.
`), 0666))
	stdout, stderr := execute(t, dir, "rules")
	assert.Empty(t, string(stderr))
	assert.Contains(t, string(stdout), "local-collapse")
	assert.NotContains(t, string(stdout), "time-since")
}

func TestRulesValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(`rules:
  - id: since
    kind: fold
    receiver: time
    first: Now
    second: Sub
    replacement: Since
`), 0666))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`rules:
  - id: broken
    kind: template
    match: nospace
    template: f()
    disabled: true
`), 0666))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.yaml"), []byte("rules:\n  - id: x\n"), 0666))

	stdout, stderr := execute(t, dir, "rules", "--validate", "good.yaml")
	assert.Equal(t, "good.yaml: 1 rules ok\n", string(stdout))
	assert.Empty(t, string(stderr))

	stdout, stderr = execute(t, dir, "rules", "--validate", "bad.yaml", "--validate", "schema.yaml")
	assert.Empty(t, string(stdout))
	assert.Contains(t, string(stderr), "bad.yaml: rule broken: bad pattern")
	assert.Contains(t, string(stderr), "invalid catalog")
	assert.Contains(t, string(stderr), "ERROR: invalid catalog")
}

func TestApplyUnknownRule(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module m\n"), 0666))
	_, stderr := execute(t, dir, "apply", "--rule", "no-such-rule")
	assert.Equal(t, "ERROR: usage: unknown rule no-such-rule\n", string(stderr))
}

func TestConfigValidation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rw.yaml"), []byte("parallel: 0\n"), 0666))
	_, stderr := execute(t, dir, "rules")
	assert.Contains(t, string(stderr), "validate config: parallel must be at least 1")

	t.Setenv("RW_PARALLEL", "2")
	_, stderr = execute(t, dir, "rules")
	assert.NotContains(t, string(stderr), "ERROR")
}

func TestConfigMissingFile(t *testing.T) {
	_, stderr := execute(t, t.TempDir(), "--config", "nope.yaml", "rules")
	assert.Contains(t, string(stderr), "ERROR: read config")
}
