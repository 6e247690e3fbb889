// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diff

import (
	"fmt"
	"strings"
	"testing"
)

const (
	oldName = "a/b/c"
	newName = "d/e/f"
	header  = "diff a/b/c d/e/f\n--- a/b/c\n+++ d/e/f\n"
)

var diffTests = []struct {
	name     string
	old, new string
	want     string
}{
	{
		"replace",
		"abc\ndef\nghi\n",
		"ABC\ndef\nGHI\n",
		"@@ -1,3 +1,3 @@\n-abc\n+ABC\n def\n-ghi\n+GHI\n",
	},
	{
		"two hunks",
		numbered("l", 1, 10),
		"L1\n" + numbered("l", 2, 9) + "L10\n",
		"@@ -1,4 +1,4 @@\n-l1\n+L1\n l2\n l3\n l4\n" +
			"@@ -7,4 +7,4 @@\n l7\n l8\n l9\n-l10\n+L10\n",
	},
	{
		"missing newline",
		"a\n",
		"a\nb",
		"@@ -1 +1,2 @@\n a\n+b\n\\ No newline at end of file\n",
	},
	{
		"from empty",
		"",
		"x\n",
		"@@ -0,0 +1 @@\n+x\n",
	},
}

func numbered(prefix string, lo, hi int) string {
	var b strings.Builder
	for i := lo; i <= hi; i++ {
		fmt.Fprintf(&b, "%s%d\n", prefix, i)
	}
	return b.String()
}

func TestDiff(t *testing.T) {
	for _, tt := range diffTests {
		out := Diff(oldName, []byte(tt.old), newName, []byte(tt.new))
		if want := header + tt.want; string(out) != want {
			t.Errorf("%s: have:\n%s", tt.name, out)
			t.Errorf("%s: want:\n%s", tt.name, want)
		}
	}
}

func TestDiffEqual(t *testing.T) {
	if out := Diff(oldName, []byte("x\n"), newName, []byte("x\n")); out != nil {
		t.Errorf("Diff of equal inputs = %q, want nil", out)
	}
}
