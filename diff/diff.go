// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diff implements a Diff function that compares two inputs
// line by line and formats the result as a unified diff.
package diff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// context is the number of unchanged lines shown around each change.
const context = 3

type line struct {
	op   byte // ' ', '-' or '+'
	text string
}

// Diff returns the unified diff of old and new, or nil if they are equal.
func Diff(oldName string, old []byte, newName string, new []byte) []byte {
	if bytes.Equal(old, new) {
		return nil
	}
	ls := lines(string(old), string(new))

	var out bytes.Buffer
	fmt.Fprintf(&out, "diff %s %s\n--- %s\n+++ %s\n", oldName, newName, oldName, newName)

	// oldAt[i] and newAt[i] count the old and new lines before ls[i].
	oldAt := make([]int, len(ls)+1)
	newAt := make([]int, len(ls)+1)
	for i, l := range ls {
		oldAt[i+1], newAt[i+1] = oldAt[i], newAt[i]
		if l.op != '+' {
			oldAt[i+1]++
		}
		if l.op != '-' {
			newAt[i+1]++
		}
	}

	for i := 0; i < len(ls); {
		if ls[i].op == ' ' {
			i++
			continue
		}
		start := max(i-context, 0)
		last := i
		for j := i; j < len(ls) && j-last <= 2*context; j++ {
			if ls[j].op != ' ' {
				last = j
			}
		}
		stop := min(last+context+1, len(ls))
		fmt.Fprintf(&out, "@@ -%s +%s @@\n",
			span(oldAt[start], oldAt[stop]-oldAt[start]),
			span(newAt[start], newAt[stop]-newAt[start]))
		for _, l := range ls[start:stop] {
			out.WriteByte(l.op)
			out.WriteString(l.text)
			if !strings.HasSuffix(l.text, "\n") {
				out.WriteString("\n\\ No newline at end of file\n")
			}
		}
		i = stop
	}
	return out.Bytes()
}

// span formats a hunk range the way diff -u does.
func span(before, n int) string {
	switch n {
	case 0:
		return fmt.Sprintf("%d,0", before)
	case 1:
		return fmt.Sprint(before + 1)
	}
	return fmt.Sprintf("%d,%d", before+1, n)
}

// lines returns the line-level edit script turning old into new.
func lines(old, new string) []line {
	dmp := diffmatchpatch.New()
	a, b, index := dmp.DiffLinesToRunes(old, new)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(a, b, false), index)

	var ls []line
	for _, d := range diffs {
		op := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = '-'
		case diffmatchpatch.DiffInsert:
			op = '+'
		}
		for _, text := range strings.SplitAfter(d.Text, "\n") {
			if text != "" {
				ls = append(ls, line{op, text})
			}
		}
	}
	return ls
}
