// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/mod/modfile"
)

// supported reports whether goVersion satisfies the constraint.
// An empty constraint or version is always satisfied, as is a version
// that cannot be parsed.
func supported(constraint, goVersion string) (bool, error) {
	if constraint == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("requires_go: %w", err)
	}
	if goVersion == "" {
		return true, nil
	}
	v, err := semver.NewVersion(release(goVersion))
	if err != nil {
		return true, nil
	}
	return c.Check(v), nil
}

// release trims a Go version such as go1.22rc1 to its release number 1.22.
func release(v string) string {
	v = strings.TrimPrefix(v, "go")
	for i, r := range v {
		if r != '.' && (r < '0' || r > '9') {
			return v[:i]
		}
	}
	return v
}

// ModuleGoVersion returns the go version declared by the go.mod file of
// the module containing dir, or "" if there is no go.mod or it has no go
// line.
func ModuleGoVersion(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		name := filepath.Join(dir, "go.mod")
		data, err := os.ReadFile(name)
		if err == nil {
			f, err := modfile.ParseLax(name, data, nil)
			if err != nil {
				return "", err
			}
			if f.Go == nil {
				return "", nil
			}
			return f.Go.Version, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
