// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refactor

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"sync"
)

// A Config is the build configuration packages are loaded in.
type Config struct {
	// BuildTags are the build tags to load with. GOOS and GOARCH values
	// set those environment variables, cgo and !cgo set CGO_ENABLED, and
	// race adds the -race flag; the rest are passed with -tags.
	BuildTags []string
}

// NewConfig returns a Config for a comma-separated list of build tags.
func NewConfig(tags string) Config {
	var c Config
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			c.BuildTags = append(c.BuildTags, t)
		}
	}
	return c
}

func (c Config) String() string {
	return strings.Join(c.BuildTags, ",")
}

type platform struct {
	GOOS   string
	GOARCH string
}

// platforms lists the GOOS/GOARCH pairs the go command supports.
var platforms = sync.OnceValues(func() ([]platform, error) {
	out, err := exec.Command("go", "tool", "dist", "list", "-json").Output()
	if err != nil {
		return nil, fmt.Errorf("listing GOOS/GOARCH values: %w", err)
	}
	var ps []platform
	if err := json.Unmarshal(out, &ps); err != nil {
		return nil, fmt.Errorf("listing GOOS/GOARCH values: %w", err)
	}
	return ps, nil
})

// flagsEnvs returns the go command flags and environment variables that
// select c.
func (c Config) flagsEnvs() (flags, envs []string, err error) {
	if len(c.BuildTags) == 0 {
		return nil, nil, nil
	}
	ps, err := platforms()
	if err != nil {
		return nil, nil, err
	}
	isOS := func(t string) bool { return slices.ContainsFunc(ps, func(p platform) bool { return p.GOOS == t }) }
	isArch := func(t string) bool { return slices.ContainsFunc(ps, func(p platform) bool { return p.GOARCH == t }) }

	env := make(map[string]string)
	setEnv := func(k, v string) error {
		if old, ok := env[k]; ok && old != v {
			return fmt.Errorf("conflicting %s values: %s and %s", k, v, old)
		}
		if _, ok := env[k]; !ok {
			env[k] = v
			envs = append(envs, k+"="+v)
		}
		return nil
	}
	var tags []string
	for _, t := range c.BuildTags {
		var err error
		switch {
		case isOS(t):
			err = setEnv("GOOS", t)
		case isArch(t):
			err = setEnv("GOARCH", t)
		case t == "cgo":
			err = setEnv("CGO_ENABLED", "1")
		case t == "!cgo":
			err = setEnv("CGO_ENABLED", "0")
		case t == "race":
			flags = append(flags, "-race")
		default:
			tags = append(tags, t)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	if len(tags) > 0 {
		flags = append(flags, "-tags="+strings.Join(tags, ","))
	}
	return flags, envs, nil
}
