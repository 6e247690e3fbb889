// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rewritekit/rw/catalog"
	"github.com/rewritekit/rw/obs"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "rw: %v\n", err)
		var usage *errUsage
		if errors.As(err, &usage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// An env is the state shared by the subcommands of one invocation.
type env struct {
	dir     string
	cfgFile string
	color   string
	cfg     *config
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	cmd := &cobra.Command{
		Use:           "rw",
		Short:         "rw rewrites Go code with structural rules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch e.color {
			case "auto", "always", "never":
			default:
				return newErrUsage("--color must be auto, always or never")
			}
			cfg, err := loadConfig(e.dir, e.cfgFile, cmd)
			if err != nil {
				return err
			}
			log, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			e.cfg, e.log = cfg, log
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&e.dir, "dir", "C", ".", "run as if started in `dir`")
	pf.StringVar(&e.cfgFile, "config", "", "read configuration from `file` instead of .rw.yaml")
	pf.StringVar(&e.color, "color", "auto", "colorize diffs: auto, always or never")
	pf.String("log-level", "info", "log `level`: debug, info, warn or error")
	pf.String("log-format", "text", "log `format`: text or json")
	pf.Bool("builtin", true, "include the built-in rule catalog")

	cmd.AddCommand(newApplyCmd(e))
	cmd.AddCommand(newRulesCmd(e))
	return cmd
}

// definitions returns the configured catalogs, merged.
// Catalog files are relative to the run directory.
func (e *env) definitions() ([]catalog.Definition, error) {
	var lists [][]catalog.Definition
	if e.cfg.Builtin {
		lists = append(lists, catalog.Builtin())
	}
	for _, name := range e.cfg.Rules {
		defs, err := readCatalog(e.path(name))
		if err != nil {
			return nil, err
		}
		lists = append(lists, defs)
	}
	return catalog.Merge(lists...), nil
}

func readCatalog(name string) ([]catalog.Definition, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return catalog.Parse(name, data)
}

func (e *env) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.dir, name)
}

// goVersion returns the configured Go version, falling back to loaded.
func (e *env) goVersion(ctx context.Context, loaded string) string {
	if e.cfg.GoVersion != "" {
		return e.cfg.GoVersion
	}
	if loaded != "" {
		return loaded
	}
	v, err := catalog.ModuleGoVersion(e.dir)
	if err != nil {
		e.log.WarnContext(ctx, "reading go.mod", "err", err)
	}
	return v
}

// colored reports whether diffs written to w get color.
func (e *env) colored(w io.Writer) bool {
	switch e.color {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	return ok && f == os.Stdout && !colorDisabled()
}
