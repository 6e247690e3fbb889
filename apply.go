// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"go/types"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/rewritekit/rw/catalog"
	"github.com/rewritekit/rw/diff"
	"github.com/rewritekit/rw/obs"
	"github.com/rewritekit/rw/refactor"
	"github.com/rewritekit/rw/rewrite"
)

type applyOptions struct {
	diff  bool
	rules []string
	tests bool
}

func newApplyCmd(e *env) *cobra.Command {
	var opts applyOptions
	cmd := &cobra.Command{
		Use:   "apply [flags] [packages]",
		Short: "Apply rewrite rules to packages",
		Long: `Apply runs the enabled rules of the configured catalogs over every file
of the named packages, "." by default, and writes the rewritten files back.
Rewrites that leave a file that no longer type-checks are discarded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			return e.apply(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, args)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.diff, "diff", false, "show diff instead of writing files")
	f.StringArrayVar(&opts.rules, "rule", nil, "run only rule `id` (repeatable)")
	f.BoolVar(&opts.tests, "test", true, "include test files")
	f.Int("max-passes", rewrite.DefaultMaxPasses, "follow-up pass `limit` per rule")
	f.Int("parallel", 0, "number of packages rewritten concurrently (default GOMAXPROCS)")
	f.String("tags", "", "comma-separated build `tags`")
	return cmd
}

type outcome struct {
	unit   *refactor.Unit
	report *rewrite.Report
	err    error
}

func (e *env) apply(ctx context.Context, stdout, stderr io.Writer, opts applyOptions, pkgs []string) error {
	shutdown, err := obs.InitTracing(ctx, e.cfg.Trace, e.cfg.TraceInsecure)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			e.log.WarnContext(ctx, "flushing traces", "err", err)
		}
	}()
	tracer := otel.Tracer("github.com/rewritekit/rw")
	ctx, span := tracer.Start(ctx, "rw.apply")
	defer span.End()

	defs, err := e.definitions()
	if err != nil {
		return err
	}
	for _, id := range opts.rules {
		if !slices.ContainsFunc(defs, func(d catalog.Definition) bool { return d.ID == id }) {
			return newErrUsage("unknown rule %s", id)
		}
	}

	src := refactor.NewSource()
	src.Config = refactor.NewConfig(e.cfg.Tags)
	units, err := src.Load(ctx, e.dir, opts.tests, pkgs...)
	if err != nil {
		return err
	}

	set := catalog.Compile(defs, catalog.Options{
		GoVersion: e.goVersion(ctx, src.GoVersion),
		Only:      opts.rules,
		Log:       e.log,
	})
	for _, derr := range set.Errors {
		fmt.Fprintf(stderr, "rw: %v\n", derr)
	}
	if len(set.Rules) == 0 {
		return newErrPrecondition("no rules to apply")
	}

	engine := &rewrite.Engine{
		Log:       e.log,
		MaxPasses: e.cfg.MaxPasses,
		Registry:  set.Registry,
		Tracer:    tracer,
	}
	metrics := obs.NewMetrics()
	results := make([]outcome, len(units))

	// Files of one package share its *types.Package, which fragment
	// checks extend, so each package is rewritten by one goroutine.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallel)
	for _, group := range byPackage(units) {
		g.Go(func() error {
			for _, i := range group {
				if err := gctx.Err(); err != nil {
					return err
				}
				out, report, err := engine.Run(gctx, units[i], set.Rules)
				results[i] = outcome{out, report, err}
				metrics.Observe(report, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var errs []error
	var changed, edits int
	for i, r := range results {
		name := e.rel(units[i].Name)
		switch {
		case r.err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", name, r.err))
			continue
		case r.report.Invalid != nil:
			e.log.WarnContext(ctx, "rewrite discarded", "file", name, "err", r.report.Invalid.Err)
			continue
		case !r.report.Changed:
			continue
		}
		text, err := r.unit.Format()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		changed++
		for _, n := range r.report.Hits {
			edits += n
		}
		if opts.diff {
			writeDiff(stdout, diff.Diff(name, units[i].Src, name, text), e.colored(stdout))
			continue
		}
		if err := writeFile(units[i].Name, text); err != nil {
			errs = append(errs, err)
		}
	}
	fmt.Fprintf(stderr, "%s of %s %s changed, %s %s\n",
		humanize.Comma(int64(changed)),
		humanize.Comma(int64(len(units))), english.PluralWord(len(units), "file", ""),
		humanize.Comma(int64(edits)), english.PluralWord(edits, "edit", ""))

	if e.cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(e.path(e.cfg.MetricsTextfile)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// byPackage groups the indexes of units by package, in order.
func byPackage(units []*refactor.Unit) [][]int {
	index := make(map[*types.Package]int)
	var groups [][]int
	for i, u := range units {
		g, ok := index[u.Pkg]
		if !ok {
			g = len(groups)
			index[u.Pkg] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func (e *env) rel(name string) string {
	dir, err := filepath.Abs(e.dir)
	if err != nil {
		return name
	}
	if r, err := filepath.Rel(dir, name); err == nil && !strings.HasPrefix(r, "..") {
		return filepath.ToSlash(r)
	}
	return name
}

func writeFile(name string, data []byte) error {
	fi, err := os.Stat(name)
	if err != nil {
		return err
	}
	return os.WriteFile(name, data, fi.Mode().Perm())
}

func colorDisabled() bool { return color.NoColor }

func writeDiff(w io.Writer, d []byte, colored bool) {
	if !colored {
		w.Write(d)
		return
	}
	header := color.New(color.Bold)
	hunk := color.New(color.FgCyan)
	del := color.New(color.FgRed)
	add := color.New(color.FgGreen)
	for _, c := range []*color.Color{header, hunk, del, add} {
		c.EnableColor()
	}
	for _, line := range strings.SplitAfter(string(d), "\n") {
		switch {
		case strings.HasPrefix(line, "diff "), strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			header.Fprint(w, line)
		case strings.HasPrefix(line, "@@"):
			hunk.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			del.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			add.Fprint(w, line)
		default:
			io.WriteString(w, line)
		}
	}
}
