// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rewritekit/rw/catalog"
)

func newRulesCmd(e *env) *cobra.Command {
	var validate []string
	cmd := &cobra.Command{
		Use:   "rules [--validate file]...",
		Short: "List the configured rules or check catalog files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(validate) > 0 {
				return e.validate(cmd.OutOrStdout(), cmd.ErrOrStderr(), validate)
			}
			return e.list(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringArrayVar(&validate, "validate", nil, "check catalog `file` instead of listing rules")
	return cmd
}

// list prints the configured rules and whether each would run.
func (e *env) list(ctx context.Context, w io.Writer) error {
	defs, err := e.definitions()
	if err != nil {
		return err
	}
	set := catalog.Compile(defs, catalog.Options{GoVersion: e.goVersion(ctx, ""), Log: e.log})
	status := make(map[string]string)
	for _, r := range set.Rules {
		status[r.Name] = "enabled"
	}
	for _, s := range set.Skipped {
		status[s.ID] = s.Reason
	}
	for _, derr := range set.Errors {
		status[derr.ID] = "error: " + derr.Err.Error()
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.AppendHeader(table.Row{"ID", "Kind", "Go", "Status", "Description"})
	for _, d := range defs {
		tbl.AppendRow(table.Row{d.ID, d.Kind, d.RequiresGo, status[d.ID], d.Description})
	}
	tbl.Render()
	return nil
}

// validate checks each catalog file, reporting every problem found.
func (e *env) validate(stdout, stderr io.Writer, files []string) error {
	failed := false
	for _, name := range files {
		defs, err := readCatalog(e.path(name))
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			failed = true
			continue
		}
		// Naming every rule compiles disabled ones too.
		var all []string
		for _, d := range defs {
			all = append(all, d.ID)
		}
		set := catalog.Compile(defs, catalog.Options{Only: all, Log: e.log})
		for _, derr := range set.Errors {
			fmt.Fprintf(stderr, "%s: %v\n", name, derr)
			failed = true
		}
		if len(set.Errors) == 0 {
			fmt.Fprintf(stdout, "%s: %d rules ok\n", name, len(defs))
		}
	}
	if failed {
		return errInvalidCatalog
	}
	return nil
}
