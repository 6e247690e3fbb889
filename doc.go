// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Rw rewrites Go programs with structural rules.
//
// Usage:
//
//	rw apply [--diff] [--rule id]... [packages]
//	rw rules [--validate file]...
//
// Apply loads the named packages (by default the one in the current
// directory), runs the enabled rules over every file, and writes the
// rewritten files back. The --diff flag causes rw to print a diff of the
// intended changes instead. The --rule flag restricts the run to the
// named rules; naming a disabled rule enables it.
//
// A rewrite whose result no longer parses or type-checks is discarded,
// and the file is left as it was. Imports are reconciled after each file
// is rewritten: imports that are no longer used are removed and imports
// the new code needs are added.
//
// Rules lists the rules of the configured catalogs, whether each is
// enabled, and if not, why. With --validate it checks catalog files
// instead, reporting every definition that does not compile.
//
// # Catalogs
//
// Rules are defined in YAML catalogs. The built-in catalog holds rules
// for deprecated standard library calls, chained-call folding, fluent
// call collapsing (disabled unless named with --rule) and expect-panic
// test conversion; further catalogs are
// named in the configuration. A later definition replaces an earlier one
// with the same id.
//
// Each definition has an id and a kind:
//
//	template      replace calls matching match by template
//	collapse      chain consecutive calls on the same fluent receiver
//	fold          fold x.first(a).second(b) into x.replacement(a, b)
//	expect-panic  turn a deferred recover guard into a panic assertion
//	hoist         turn OnX(func() { ... }) registrations into X methods
//
// A template refers to the code it replaces through placeholders
// written #{label}. In template rules, #{receiver} is the receiver of the
// matched call and #{arg0}, #{arg1}, ... are its arguments. In
// expect-panic rules, #{t} is the receiver of the failing call, #{body}
// the statements expected to panic and #{type} the type the recovered
// value is asserted to.
//
// Match patterns name calls as "decl name(args)", where decl is a type
// pattern or a package path, name may be a glob, and each argument is a
// type pattern, * for any single argument, or .. for any number of
// arguments:
//
//	io/ioutil ReadAll(..)
//	testing.T Fatal*(..)
//	example.com/hooks.Base+ On*(*)
//
// A definition with requires_go, a semantic version constraint such as
// ">= 1.16", only runs on modules whose go line satisfies it.
//
// # Configuration
//
// Rw reads .rw.yaml from the run directory, or the file named by
// --config. Environment variables prefixed with RW_ override it, and
// flags override both:
//
//	rules:            # catalog files, relative to the run directory
//	  - rules/local.yaml
//	builtin: true     # include the built-in catalog
//	max_passes: 8     # follow-up pass limit per rule
//	parallel: 4       # packages rewritten concurrently
//	log:
//	  level: info
//	  format: text    # or json
//	metrics_textfile: rw.prom
//	trace: localhost:4317
//	go_version: "1.22"
//
// When trace names an OTLP gRPC endpoint, rw exports a span for each
// file and each rewrite pass. When metrics_textfile is set, rw writes
// counters for rule applications, file outcomes and passes there in the
// Prometheus text format.
package main
