// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package catalog loads rule definitions and compiles them into rules.
//
// A catalog is a YAML document listing rule definitions:
//
//	rules:
//	  - id: ioutil-readall
//	    kind: template
//	    match: io/ioutil ReadAll(..)
//	    template: io.ReadAll(#{arg0})
//	    imports: [io]
//	    requires_go: ">= 1.16"
//
// Each document is checked against a JSON schema before it is decoded.
// A definition whose patterns or templates do not compile is skipped and
// reported; the rest of the catalog still compiles.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed builtin.yaml
var builtinYAML []byte

// Rule kinds.
const (
	KindTemplate    = "template"
	KindCollapse    = "collapse"
	KindFold        = "fold"
	KindExpectPanic = "expect-panic"
	KindHoist       = "hoist"
)

// A Definition is one rule of a catalog, as written.
type Definition struct {
	ID          string   `yaml:"id"`
	Kind        string   `yaml:"kind"`
	Description string   `yaml:"description,omitempty"`
	Match       string   `yaml:"match,omitempty"`
	Template    string   `yaml:"template,omitempty"`
	Typed       string   `yaml:"typed_template,omitempty"`
	Bind        []string `yaml:"bind,omitempty"`
	Imports     []string `yaml:"imports,omitempty"`

	// Fold and collapse.
	Receiver    string     `yaml:"receiver,omitempty"`
	First       string     `yaml:"first,omitempty"`
	Second      string     `yaml:"second,omitempty"`
	Replacement string     `yaml:"replacement,omitempty"`
	FirstArgs   *int       `yaml:"first_args,omitempty"`
	SecondArgs  *int       `yaml:"second_args,omitempty"`
	Constants   []Constant `yaml:"constants,omitempty"`

	// Hoist.
	Prefix string `yaml:"prefix,omitempty"`

	RequiresGo string `yaml:"requires_go,omitempty"`
	Disabled   bool   `yaml:"disabled,omitempty"`
}

// A Constant constrains a fold argument to a constant value.
type Constant struct {
	Arg   int    `yaml:"arg"`
	Value string `yaml:"value"`
}

type document struct {
	Rules []Definition `yaml:"rules"`
}

// A SchemaError reports a catalog that does not conform to the schema.
type SchemaError struct {
	Name     string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: invalid catalog:\n\t%s", e.Name, strings.Join(e.Problems, "\n\t"))
}

// ErrDuplicateID is reported for a catalog defining an id twice.
var ErrDuplicateID = errors.New("duplicate rule id")

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// Parse parses the catalog named name.
func Parse(name string, data []byte) ([]Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if raw == nil {
		return nil, &SchemaError{Name: name, Problems: []string{"empty catalog"}}
	}
	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if !result.Valid() {
		serr := &SchemaError{Name: name}
		for _, verr := range result.Errors() {
			serr.Problems = append(serr.Problems, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
		}
		return nil, serr
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	seen := make(map[string]bool)
	for _, d := range doc.Rules {
		if seen[d.ID] {
			return nil, fmt.Errorf("%s: %w %s", name, ErrDuplicateID, d.ID)
		}
		seen[d.ID] = true
	}
	return doc.Rules, nil
}

// Builtin returns the definitions of the built-in catalog.
func Builtin() []Definition {
	defs, err := Parse("builtin.yaml", builtinYAML)
	if err != nil {
		panic("catalog: " + err.Error())
	}
	return defs
}

// Merge combines catalogs. A definition replaces an earlier one with the
// same id.
func Merge(lists ...[]Definition) []Definition {
	var out []Definition
	index := make(map[string]int)
	for _, list := range lists {
		for _, d := range list {
			if i, ok := index[d.ID]; ok {
				out[i] = d
				continue
			}
			index[d.ID] = len(out)
			out = append(out, d)
		}
	}
	return out
}
