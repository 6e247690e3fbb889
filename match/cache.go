// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import "sync"

// A Cache memoizes pattern compilation, including failures.
// The zero Cache is ready to use and safe for concurrent use.
// Compiling is idempotent, so two goroutines racing on a first use
// both compute the same matcher and one of them wins.
type Cache struct {
	types   sync.Map // string -> cached
	methods sync.Map // string -> cached
}

type cached struct {
	m   any
	err error
}

// Type returns the compiled type pattern.
func (c *Cache) Type(pattern string) (*TypeMatcher, error) {
	if v, ok := c.types.Load(pattern); ok {
		e := v.(cached)
		m, _ := e.m.(*TypeMatcher)
		return m, e.err
	}
	m, err := CompileType(pattern)
	v, _ := c.types.LoadOrStore(pattern, cached{m, err})
	e := v.(cached)
	m, _ = e.m.(*TypeMatcher)
	return m, e.err
}

// Method returns the compiled method pattern.
func (c *Cache) Method(pattern string) (*MethodMatcher, error) {
	if v, ok := c.methods.Load(pattern); ok {
		e := v.(cached)
		m, _ := e.m.(*MethodMatcher)
		return m, e.err
	}
	m, err := CompileMethod(pattern)
	v, _ := c.methods.LoadOrStore(pattern, cached{m, err})
	e := v.(cached)
	m, _ = e.m.(*MethodMatcher)
	return m, e.err
}
