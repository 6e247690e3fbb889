// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/rewritekit/rw/rewrite"
)

func TestLoggerTraceContext(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger("debug", "json", &buf)
	require.NoError(t, err)

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	log.With("unit", "x.go").DebugContext(ctx, "rule hit", "rule", "collapse")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "x.go", record["unit"])
	assert.Equal(t, "collapse", record["rule"])
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger("warn", "text", &buf)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestLoggerErrors(t *testing.T) {
	_, err := NewLogger("loud", "text", &bytes.Buffer{})
	assert.Error(t, err)
	_, err = NewLogger("info", "xml", &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrLogFormat)
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "", false)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.Observe(&rewrite.Report{Changed: true, Passes: 2, Hits: map[string]int{"collapse": 3}}, nil)
	m.Observe(&rewrite.Report{Passes: 1, Failures: 1}, nil)
	m.Observe(&rewrite.Report{Changed: true, Passes: 1, Invalid: &rewrite.ValidationError{Err: errors.New("bad")}}, nil)
	m.Observe(nil, errors.New("overflow"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.rules.WithLabelValues("collapse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.units.WithLabelValues(Changed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.units.WithLabelValues(Unchanged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.units.WithLabelValues(Invalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.units.WithLabelValues(Failed)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.passes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures))

	name := filepath.Join(t.TempDir(), "rw.prom")
	require.NoError(t, m.WriteTextfile(name))
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), `rw_units_total{outcome="changed"} 1`)
	assert.Contains(t, string(data), `rw_rule_applications_total{rule="collapse"} 3`)
}
