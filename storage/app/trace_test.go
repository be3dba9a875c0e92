// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package app

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestEventsContinuesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	a, s, srv := newTestApp(t)
	a.Updater.Tracer = tp.Tracer("test")
	put(t, s, "benchmark_abc.json", `[{"n":1}]`)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	h := http.Header{"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"}}
	if code, body := post(t, srv.URL+"/events", `{"bucket":"bench","name":"benchmark_abc.json"}`, h); code != http.StatusOK {
		t.Fatalf("POST /events = %d %s", code, body)
	}

	var found bool
	for _, span := range sr.Ended() {
		if span.Name() != "updater.Handle" {
			continue
		}
		found = true
		if got := span.SpanContext().TraceID().String(); got != traceID {
			t.Errorf("trace ID = %s, want %s", got, traceID)
		}
		if got := span.Parent().SpanID().String(); got != "00f067aa0ba902b7" {
			t.Errorf("parent span ID = %s, want 00f067aa0ba902b7", got)
		}
	}
	if !found {
		t.Error("no updater.Handle span recorded")
	}
}
