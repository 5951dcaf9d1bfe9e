// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// astTracerName is the shared OTel tracer name for extraction operations.
const astTracerName = "repomind.ast"

// Package-level Prometheus metrics for extraction operations.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// extractDuration measures the duration of per-file extraction.
	//
	// Labels:
	//   - language: "python", "typescript", "javascript"
	//   - status: "success" or "error"
	extractDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "repomind",
			Subsystem: "ast",
			Name:      "extract_duration_seconds",
			Help:      "Duration of per-file call event extraction in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"language", "status"},
	)

	// extractEventsTotal counts the call events emitted per language.
	extractEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repomind",
			Subsystem: "ast",
			Name:      "events_total",
			Help:      "Total call/construction events emitted.",
		},
		[]string{"language"},
	)

	// extractFailuresTotal counts complete extraction failures per language.
	extractFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repomind",
			Subsystem: "ast",
			Name:      "failures_total",
			Help:      "Total extraction failures (parse errors, size/encoding rejects).",
		},
		[]string{"language"},
	)
)

// startExtractSpan starts an OTel span for one extraction pass.
func startExtractSpan(ctx context.Context, language, filePath string, sizeBytes int) (context.Context, trace.Span) {
	tracer := otel.Tracer(astTracerName)
	return tracer.Start(ctx, "ast.extract",
		trace.WithAttributes(
			attribute.String("language", language),
			attribute.String("file_path", filePath),
			attribute.Int("size_bytes", sizeBytes),
		))
}

// setExtractSpanResult records the outcome attributes on an extract span.
func setExtractSpanResult(span trace.Span, events, errors int) {
	span.SetAttributes(
		attribute.Int("events", events),
		attribute.Int("errors", errors),
	)
}

// recordExtractMetrics records Prometheus metrics for one extraction pass.
func recordExtractMetrics(_ context.Context, language string, duration time.Duration, events int, ok bool) {
	status := "success"
	if !ok {
		status = "error"
		extractFailuresTotal.WithLabelValues(language).Inc()
	}
	extractDuration.WithLabelValues(language, status).Observe(duration.Seconds())
	if events > 0 {
		extractEventsTotal.WithLabelValues(language).Add(float64(events))
	}
}
