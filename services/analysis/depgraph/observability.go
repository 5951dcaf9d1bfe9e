// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package depgraph

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// depgraphTracerName is the shared OTel tracer name for graph assembly.
const depgraphTracerName = "repomind.depgraph"

var (
	// graphBuildDuration measures finalization of one dependency graph.
	graphBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "repomind",
			Subsystem: "depgraph",
			Name:      "build_duration_seconds",
			Help:      "Duration of dependency graph finalization in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 10},
		},
	)

	// graphCyclesTotal counts import cycles detected across all builds.
	graphCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "repomind",
			Subsystem: "depgraph",
			Name:      "cycles_total",
			Help:      "Total import cycles detected.",
		},
	)
)

// startGraphSpan starts an OTel span for one graph build.
func startGraphSpan(ctx context.Context) (context.Context, trace.Span) {
	tracer := otel.Tracer(depgraphTracerName)
	return tracer.Start(ctx, "depgraph.build")
}

// setGraphSpanResult records the outcome attributes on a build span.
func setGraphSpanResult(span trace.Span, nodes, edges, cycles int) {
	span.SetAttributes(
		attribute.Int("nodes", nodes),
		attribute.Int("edges", edges),
		attribute.Int("cycles", cycles),
	)
}

// recordGraphMetrics records Prometheus metrics for one graph build.
func recordGraphMetrics(_ context.Context, duration time.Duration, cycles int) {
	graphBuildDuration.Observe(duration.Seconds())
	if cycles > 0 {
		graphCyclesTotal.Add(float64(cycles))
	}
}
