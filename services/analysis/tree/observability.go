// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// treeTracerName is the shared OTel tracer name for tree aggregation.
const treeTracerName = "repomind.tree"

var (
	// aggregateDuration measures one tree aggregation pass.
	aggregateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "repomind",
			Subsystem: "tree",
			Name:      "aggregate_duration_seconds",
			Help:      "Duration of file tree aggregation in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 10},
		},
	)

	// aggregateFilesTotal counts files aggregated across all passes.
	aggregateFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "repomind",
			Subsystem: "tree",
			Name:      "files_total",
			Help:      "Total files aggregated into trees.",
		},
	)
)

// startAggregateSpan starts an OTel span for one aggregation pass.
func startAggregateSpan(ctx context.Context, rootName string, entries int) (context.Context, trace.Span) {
	tracer := otel.Tracer(treeTracerName)
	return tracer.Start(ctx, "tree.aggregate",
		trace.WithAttributes(
			attribute.String("root", rootName),
			attribute.Int("entries", entries),
		))
}

// setAggregateSpanResult records the outcome attributes on an aggregate span.
func setAggregateSpanResult(span trace.Span, files int, size int64) {
	span.SetAttributes(
		attribute.Int("total_files", files),
		attribute.Int64("total_size", size),
	)
}

// recordAggregateMetrics records Prometheus metrics for one pass.
func recordAggregateMetrics(_ context.Context, duration time.Duration, files int) {
	aggregateDuration.Observe(duration.Seconds())
	if files > 0 {
		aggregateFilesTotal.Add(float64(files))
	}
}
