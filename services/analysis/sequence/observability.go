// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sequence

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// sequenceTracerName is the shared OTel tracer name for assembly operations.
const sequenceTracerName = "repomind.sequence"

var (
	// assembleDuration measures one interaction model assembly pass.
	assembleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "repomind",
			Subsystem: "sequence",
			Name:      "assemble_duration_seconds",
			Help:      "Duration of interaction model assembly in seconds.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1},
		},
		[]string{"status"},
	)

	// assembleMessagesTotal counts messages produced across all passes.
	assembleMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "repomind",
			Subsystem: "sequence",
			Name:      "messages_total",
			Help:      "Total interaction messages assembled.",
		},
	)

	// assembleFaultsTotal counts aborted passes (malformed block state).
	assembleFaultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "repomind",
			Subsystem: "sequence",
			Name:      "faults_total",
			Help:      "Total assembly passes aborted by malformed block state.",
		},
	)
)

// startAssembleSpan starts an OTel span for one assembly pass.
func startAssembleSpan(ctx context.Context, unit string, events int) (context.Context, trace.Span) {
	tracer := otel.Tracer(sequenceTracerName)
	return tracer.Start(ctx, "sequence.assemble",
		trace.WithAttributes(
			attribute.String("unit", unit),
			attribute.Int("events", events),
		))
}

// setAssembleSpanResult records the outcome attributes on an assemble span.
func setAssembleSpanResult(span trace.Span, messages, blocks, tracks int) {
	span.SetAttributes(
		attribute.Int("messages", messages),
		attribute.Int("blocks", blocks),
		attribute.Int("tracks", tracks),
	)
}

// recordAssembleMetrics records Prometheus metrics for one assembly pass.
func recordAssembleMetrics(_ context.Context, duration time.Duration, messages int, faulted bool) {
	status := "success"
	if faulted {
		status = "fault"
		assembleFaultsTotal.Inc()
	}
	assembleDuration.WithLabelValues(status).Observe(duration.Seconds())
	if messages > 0 {
		assembleMessagesTotal.Add(float64(messages))
	}
}
