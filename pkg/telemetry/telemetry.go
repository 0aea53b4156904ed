// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry wraps OpenTelemetry tracing for the coordinator's
// workflow runs and steps. The process-wide trace.TracerProvider is
// whatever has been registered with otel.SetTracerProvider; a caller that
// never configures an SDK exporter gets otel's default no-op provider, so
// every StartXxx call here is safe to leave in place unconditionally.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("orchestrator")

// Span wraps an OpenTelemetry span with the attribute/event helpers the
// coordinator and workflow engine actually need, so call sites never
// import go.opentelemetry.io/otel/trace directly.
type Span struct {
	span trace.Span
}

// StartWorkflowRun opens a root span for one coordinator task iteration:
// branch preparation, task-flow.yaml, and the review loop all run inside
// it. runID is the workflow.Context's WorkflowID ("wf-<task id>").
func StartWorkflowRun(ctx context.Context, runID, taskTitle string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("coordinator.run: %s", runID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("task.title", taskTitle),
		),
	)
	return ctx, &Span{span: span}
}

// StartStep opens a span for a single workflow step execution, nested
// under whatever span ctx already carries (a workflow run, or a parent
// step for a sub-workflow invocation).
func StartStep(ctx context.Context, stepName, stepType string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("step: %s", stepName),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("step.name", stepName),
			attribute.String("step.type", stepType),
		),
	)
	return ctx, &Span{span: span}
}

// SetAttributes attaches key-value pairs to the span. Nil-safe so callers
// don't need to guard every call with a tracer-enabled check.
func (s *Span) SetAttributes(attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			kvs = append(kvs, attribute.String(k, val))
		case int:
			kvs = append(kvs, attribute.Int(k, val))
		case int64:
			kvs = append(kvs, attribute.Int64(k, val))
		case float64:
			kvs = append(kvs, attribute.Float64(k, val))
		case bool:
			kvs = append(kvs, attribute.Bool(k, val))
		default:
			kvs = append(kvs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	s.span.SetAttributes(kvs...)
}

// RecordError records err on the span and marks its status as an error.
// A nil err is a no-op, so defer-site callers don't need an if-guard.
func (s *Span) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span as having completed successfully.
func (s *Span) SetOK() {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

// End completes the span.
func (s *Span) End() {
	if s == nil || s.span == nil {
		return
	}
	s.span.End()
}

// TraceID returns the span's trace ID, or "" if tracing is disabled. When a
// run aborts, the coordinator sets it as the run span's "trace_id"
// attribute.
func (s *Span) TraceID() string {
	if s == nil || s.span == nil {
		return ""
	}
	return s.span.SpanContext().TraceID().String()
}
