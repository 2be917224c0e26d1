// Package tracing wraps the OpenTelemetry SDK behind a small tracer used by
// the guardrail executor to produce one span per execution phase. When
// tracing is disabled the wrapper degrades to a noop tracer with negligible
// overhead.
package tracing
