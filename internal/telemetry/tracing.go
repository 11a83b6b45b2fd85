package telemetry

import (
	"github.com/opentracing/opentracing-go"
)

// Tracer is the process-wide tracer used to span each processed
// command. It defaults to opentracing's no-op implementation, so
// tracing costs nothing unless a real tracer is installed with
// opentracing.SetGlobalTracer before the server starts.
func Tracer() opentracing.Tracer {
	return opentracing.GlobalTracer()
}

// StartCommandSpan opens a span for one command handled by a Session
// Actor, tagged with the fields §4.G's structured event records use.
func StartCommandSpan(eventType, sessionID string) opentracing.Span {
	span := Tracer().StartSpan(eventType)
	span.SetTag("session_id", sessionID)
	span.SetTag("event_type", eventType)
	return span
}
