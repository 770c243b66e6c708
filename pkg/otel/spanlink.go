// pkg/otel/spanlink.go
// Helper utilities that let the DataChannel service bridge
// (internal/transport) attach an OpenTelemetry span to every bridged RPC
// call, tagging it with the gRPC method path and status code so traces line
// up with the request that produced them. Spans go to the tracer the caller
// passes in; when no OpenTelemetry SDK is configured, otel's global tracer
// is a no-op.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrMethodKey = "rpc.method"
	attrStatusKey = "rpc.grpc_status_code"
)

// StartRPCSpan starts a child span (or a root span if ctx carries none)
// named after the bridged method path.
func StartRPCSpan(ctx context.Context, tracer trace.Tracer, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, method, trace.WithAttributes(attribute.String(attrMethodKey, method)))
}

// EndRPCSpan records the gRPC status code on span and ends it. err, if
// non-nil, marks the span as errored.
func EndRPCSpan(span trace.Span, grpcStatus int, err error) {
	span.SetAttributes(attribute.Int(attrStatusKey, grpcStatus))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
