// Package restyutil adds tracing and debug logging to resty clients.
package restyutil

import (
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

// Instrument attaches span and slog middleware to the client. `tracer`
// can be nil, it will default to a library name of "resty".
func Instrument(client *resty.Client, tracer trace.Tracer) {
	if tracer == nil {
		tracer = otel.Tracer("resty")
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), req.Method)
		slog.DebugContext(ctx, "start request",
			"method", req.Method, "url", req.URL)
		req.SetContext(ctx)
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		ctx := res.Request.Context()
		span := trace.SpanFromContext(ctx)
		defer span.End()

		// request attributes are set here since res.Request.RawRequest
		// is nil in OnBeforeRequest
		span.SetName(fmt.Sprintf("http %s", res.Request.Method))
		span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
		span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)

		slog.DebugContext(ctx, "request succeeded",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"status", res.StatusCode())
		return nil
	})

	client.OnError(func(req *resty.Request, err error) {
		ctx := req.Context()
		span := trace.SpanFromContext(ctx)
		defer span.End()

		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		span.SetName(fmt.Sprintf("http %s", req.Method))
		if req.RawRequest != nil {
			span.SetAttributes(httpconv.ClientRequest(req.RawRequest)...)
		}

		slog.ErrorContext(ctx, "request failed",
			"method", req.Method, "url", req.URL, "err", err)
	})
}
