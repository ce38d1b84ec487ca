package koubs

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("koubs/platform")
