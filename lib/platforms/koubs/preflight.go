package koubs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"

	"koubs-backend/lib/browser"
	"koubs-backend/lib/restyutil"
)

// Preflight checks the portal answers over plain HTTP before a browser
// is launched, so an offline portal fails fast instead of after a full
// Chrome startup.
func Preflight(ctx context.Context, timeout time.Duration) error {
	ctx, span := tracer.Start(ctx, "preflight")
	defer span.End()

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", browser.DefaultUserAgent)
	restyutil.Instrument(client, tracer)

	res, err := client.R().SetContext(ctx).Get(LoginURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "portal unreachable")
		return fmt.Errorf("portal unreachable: %w", err)
	}
	if res.StatusCode() >= 500 {
		err := fmt.Errorf("portal returned status %d", res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "portal error status")
		return err
	}
	return nil
}
