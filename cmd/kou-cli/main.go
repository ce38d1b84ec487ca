package main

import (
	"log/slog"

	"koubs-backend/cmd/kou-cli/commands"
	"koubs-backend/lib/osutil"
	"koubs-backend/lib/telemetry"
)

func main() {
	ctx := osutil.SignalContext()
	telemetry.InitSlog(true)

	t, err := telemetry.SetupFromEnv(ctx, "kou-cli")
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without exporters", "err", err)
	} else {
		defer t.Shutdown(ctx)
	}

	commands.ExecuteContext(ctx)
}
