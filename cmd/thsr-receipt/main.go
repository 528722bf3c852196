package main

import (
	"context"
	"log/slog"
	"os"
	"thsr-receipts/cmd/thsr-receipt/commands"
	"thsr-receipts/lib/osutil"
	"thsr-receipts/lib/telemetry"
)

func main() {
	ctx, cancel := osutil.SignalContext(context.Background())

	telemetry.InitSlog(false)
	_, err := telemetry.SetupFromEnv(ctx, "thsr-receipt")
	if err != nil {
		slog.Warn("failed to setup telemetry", "err", err)
	}

	code := commands.ExecuteContext(ctx)

	err = telemetry.Shutdown(context.Background())
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
	cancel()
	os.Exit(code)
}
