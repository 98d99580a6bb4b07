package main

import (
	"context"

	"hubble-scraper/cmd/hubble-cli/commands"
	"hubble-scraper/lib/telemetry"
	"hubble-scraper/lib/util/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext()

	t, err := telemetry.SetupFromEnv(ctx, "hubble-cli")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())

	commands.ExecuteContext(ctx)
}
