package commands

import (
	"time"

	"hubble-scraper/lib/recordstore"
	"hubble-scraper/lib/telemetry"
	"hubble-scraper/lib/util/serviceutil"
	"hubble-scraper/services/enricher"

	"github.com/spf13/cobra"
)

var enrichOut *string

func init() {
	enrichOut = enrichCmd.Flags().String("out", "", "The directory of crawled records, overrides the config.")
	rootCmd.AddCommand(enrichCmd)
}

var enrichCmd = &cobra.Command{
	Use:   "enrich [--out <dir>]",
	Short: "Re-fetches every crawled record and writes its long-form content.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if *enrichOut != "" {
			cfg.Out = *enrichOut
		}

		session, err := newSession(cfg, "enrich")
		if err != nil {
			serviceutil.Fatal("failed to initialize scrape session", err)
		}
		defer session.Close()

		ledger := openLedger(ctx, cfg, "enrich")
		if ledger != nil {
			defer ledger.Close()
		}

		telemetry.InstrumentPerfStats(ctx)

		e := &enricher.Enricher{
			Session: session,
			Store:   recordstore.NewStore(cfg.Out),
			Ledger:  ledger,
			Delay:   time.Duration(cfg.EnrichDelayMs) * time.Millisecond,
		}

		t1 := time.Now()
		sum, err := e.Run(ctx)
		if err != nil {
			serviceutil.Fatal("failed to enrich records", err)
		}
		printSummary("enrich", sum, time.Since(t1))
	},
}
