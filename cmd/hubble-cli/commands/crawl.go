package commands

import (
	"log/slog"
	"time"

	"hubble-scraper/lib/download"
	"hubble-scraper/lib/recordstore"
	"hubble-scraper/lib/telemetry"
	"hubble-scraper/lib/util/serviceutil"
	"hubble-scraper/services/crawler"

	"github.com/spf13/cobra"
)

var crawlCsv *string
var crawlOut *string

func init() {
	crawlCsv = crawlCmd.Flags().String("csv", "", "The input csv of birthday records, overrides the config.")
	crawlOut = crawlCmd.Flags().String("out", "", "The output directory, overrides the config.")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [--csv <path/to/input.csv>] [--out <dir>]",
	Short: "Scrapes every birthday page, its metadata and its image assets.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if *crawlCsv != "" {
			cfg.Csv = *crawlCsv
		}
		if *crawlOut != "" {
			cfg.Out = *crawlOut
		}

		records, err := crawler.ReadInput(cfg.Csv)
		if err != nil {
			serviceutil.Fatal("failed to read input csv", err)
		}
		slog.Info("read input records", "csv", cfg.Csv, "count", len(records))

		session, err := newSession(cfg, "crawl")
		if err != nil {
			serviceutil.Fatal("failed to initialize scrape session", err)
		}
		defer session.Close()

		ledger := openLedger(ctx, cfg, "crawl")
		if ledger != nil {
			defer ledger.Close()
		}

		telemetry.InstrumentPerfStats(ctx)

		c := &crawler.Crawler{
			Session: session,
			Store:   recordstore.NewStore(cfg.Out),
			Downloads: download.NewClient(download.Config{
				MaxAttempts: cfg.MaxAttempts,
				BaseBackoff: time.Duration(cfg.BaseBackoffMs) * time.Millisecond,
			}),
			Ledger: ledger,
			Delay:  time.Duration(cfg.CrawlDelayMs) * time.Millisecond,
		}

		t1 := time.Now()
		sum := c.Run(ctx, records)
		printSummary("crawl", sum, time.Since(t1))
	},
}
