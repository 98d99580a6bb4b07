package commands

import (
	"context"
	"log/slog"
	"os"
	"time"

	"hubble-scraper/lib/configutil"
	"hubble-scraper/lib/restyutil"
	"hubble-scraper/lib/runlog"
	"hubble-scraper/lib/scrapers/hubble"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Config struct {
	Csv    string `json:"csv"`
	Out    string `json:"out"`
	Runlog string `json:"runlog"`

	NavigationTimeoutSec int `json:"navigation_timeout_sec"`
	MaxAttempts          int `json:"max_attempts"`
	BaseBackoffMs        int `json:"base_backoff_ms"`
	CrawlDelayMs         int `json:"crawl_delay_ms"`
	EnrichDelayMs        int `json:"enrich_delay_ms"`
}

var defaultConfig = Config{
	Csv:                  "birthdays.csv",
	Out:                  "output",
	Runlog:               "runlog.db",
	NavigationTimeoutSec: 60,
	MaxAttempts:          3,
	BaseBackoffMs:        500,
	CrawlDelayMs:         800,
	EnrichDelayMs:        500,
}

func loadConfig() (Config, error) {
	return configutil.Load("config.json5", defaultConfig)
}

func newSession(cfg Config, stage string) (*hubble.Session, error) {
	session, err := hubble.NewSession(hubble.SessionOptions{
		Timeout: time.Duration(cfg.NavigationTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if *verbose {
		restyutil.InstrumentDump(session.Http, restyutil.NewFilesystemOutput(".dev/resty/"+stage))
	}
	return session, nil
}

// a broken ledger degrades to warnings, it never blocks a run
func openLedger(ctx context.Context, cfg Config, stage string) *runlog.Store {
	ledger, err := runlog.Open(cfg.Runlog)
	if err != nil {
		slog.WarnContext(ctx, "failed to open run ledger", "path", cfg.Runlog, "err", err)
		return nil
	}

	last, err := ledger.LastRun(ctx, stage)
	if err == nil && last != nil {
		slog.InfoContext(ctx, "previous run",
			"stage", stage,
			"started", last.StartedAt.Format(time.RFC3339),
			"processed", last.Summary.Processed,
			"skipped", last.Summary.Skipped,
			"failed", last.Summary.Failed,
		)
	}
	return &ledger
}

func printSummary(stage string, sum runlog.Summary, elapsed time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Stage", "Processed", "Skipped", "Failed", "Elapsed"})
	t.AppendRow(table.Row{stage, sum.Processed, sum.Skipped, sum.Failed, elapsed.Round(time.Second)})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
