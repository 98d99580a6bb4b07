package runlog

import (
	"context"
	"testing"
	"time"

	"hubble-scraper/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:runlog")
	defer cleanup()

	store, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	last, err := store.LastRun(ctx, "crawl")
	if err != nil {
		t.Fatal(err)
	}
	require.Nil(t, last, "empty ledger has no previous run")

	runId, err := store.Begin(ctx, "crawl")
	if err != nil {
		t.Fatal(err)
	}

	store.Note(ctx, runId, "01-01", OutcomeProcessed, "", time.Second)
	store.Note(ctx, runId, "01-02", OutcomeSkipped, "", 0)
	store.Note(ctx, runId, "01-03", OutcomeFailed, "navigation timeout", time.Minute)

	// unfinished runs are not reported
	last, err = store.LastRun(ctx, "crawl")
	if err != nil {
		t.Fatal(err)
	}
	require.Nil(t, last)

	err = store.Finish(ctx, runId, Summary{Processed: 1, Skipped: 1, Failed: 1})
	if err != nil {
		t.Fatal(err)
	}

	last, err = store.LastRun(ctx, "crawl")
	if err != nil {
		t.Fatal(err)
	}
	require.NotNil(t, last)
	require.Equal(t, Summary{Processed: 1, Skipped: 1, Failed: 1}, last.Summary)
	require.NotNil(t, last.FinishedAt)

	failures, err := store.Failures(ctx, runId)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, map[string]string{"01-03": "navigation timeout"}, failures)

	// other stages do not see this run
	other, err := store.LastRun(ctx, "enrich")
	if err != nil {
		t.Fatal(err)
	}
	require.Nil(t, other)
}
