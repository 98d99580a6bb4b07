package enricher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hubble-scraper/lib/recordstore"
	"hubble-scraper/lib/runlog"
	"hubble-scraper/lib/scrapers/hubble"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("services/enricher")

const DefaultDelay = 500 * time.Millisecond

// names assigned by the stage-1 asset classification
const fullImageName = "full.jpg"
const thumbnailName = "thumb_1000.jpg"

type Enricher struct {
	Session *hubble.Session
	Store   recordstore.Store
	// optional, nil disables the ledger
	Ledger *runlog.Store
	Delay  time.Duration
}

type recordResult struct {
	key     string
	skipped bool
	err     error
}

// Run enriches every existing record directory in sorted order. it only
// depends on stage 1's on-disk output, never on its in-memory state.
func (e *Enricher) Run(ctx context.Context) (runlog.Summary, error) {
	delay := e.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}

	keys, err := e.Store.Keys()
	if err != nil {
		return runlog.Summary{}, fmt.Errorf("list record directories: %w", err)
	}

	var runId int64
	if e.Ledger != nil {
		id, err := e.Ledger.Begin(ctx, "enrich")
		if err != nil {
			slog.WarnContext(ctx, "run ledger unavailable", "err", err)
			e.Ledger = nil
		} else {
			runId = id
		}
	}

	var sum runlog.Summary
	total := len(keys)

	for i, key := range keys {
		slog.InfoContext(ctx, "enriching record",
			"index", i+1,
			"total", total,
			"percent", fmt.Sprintf("%.1f%%", float64(i+1)/float64(total)*100),
			"key", key,
		)

		start := time.Now()
		res := e.processKey(ctx, key)
		elapsed := time.Since(start)

		outcome := runlog.OutcomeProcessed
		reason := ""
		switch {
		case res.err != nil:
			outcome = runlog.OutcomeFailed
			reason = res.err.Error()
			sum.Failed++
			slog.ErrorContext(ctx, "record failed", "key", key, "err", res.err)
		case res.skipped:
			outcome = runlog.OutcomeSkipped
			sum.Skipped++
			slog.InfoContext(ctx, "record already enriched, skipping", "key", key)
		default:
			sum.Processed++
			slog.InfoContext(ctx, "record enriched", "key", key, "elapsed", elapsed.Round(time.Millisecond))
		}
		if e.Ledger != nil {
			e.Ledger.Note(ctx, runId, key, outcome, reason, elapsed)
		}

		if !res.skipped && i < total-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "run cancelled", "err", ctx.Err())
			break
		}
	}

	if e.Ledger != nil {
		if err := e.Ledger.Finish(ctx, runId, sum); err != nil {
			slog.WarnContext(ctx, "failed to finish run ledger entry", "err", err)
		}
	}
	return sum, nil
}

func (e *Enricher) processKey(ctx context.Context, key string) recordResult {
	ctx, span := tracer.Start(ctx, "processKey", trace.WithAttributes(
		attribute.String("key", key),
	))
	defer span.End()

	if e.Store.EnrichedExists(key) {
		return recordResult{key: key, skipped: true}
	}

	// integrity failures are reported before any navigation is attempted
	meta, err := e.Store.ReadMetadata(key)
	if errors.Is(err, recordstore.ErrNotFound) {
		err := fmt.Errorf("missing metadata.json, crawl this record first")
		span.SetStatus(codes.Error, err.Error())
		return recordResult{key: key, err: err}
	}
	if err != nil {
		span.SetStatus(codes.Error, "failed to read metadata")
		return recordResult{key: key, err: fmt.Errorf("read metadata: %w", err)}
	}
	if meta.FinalUrl == "" {
		err := fmt.Errorf("metadata has no resolved final url")
		span.SetStatus(codes.Error, err.Error())
		return recordResult{key: key, err: err}
	}

	page, err := e.Session.Navigate(ctx, meta.FinalUrl)
	if err != nil {
		span.SetStatus(codes.Error, "navigation failed")
		return recordResult{key: key, err: fmt.Errorf("navigate: %w", err)}
	}

	narrative := hubble.ExtractNarrative(page.Doc)

	content := recordstore.EnrichedContent{
		Title:          title(narrative, meta),
		Caption:        meta.Caption,
		Description:    narrative.Description,
		Paragraphs:     narrative.Paragraphs,
		Tags:           narrative.Tags,
		ScienceRelease: narrative.ScienceRelease,
		ColorInfo:      narrative.ColorInfo,
		Credit:         meta.Credit,
		QuickFacts: recordstore.QuickFacts{
			ObjectName:        meta.ObjectName,
			ObjectDescription: meta.ObjectDescription,
			ReleaseDate:       meta.ReleaseDate,
			Constellation:     meta.Constellation,
			Distance:          meta.Distance,
			Instrument:        meta.Instrument,
		},
		Technical: recordstore.Technical{
			Filters:       meta.Filters,
			ExposureDates: meta.ExposureDates,
			ColorInfo:     narrative.ColorInfo,
		},
		Images: recordstore.Images{
			Full:      fullImageName,
			Thumbnail: thumbnailName,
			Web:       narrative.MainImage,
		},
		Urls: recordstore.Urls{
			Original: meta.Url,
			Final:    meta.FinalUrl,
		},
		EnrichedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if err := e.Store.WriteEnriched(key, content); err != nil {
		span.SetStatus(codes.Error, "failed to persist enriched content")
		return recordResult{key: key, err: fmt.Errorf("persist enriched content: %w", err)}
	}

	return recordResult{key: key}
}

// freshly scraped title, then the stored page title, then the input name
func title(n hubble.Narrative, meta recordstore.Metadata) string {
	if n.Title != nil {
		return *n.Title
	}
	if meta.PageTitle != nil {
		return *meta.PageTitle
	}
	return meta.Name
}
