package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"hubble-scraper/lib/download"
	"hubble-scraper/lib/recordstore"
	"hubble-scraper/lib/runlog"
	"hubble-scraper/lib/scrapers/hubble"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("services/crawler")

// wait between records, a politeness choice toward the remote source
const DefaultDelay = 800 * time.Millisecond

type Crawler struct {
	Session   *hubble.Session
	Store     recordstore.Store
	Downloads *download.Client
	// optional, nil disables the ledger
	Ledger *runlog.Store
	Delay  time.Duration
}

type recordResult struct {
	key     string
	skipped bool
	err     error
}

// Run walks the input records in order, one at a time. every per-record
// error is contained at the record boundary and folded into the summary,
// a single bad record never aborts the batch.
func (c *Crawler) Run(ctx context.Context, records []InputRecord) runlog.Summary {
	delay := c.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}

	var runId int64
	if c.Ledger != nil {
		id, err := c.Ledger.Begin(ctx, "crawl")
		if err != nil {
			slog.WarnContext(ctx, "run ledger unavailable", "err", err)
			c.Ledger = nil
		} else {
			runId = id
		}
	}

	var sum runlog.Summary
	seen := map[string]string{}
	total := len(records)

	for i, rec := range records {
		slog.InfoContext(ctx, "processing record",
			"index", i+1,
			"total", total,
			"percent", fmt.Sprintf("%.1f%%", float64(i+1)/float64(total)*100),
			"date", rec.Date,
		)

		start := time.Now()
		res := c.processRecord(ctx, rec, seen)
		elapsed := time.Since(start)

		outcome := runlog.OutcomeProcessed
		reason := ""
		switch {
		case res.err != nil:
			outcome = runlog.OutcomeFailed
			reason = res.err.Error()
			sum.Failed++
			slog.ErrorContext(ctx, "record failed", "key", res.key, "err", res.err)
		case res.skipped:
			outcome = runlog.OutcomeSkipped
			sum.Skipped++
			slog.InfoContext(ctx, "record already complete, skipping", "key", res.key)
		default:
			sum.Processed++
			slog.InfoContext(ctx, "record done", "key", res.key, "elapsed", elapsed.Round(time.Millisecond))
		}
		if c.Ledger != nil {
			c.Ledger.Note(ctx, runId, res.key, outcome, reason, elapsed)
		}

		// skipped records apply no politeness delay
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

	if c.Ledger != nil {
		if err := c.Ledger.Finish(ctx, runId, sum); err != nil {
			slog.WarnContext(ctx, "failed to finish run ledger entry", "err", err)
		}
	}
	return sum
}

func (c *Crawler) processRecord(ctx context.Context, rec InputRecord, seen map[string]string) recordResult {
	ctx, span := tracer.Start(ctx, "processRecord", trace.WithAttributes(
		attribute.String("date", rec.Date),
	))
	defer span.End()

	key, err := DateKey(rec.Date)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return recordResult{key: rec.Date, err: err}
	}
	span.SetAttributes(attribute.String("key", key))

	if prev, collision := seen[key]; collision {
		err := fmt.Errorf("date key collision: %q and %q both map to %s", prev, rec.Date, key)
		span.SetStatus(codes.Error, err.Error())
		return recordResult{key: key, err: err}
	}
	seen[key] = rec.Date

	if c.Store.Done(key) {
		return recordResult{key: key, skipped: true}
	}

	page, err := c.Session.Navigate(ctx, rec.Url)
	if err != nil {
		span.SetStatus(codes.Error, "navigation failed")
		return recordResult{key: key, err: fmt.Errorf("navigate: %w", err)}
	}

	meta := hubble.ExtractMetadata(page.Doc)

	// some page templates keep the download list on a separate asset page
	if len(meta.Downloads) == 0 {
		if link := hubble.AssetLink(page.Doc); link != nil {
			assetUrl := resolveUrl(page.FinalUrl, *link)
			slog.DebugContext(ctx, "no downloads on page, following asset link", "key", key, "url", assetUrl)
			assetPage, err := c.Session.Navigate(ctx, assetUrl)
			if err != nil {
				slog.WarnContext(ctx, "asset link navigation failed", "key", key, "err", err)
			} else {
				meta.Downloads = hubble.ExtractMetadata(assetPage.Doc).Downloads
			}
		}
	}

	if err := os.MkdirAll(c.Store.Dir(key), 0755); err != nil {
		span.SetStatus(codes.Error, "failed to create output directory")
		return recordResult{key: key, err: err}
	}

	downloaded := 0
	for i, d := range meta.Downloads {
		dest := filepath.Join(c.Store.Dir(key), assetFilename(d, i))
		_, err := c.Downloads.Fetch(ctx, resolveUrl(page.FinalUrl, d.Url), dest)
		if err != nil {
			slog.WarnContext(ctx, "asset download failed", "key", key, "url", d.Url, "err", err)
			continue
		}
		downloaded++
	}
	slog.InfoContext(ctx, "assets downloaded", "key", key, "ok", downloaded, "found", len(meta.Downloads))

	// persisted even when downloads failed, so a resume pass only has to
	// retry the missing assets
	m := recordstore.Metadata{
		Date:            rec.Date,
		Url:             rec.Url,
		Name:            rec.Name,
		Caption:         rec.Caption,
		Year:            rec.Year,
		Image:           rec.Image,
		FinalUrl:        page.FinalUrl,
		PageTitle:       meta.PageTitle,
		PageDescription: meta.PageDescription,
		Details:         meta.Details,
		Downloads:       meta.Downloads,
		ScrapedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.Store.WriteMetadata(key, m); err != nil {
		span.SetStatus(codes.Error, "failed to persist metadata")
		return recordResult{key: key, err: fmt.Errorf("persist metadata: %w", err)}
	}

	return recordResult{key: key}
}

func resolveUrl(base, ref string) string {
	baseUrl, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refUrl, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseUrl.ResolveReference(refUrl).String()
}
