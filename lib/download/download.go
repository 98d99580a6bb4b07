package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/download")

type Config struct {
	// attempts before giving up, default 3
	MaxAttempts int `json:"max_attempts"`
	// wait between attempts is attempt number times this, default 500ms
	BaseBackoff time.Duration `json:"base_backoff"`
}

var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseBackoff: 500 * time.Millisecond,
}

type Client struct {
	http *resty.Client
	cfg  Config
}

func NewClient(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultConfig.BaseBackoff
	}
	http := resty.New()
	http.SetDoNotParseResponse(true)
	return &Client{http: http, cfg: cfg}
}

type Result struct {
	Bytes   int64
	Elapsed time.Duration
}

// Fetch downloads url into dest, retrying with linear backoff. on success
// exactly one file exists at dest; on failure nothing is left behind, the
// body streams into a temp file in the same directory which is only renamed
// into place once fully written.
func (c *Client) Fetch(ctx context.Context, url, dest string) (Result, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		n, err := c.fetchOnce(ctx, url, dest)
		if err == nil {
			res := Result{Bytes: n, Elapsed: time.Since(start)}
			slog.InfoContext(ctx, "downloaded asset",
				"url", url,
				"dest", filepath.Base(dest),
				"bytes", res.Bytes,
				"elapsed", res.Elapsed.Round(time.Millisecond),
			)
			return res, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "download attempt failed",
			"url", url, "attempt", attempt, "err", err)

		if attempt == c.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * c.cfg.BaseBackoff):
		case <-ctx.Done():
			span.SetStatus(codes.Error, "context cancelled")
			return Result{}, ctx.Err()
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all attempts exhausted")
	return Result{}, fmt.Errorf("download %s: %w", url, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url, dest string) (int64, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return 0, err
	}
	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		return 0, fmt.Errorf("unexpected status %d", res.StatusCode())
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}
