package hubble

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	"hubble-scraper/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("scrapers/hubble")

// Session is the long-lived page fetcher shared across all records in a
// run. It follows redirects transparently and reports the resolved final
// url, which is itself significant output for stage 2.
type Session struct {
	Http *resty.Client
}

type SessionOptions struct {
	// navigation timeout, default 60s
	Timeout   time.Duration
	UserAgent string
}

func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 60
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", opts.UserAgent)
	client.SetTimeout(opts.Timeout)

	telemetry.InstrumentResty(client, "scrapers/hubble/http")

	return &Session{Http: client}, nil
}

type Page struct {
	Doc *goquery.Document
	// the url the request actually landed on after redirects
	FinalUrl string
}

func (s *Session) Navigate(ctx context.Context, link string) (*Page, error) {
	ctx, span := tracer.Start(ctx, "Navigate", trace.WithAttributes(
		attribute.String("url", link),
	))
	defer span.End()

	res, err := s.Http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page")
		return nil, err
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("navigate %s: unexpected status %d", link, res.StatusCode())
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	finalUrl := link
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	span.SetAttributes(attribute.String("final_url", finalUrl))
	return &Page{Doc: doc, FinalUrl: finalUrl}, nil
}

// Close releases the underlying connections. must run on every exit path
// of a run.
func (s *Session) Close() {
	s.Http.GetClient().CloseIdleConnections()
}
