package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"hubble-scraper/lib/recordstore"
	"hubble-scraper/lib/runlog"
	"hubble-scraper/lib/scrapers/hubble"
	"hubble-scraper/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const narrativePage = `<html>
<head>
<title>Hubble Spots a Cluster</title>
</head>
<body>
<article>
<h1>Hubble Spots a Cluster</h1>
<img src="https://example.org/hubble-cluster-web.jpg">
<p>3 min read</p>
<p>Westerlund 2 is a giant cluster of about 3000 stars located some 20000 light-years away in the constellation Carina.</p>
<p>The assigned colors are blue for oxygen and red for hydrogen emission lines.</p>
<a href="/universe/galaxies">Galaxies</a>
<a href="/category/star-clusters">Star Clusters</a>
</article>
</body>
</html>`

func newTestEnricher(t *testing.T) (*Enricher, string, *atomic.Int64) {
	cleanup := telemetry.SetupForTesting(t, "test:services/enricher")
	t.Cleanup(cleanup)

	var requests atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/gallery/cluster/resolved", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, narrativePage)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	session, err := hubble.NewSession(hubble.SessionOptions{Timeout: time.Second * 5})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(session.Close)

	e := &Enricher{
		Session: session,
		Store:   recordstore.NewStore(t.TempDir()),
		Delay:   time.Millisecond,
	}
	return e, server.URL, &requests
}

func seedMetadata(t *testing.T, e *Enricher, key, finalUrl string) {
	err := e.Store.WriteMetadata(key, recordstore.Metadata{
		Date:     "March 5 2021",
		Url:      "https://example.org/gallery/cluster",
		Name:     "Westerlund 2",
		Caption:  "A cluster for March 5.",
		FinalUrl: finalUrl,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEnricherRun(t *testing.T) {
	e, serverUrl, requests := newTestEnricher(t)
	finalUrl := serverUrl + "/gallery/cluster/resolved"
	seedMetadata(t, e, "03-05", finalUrl)

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 1, sum.Processed)
	require.Equal(t, 0, sum.Failed)

	raw, err := os.ReadFile(filepath.Join(e.Store.Dir("03-05"), "video-content.json"))
	if err != nil {
		t.Fatal(err)
	}
	var content recordstore.EnrichedContent
	err = json.Unmarshal(raw, &content)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, "Hubble Spots a Cluster", content.Title)
	require.Equal(t, "A cluster for March 5.", content.Caption)
	require.Len(t, content.Paragraphs, 2)
	require.NotNil(t, content.Description)
	require.Equal(t, []string{"Galaxies", "Star Clusters"}, content.Tags)
	require.NotNil(t, content.ColorInfo)
	require.Equal(t, "blue for oxygen and red for hydrogen emission lines.", *content.ColorInfo)
	require.Equal(t, "full.jpg", content.Images.Full)
	require.Equal(t, "thumb_1000.jpg", content.Images.Thumbnail)
	require.NotNil(t, content.Images.Web)
	require.Equal(t, "https://example.org/hubble-cluster-web.jpg", *content.Images.Web)
	require.Equal(t, "https://example.org/gallery/cluster", content.Urls.Original)
	require.Equal(t, finalUrl, content.Urls.Final)
	require.NotEmpty(t, content.EnrichedAt)

	// a second run skips without touching the network
	before := requests.Load()
	sum, err = e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 0, sum.Processed)
	require.Equal(t, 1, sum.Skipped)
	require.Equal(t, before, requests.Load())
}

func TestEnricherFailsFastOnMissingMetadata(t *testing.T) {
	e, _, requests := newTestEnricher(t)

	// a directory without metadata.json is a stage-1 integrity failure
	err := os.MkdirAll(e.Store.Dir("01-01"), 0755)
	if err != nil {
		t.Fatal(err)
	}

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, int64(0), requests.Load())
}

func TestEnricherFailsFastOnMissingFinalUrl(t *testing.T) {
	e, _, requests := newTestEnricher(t)
	seedMetadata(t, e, "01-01", "")

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, int64(0), requests.Load())
}

func TestEnricherEmptyStore(t *testing.T) {
	e, _, _ := newTestEnricher(t)

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, runlog.Summary{}, sum)
}
