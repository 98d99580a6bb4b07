package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hubble-scraper/lib/download"
	"hubble-scraper/lib/recordstore"
	"hubble-scraper/lib/scrapers/hubble"
	"hubble-scraper/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const birthdayPage = `<html>
<head>
<title>Hubble Spots a Cluster</title>
<meta name="description" content="A young star cluster blazes in Carina.">
</head>
<body>
<article>
<ul>
<li><span>Object Name</span><span>Westerlund 2</span></li>
<li><span>Constellation</span><span>Carina</span></li>
</ul>
<h3>Downloads</h3>
<ul>
<li><a href="/assets/full.jpg">Full Res, 3000 X 2400 (17.3 MB)</a></li>
<li><a href="/assets/poster.pdf">PDF (1.2 MB)</a></li>
</ul>
</article>
</body>
</html>`

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/gallery/cluster", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/gallery/cluster/resolved", http.StatusFound)
	})
	mux.HandleFunc("/gallery/cluster/resolved", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, birthdayPage)
	})
	mux.HandleFunc("/assets/full.jpg", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "jpeg bytes")
	})
	mux.HandleFunc("/assets/poster.pdf", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "pdf bytes")
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestCrawler(t *testing.T) *Crawler {
	cleanup := telemetry.SetupForTesting(t, "test:services/crawler")
	t.Cleanup(cleanup)

	session, err := hubble.NewSession(hubble.SessionOptions{Timeout: time.Second * 5})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(session.Close)

	return &Crawler{
		Session:   session,
		Store:     recordstore.NewStore(t.TempDir()),
		Downloads: download.NewClient(download.Config{MaxAttempts: 1, BaseBackoff: time.Millisecond}),
		Delay:     time.Millisecond,
	}
}

func TestCrawlerRun(t *testing.T) {
	server := newTestServer(t)
	c := newTestCrawler(t)

	records := []InputRecord{{
		Date:    "March 5 2021",
		Url:     server.URL + "/gallery/cluster",
		Name:    "Westerlund 2",
		Caption: "A cluster for March 5.",
		Year:    "2021",
		Image:   "cluster.jpg",
	}}

	sum := c.Run(context.Background(), records)
	require.Equal(t, 1, sum.Processed)
	require.Equal(t, 0, sum.Skipped)
	require.Equal(t, 0, sum.Failed)

	dir := c.Store.Dir("03-05")
	for _, name := range []string{"metadata.json", "full.jpg", "image.pdf"} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, "expected %s to exist", name)
	}

	meta, err := c.Store.ReadMetadata("03-05")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, server.URL+"/gallery/cluster/resolved", meta.FinalUrl)
	require.Len(t, meta.Downloads, 2)
	require.NotNil(t, meta.ObjectName)
	require.Equal(t, "Westerlund 2", *meta.ObjectName)
	require.NotNil(t, meta.Constellation)
	require.Equal(t, "Carina", *meta.Constellation)
	require.NotEmpty(t, meta.ScrapedAt)

	// a second run must not touch the network output again
	sum = c.Run(context.Background(), records)
	require.Equal(t, 0, sum.Processed)
	require.Equal(t, 1, sum.Skipped)
	require.Equal(t, 0, sum.Failed)
}

func TestCrawlerReprocessesPartialRecords(t *testing.T) {
	server := newTestServer(t)
	c := newTestCrawler(t)

	// metadata without a single asset is an interrupted run, not a done
	// record
	err := c.Store.WriteMetadata("03-05", recordstore.Metadata{Date: "March 5 2021"})
	if err != nil {
		t.Fatal(err)
	}

	sum := c.Run(context.Background(), []InputRecord{{
		Date: "March 5 2021",
		Url:  server.URL + "/gallery/cluster",
	}})
	require.Equal(t, 1, sum.Processed)
	require.Equal(t, 0, sum.Skipped)

	_, err = os.Stat(filepath.Join(c.Store.Dir("03-05"), "full.jpg"))
	require.NoError(t, err)
}

func TestCrawlerDateKeyCollision(t *testing.T) {
	server := newTestServer(t)
	c := newTestCrawler(t)

	sum := c.Run(context.Background(), []InputRecord{
		{Date: "March 5 2021", Url: server.URL + "/gallery/cluster"},
		{Date: "March 5, 2019", Url: server.URL + "/gallery/cluster"},
	})
	require.Equal(t, 1, sum.Processed)
	require.Equal(t, 1, sum.Failed)
}

func TestCrawlerBadDateDoesNotAbortBatch(t *testing.T) {
	server := newTestServer(t)
	c := newTestCrawler(t)

	sum := c.Run(context.Background(), []InputRecord{
		{Date: "Smarch 5 2021", Url: server.URL + "/gallery/cluster"},
		{Date: "March 5 2021", Url: server.URL + "/gallery/cluster"},
	})
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 1, sum.Processed)
}

func TestCrawlerFollowsAssetLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gallery/nebula", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<article><p>No download list here.</p>
<a href="/contents/media/asset/1234">View full assets</a></article>
</body></html>`)
	})
	mux.HandleFunc("/contents/media/asset/1234", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<h2>Downloads</h2>
<ul><li><a href="/assets/nebula.jpg">Full Res, 2100 x 1500 (9.1 MB)</a></li></ul>
</body></html>`)
	})
	mux.HandleFunc("/assets/nebula.jpg", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "jpeg bytes")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := newTestCrawler(t)
	sum := c.Run(context.Background(), []InputRecord{
		{Date: "July 4 2022", Url: server.URL + "/gallery/nebula"},
	})
	require.Equal(t, 1, sum.Processed)

	meta, err := c.Store.ReadMetadata("07-04")
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, meta.Downloads, 1)

	_, err = os.Stat(filepath.Join(c.Store.Dir("07-04"), "full.jpg"))
	require.NoError(t, err)
}

func TestCrawlerWritesMetadataWhenDownloadsFail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gallery/cluster/resolved", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, birthdayPage)
	})
	mux.HandleFunc("/assets/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := newTestCrawler(t)
	sum := c.Run(context.Background(), []InputRecord{
		{Date: "March 5 2021", Url: server.URL + "/gallery/cluster/resolved"},
	})
	require.Equal(t, 1, sum.Processed)

	// metadata lands so a later run can retry just the assets
	_, err := c.Store.ReadMetadata("03-05")
	require.NoError(t, err)
	require.False(t, c.Store.Done("03-05"))
}
