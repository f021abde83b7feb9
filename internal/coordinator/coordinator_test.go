package coordinator

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/crawlsvc/internal/kvstore"
	"github.com/rohmanhakim/crawlsvc/internal/model"
	"github.com/rohmanhakim/crawlsvc/internal/queue"
)

func TestSubmitRejectsInvalidURL(t *testing.T) {
	c := New(kvstore.NewMemStore(), queue.NewPriorityQueue(), queue.NewPriorityPolicy(50), nil, nil, nil, false)
	_, _, err := c.Submit(t.Context(), Request{URL: "not-a-url"})
	assert.Error(t, err)
}

func TestSubmitRejectsNonHTTPScheme(t *testing.T) {
	c := New(kvstore.NewMemStore(), queue.NewPriorityQueue(), queue.NewPriorityPolicy(50), nil, nil, nil, false)
	_, _, err := c.Submit(t.Context(), Request{URL: "ftp://example.com/"})
	assert.Error(t, err)
}

func TestSubmitPersistsCrawlAndSeedsQueueWithDefaultOptions(t *testing.T) {
	store := kvstore.NewMemStore()
	q := queue.NewPriorityQueue()
	defer q.Close()
	c := New(store, q, queue.NewPriorityPolicy(50), nil, nil, nil, false)

	id, resourceURL, err := c.Submit(t.Context(), Request{URL: "https://example.com/"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Contains(t, resourceURL, id)

	stored, found, err := store.GetCrawl(t.Context(), id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.StatusScraping, stored.Status)

	assert.Equal(t, 1, q.Len())
	job, ok := q.Dequeue(t.Context())
	require.True(t, ok)
	assert.Equal(t, model.ModeSingleURL, job.Mode)
	assert.False(t, job.Sitemapped)
	assert.Equal(t, id, job.CrawlID)
}

func TestSubmitUsesHTTPSchemeForResourceURLInLocalMode(t *testing.T) {
	store := kvstore.NewMemStore()
	q := queue.NewPriorityQueue()
	defer q.Close()
	c := New(store, q, queue.NewPriorityPolicy(50), nil, nil, nil, true)

	_, resourceURL, err := c.Submit(t.Context(), Request{URL: "https://example.com/"})
	require.NoError(t, err)
	assert.Contains(t, resourceURL, "http://")
}

func TestSubmitWithSitemapFansOutIntoSingleURLJobs(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<urlset>
			<url><loc>https://example.com/a</loc><lastmod>2024-01-01</lastmod></url>
			<url><loc>https://example.com/b</loc></url>
		</urlset>`))
	}))
	defer srv.Close()

	host := mustHost(t, srv.URL)
	store := kvstore.NewMemStore()
	q := queue.NewPriorityQueue()
	defer q.Close()
	c := New(store, q, queue.NewPriorityPolicy(50), nil, srv.Client(), nil, false)

	opts, err := model.NewCrawlerOptions().WithIgnoreSitemap(false).Build()
	require.NoError(t, err)

	origin := &url.URL{Scheme: "https", Host: host, Path: "/"}
	_, _, err = c.Submit(t.Context(), Request{URL: origin.String(), Options: &opts})
	require.NoError(t, err)

	assert.Equal(t, 2, q.Len())
	job, ok := q.Dequeue(t.Context())
	require.True(t, ok)
	assert.Equal(t, model.ModeSingleURL, job.Mode)
	assert.True(t, job.Sitemapped)
	assert.NotEmpty(t, job.SitemapMeta)
}

func TestSubmitFallsBackToSeedWhenSitemapEmpty(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	host := mustHost(t, srv.URL)
	store := kvstore.NewMemStore()
	q := queue.NewPriorityQueue()
	defer q.Close()
	c := New(store, q, queue.NewPriorityPolicy(50), nil, srv.Client(), nil, false)

	opts, err := model.NewCrawlerOptions().WithIgnoreSitemap(false).Build()
	require.NoError(t, err)

	origin := &url.URL{Scheme: "https", Host: host, Path: "/"}
	_, _, err = c.Submit(t.Context(), Request{URL: origin.String(), Options: &opts})
	require.NoError(t, err)

	assert.Equal(t, 1, q.Len())
	job, ok := q.Dequeue(t.Context())
	require.True(t, ok)
	assert.Equal(t, model.ModeSingleURL, job.Mode)
	assert.False(t, job.Sitemapped)
}

func mustHost(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Host
}
