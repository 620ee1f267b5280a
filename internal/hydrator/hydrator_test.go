package hydrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sokoni/backend/internal/scout"
	"sokoni/backend/internal/synclog"
)

func productPage(name, description, image, price string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head>
<meta property="og:title" content=%q>
<meta property="og:description" content=%q>
<meta property="og:image" content=%q>
<meta property="product:price:amount" content=%q>
</head><body><h1>%s</h1></body></html>`, name, description, image, price, name)
}

func fastConfig() Config {
	return Config{
		Concurrency: 20,
		Timeout:     2 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		RatePerSec:  1000,
	}
}

func candidatesFor(srvURL string, ids ...string) []scout.Candidate {
	out := make([]scout.Candidate, len(ids))
	for i, id := range ids {
		out[i] = scout.Candidate{ItemID: id, CatalogRef: srvURL + "/sellers/acme/catalog"}
	}
	return out
}

func TestHydrate_ResolvesItemMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, productPage("Beaded Sandals", "Hand made leather sandals", "https://img.example.com/1.jpg", "2,499.00"))
	}))
	defer srv.Close()

	log := synclog.NewMemoryLog()
	h := New(fastConfig(), srv.Client(), log)

	results := h.Hydrate(context.Background(), candidatesFor(srv.URL, "1111111111111111"))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	item := results[0].Item
	require.NotNil(t, item)
	assert.Equal(t, "1111111111111111", item.ItemID)
	assert.Equal(t, "Beaded Sandals", item.Name)
	assert.Equal(t, "Hand made leather sandals", item.Description)
	assert.Equal(t, "https://img.example.com/1.jpg", item.ImageRef)
	assert.Equal(t, 2499.00, item.Price)
	assert.False(t, item.ResolvedAt.IsZero())

	events, err := log.List(context.Background(), synclog.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, synclog.KindHydrateStart, events[0].Kind)
	assert.Equal(t, synclog.KindHydrateSuccess, events[1].Kind)
}

func TestHydrate_RetriesRateLimitThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, productPage("Carved Stool", "", "https://img.example.com/2.jpg", "900"))
	}))
	defer srv.Close()

	log := synclog.NewMemoryLog()
	h := New(fastConfig(), srv.Client(), log)

	results := h.Hydrate(context.Background(), candidatesFor(srv.URL, "2222222222222222"))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Item)

	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()

	rateLimited, err := log.List(context.Background(), synclog.Filter{Kind: synclog.KindHydrateRateLimited})
	require.NoError(t, err)
	require.Len(t, rateLimited, 2)
	for i, e := range rateLimited {
		assert.Equal(t, http.StatusTooManyRequests, e.StatusCode)
		assert.Equal(t, "2222222222222222", e.ItemID)
		assert.JSONEq(t, fmt.Sprintf(`{"attempt":%d}`, i+1), string(e.Details))
	}

	success, err := log.List(context.Background(), synclog.Filter{Kind: synclog.KindHydrateSuccess})
	require.NoError(t, err)
	assert.Len(t, success, 1)
}

func TestHydrate_NotFoundFailsImmediately(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	log := synclog.NewMemoryLog()
	h := New(fastConfig(), srv.Client(), log)

	results := h.Hydrate(context.Background(), candidatesFor(srv.URL, "3333333333333333"))
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrNotFound)
	assert.Nil(t, results[0].Item)

	mu.Lock()
	assert.Equal(t, 1, attempts, "permanent failures are not retried")
	mu.Unlock()

	notFound, err := log.List(context.Background(), synclog.Filter{Kind: synclog.KindHydrateNotFound})
	require.NoError(t, err)
	assert.Len(t, notFound, 1)
}

func TestHydrate_OneFailureDoesNotPoisonSiblings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/p/0000000000000003" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, productPage("Kiondo Basket", "Woven sisal basket", "https://img.example.com/b.jpg", "1500"))
	}))
	defer srv.Close()

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("%016d", i+1)
	}
	h := New(fastConfig(), srv.Client(), synclog.NewMemoryLog())

	results := h.Hydrate(context.Background(), candidatesFor(srv.URL, ids...))
	require.Len(t, results, 10)

	for i, r := range results {
		assert.Equal(t, ids[i], r.Candidate.ItemID, "results stay index-aligned")
		if ids[i] == "0000000000000003" {
			assert.ErrorIs(t, r.Err, ErrNotFound)
			continue
		}
		require.NoError(t, r.Err, "item %s", ids[i])
		require.NotNil(t, r.Item)
		assert.Equal(t, ids[i], r.Item.ItemID)
	}
}

func TestHydrate_MalformedPageIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No title, no image.
		fmt.Fprint(w, `<html><body><p>under construction</p></body></html>`)
	}))
	defer srv.Close()

	log := synclog.NewMemoryLog()
	h := New(fastConfig(), srv.Client(), log)

	results := h.Hydrate(context.Background(), candidatesFor(srv.URL, "4444444444444444"))
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrMalformed)

	// Malformed pages are not recorded as not-found.
	notFound, err := log.List(context.Background(), synclog.Filter{Kind: synclog.KindHydrateNotFound})
	require.NoError(t, err)
	assert.Empty(t, notFound)
}

func TestHydrate_RotatesObservedIdentities(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.Header.Get("User-Agent")] = struct{}{}
		mu.Unlock()
		fmt.Fprint(w, productPage("Shuka Blanket", "", "https://img.example.com/s.jpg", "800"))
	}))
	defer srv.Close()

	ids := make([]string, 40)
	for i := range ids {
		ids[i] = fmt.Sprintf("%016d", i+1)
	}
	h := New(fastConfig(), srv.Client(), nil)

	results := h.Hydrate(context.Background(), candidatesFor(srv.URL, ids...))
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, len(seen), 1, "identity should rotate across requests")
	for ua := range seen {
		assert.Contains(t, identities, ua)
	}
}

func TestHydrate_ContextCancellationStopsWork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, productPage("Slow Item", "", "https://img.example.com/x.jpg", "10"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := New(fastConfig(), srv.Client(), nil)
	results := h.Hydrate(ctx, candidatesFor(srv.URL, "5555555555555555"))
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestHydrate_InFlightFetchDrainsAfterCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		fmt.Fprint(w, productPage("Slow Item", "", "https://img.example.com/x.jpg", "10"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
		close(release)
	}()

	h := New(fastConfig(), srv.Client(), nil)
	results := h.Hydrate(ctx, candidatesFor(srv.URL, "6666666666666666"))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err, "a fetch already on the wire runs to completion")
	assert.Equal(t, "Slow Item", results[0].Item.Name)
}

func TestParseItem_PriceFallsBackToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, productPage("Free Sample", "", "https://img.example.com/f.jpg", "not-a-number"))
	}))
	defer srv.Close()

	h := New(fastConfig(), srv.Client(), nil)
	results := h.Hydrate(context.Background(), candidatesFor(srv.URL, "6666666666666666"))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 0.0, results[0].Item.Price)
}
