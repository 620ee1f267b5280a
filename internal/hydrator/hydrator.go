package hydrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"sokoni/backend/internal/scout"
	"sokoni/backend/internal/synclog"
)

var (
	// ErrNotFound means the item is gone upstream. Never retried.
	ErrNotFound = errors.New("item not found")

	// ErrMalformed means the item page is missing required metadata.
	// A partially parsed item is never emitted.
	ErrMalformed = errors.New("malformed item metadata")
)

// transientError marks a response worth retrying (rate limit, server error,
// network timeout).
type transientError struct {
	statusCode int
	cause      error
}

func (e *transientError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("transient fetch failure: %v", e.cause)
	}
	return fmt.Sprintf("transient fetch failure: status %d", e.statusCode)
}

func (e *transientError) Unwrap() error { return e.cause }

// A static client identity gets flagged by upstream quickly; each attempt
// picks one of these pseudo-randomly.
var identities = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
}

// Item is a fully resolved candidate. ImageRef may point to a short-lived
// external resource; nothing may assume it outlives the current run.
type Item struct {
	ItemID      string
	CatalogRef  string
	Name        string
	Description string
	ImageRef    string
	Price       float64 // 0 when the page carries no price marker
	ResolvedAt  time.Time
}

// Result pairs one candidate's outcome. Exactly one of Item and Err is set.
type Result struct {
	Candidate scout.Candidate
	Item      *Item
	Err       error
}

type Config struct {
	Concurrency int           // bounded pool width, default 20
	Timeout     time.Duration // per-attempt fetch timeout, default 10s
	MaxRetries  int           // transient retries per item, default 3
	BackoffBase time.Duration // exponential backoff base, default 500ms
	RatePerSec  float64       // proactive throttle, default 5/s
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
}

const maxBackoff = 30 * time.Second

// Hydrator resolves candidates into full item metadata with a bounded worker
// pool, a proactive request throttle, and per-item retry with backoff.
type Hydrator struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     synclog.Recorder
	rng     *rand.Rand
	rngMu   sync.Mutex
}

func New(cfg Config, client *http.Client, log synclog.Recorder) *Hydrator {
	cfg.applyDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Hydrator{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Concurrency),
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Hydrate resolves all candidates concurrently, at most cfg.Concurrency in
// flight at once. The returned slice is index-aligned with candidates. One
// item exhausting its retries never blocks or slows its siblings; ctx
// cancellation stops new attempts but lets in-flight fetches drain.
func (h *Hydrator) Hydrate(ctx context.Context, candidates []scout.Candidate) []Result {
	results := make([]Result, len(candidates))

	pool, err := ants.NewPool(h.cfg.Concurrency)
	if err != nil {
		for i, c := range candidates {
			results[i] = Result{Candidate: c, Err: fmt.Errorf("worker pool: %w", err)}
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, c := range candidates {
		if ctx.Err() != nil {
			results[i] = Result{Candidate: c, Err: ctx.Err()}
			continue
		}

		wg.Add(1)
		i, c := i, c
		submitErr := pool.Submit(func() {
			defer wg.Done()
			item, err := h.resolve(ctx, c)
			results[i] = Result{Candidate: c, Item: item, Err: err}
		})
		if submitErr != nil {
			wg.Done()
			results[i] = Result{Candidate: c, Err: fmt.Errorf("submit: %w", submitErr)}
		}
	}
	wg.Wait()

	return results
}

// resolve runs the per-item retry loop. Transient failures back off
// exponentially with jitter; not-found and malformed pages fail immediately.
func (h *Hydrator) resolve(ctx context.Context, c scout.Candidate) (*Item, error) {
	locator, err := itemURL(c)
	if err != nil {
		return nil, err
	}

	h.record(ctx, synclog.Event{ItemID: c.ItemID, CatalogRef: c.CatalogRef, Kind: synclog.KindHydrateStart})

	var lastErr error
	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := h.sleepBackoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		if err := h.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		item, err := h.fetchItem(ctx, locator, c)
		if err == nil {
			h.record(ctx, synclog.Event{ItemID: c.ItemID, CatalogRef: c.CatalogRef, Kind: synclog.KindHydrateSuccess})
			return item, nil
		}

		var transient *transientError
		if !errors.As(err, &transient) {
			// Permanent per-item failure.
			h.recordPermanent(ctx, c, err)
			return nil, err
		}

		lastErr = err
		if transient.statusCode == http.StatusTooManyRequests {
			h.record(ctx, synclog.Event{
				ItemID:     c.ItemID,
				CatalogRef: c.CatalogRef,
				Kind:       synclog.KindHydrateRateLimited,
				StatusCode: transient.statusCode,
				Details:    synclog.EncodeDetails(map[string]int{"attempt": attempt + 1}),
			})
		}
		slog.WarnContext(ctx, "hydration attempt failed", "item_id", c.ItemID, "attempt", attempt+1, "error", err)
	}

	slog.ErrorContext(ctx, "hydration retries exhausted", "item_id", c.ItemID, "error", lastErr)
	return nil, fmt.Errorf("retries exhausted for item %s: %w", c.ItemID, lastErr)
}

func (h *Hydrator) fetchItem(ctx context.Context, locator string, c scout.Candidate) (*Item, error) {
	// Run cancellation is honored between attempts, never mid-fetch: an
	// attempt already on the wire runs to completion under its own timeout.
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.pickIdentity())

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &transientError{statusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrMalformed, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return parseItem(doc, c)
}

// parseItem is the strict-but-tolerant decode step: name and image are
// required, description may be empty.
func parseItem(doc *goquery.Document, c scout.Candidate) (*Item, error) {
	name := strings.TrimSpace(metaContent(doc, "og:title"))
	if name == "" {
		name = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	description := strings.TrimSpace(metaContent(doc, "og:description"))
	if description == "" {
		description = strings.TrimSpace(doc.Find(".product-description").First().Text())
	}
	imageRef := strings.TrimSpace(metaContent(doc, "og:image"))
	if imageRef == "" {
		imageRef, _ = doc.Find(".product-image img").First().Attr("src")
	}

	if name == "" {
		return nil, fmt.Errorf("%w: missing title for item %s", ErrMalformed, c.ItemID)
	}
	if imageRef == "" {
		return nil, fmt.Errorf("%w: missing image for item %s", ErrMalformed, c.ItemID)
	}

	var price float64
	if raw := metaContent(doc, "product:price:amount"); raw != "" {
		raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed >= 0 {
			price = parsed
		}
	}

	return &Item{
		ItemID:      c.ItemID,
		CatalogRef:  c.CatalogRef,
		Name:        name,
		Description: description,
		ImageRef:    imageRef,
		Price:       price,
		ResolvedAt:  time.Now().UTC(),
	}, nil
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().Attr("content")
	return content
}

// itemURL builds the canonical item locator from the candidate's catalog host.
func itemURL(c scout.Candidate) (string, error) {
	base, err := url.Parse(c.CatalogRef)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("invalid catalog reference %q for item %s", c.CatalogRef, c.ItemID)
	}
	return fmt.Sprintf("%s://%s/p/%s", base.Scheme, base.Host, c.ItemID), nil
}

func (h *Hydrator) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := h.cfg.BackoffBase << uint(attempt)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	backoff += h.jitter(backoff / 2)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

func (h *Hydrator) pickIdentity() string {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return identities[h.rng.Intn(len(identities))]
}

func (h *Hydrator) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return time.Duration(h.rng.Int63n(int64(max)))
}

func (h *Hydrator) recordPermanent(ctx context.Context, c scout.Candidate, err error) {
	if errors.Is(err, ErrMalformed) {
		// Malformed pages are skipped with a warning; the kind taxonomy
		// reserves hydrate_not_found for items that are actually gone.
		slog.WarnContext(ctx, "skipping item with malformed metadata", "item_id", c.ItemID, "error", err)
		return
	}
	h.record(ctx, synclog.Event{
		ItemID:     c.ItemID,
		CatalogRef: c.CatalogRef,
		Kind:       synclog.KindHydrateNotFound,
		Message:    err.Error(),
	})
}

func (h *Hydrator) record(ctx context.Context, e synclog.Event) {
	if h.log == nil {
		return
	}
	if err := h.log.Append(ctx, e); err != nil {
		slog.WarnContext(ctx, "failed to append sync event", "kind", e.Kind, "error", err)
	}
}
