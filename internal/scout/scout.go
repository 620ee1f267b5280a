package scout

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sokoni/backend/internal/synclog"
)

// Seller catalog pages link each listed item as /p/<16-digit id>.
var itemIDExpr = regexp.MustCompile(`/p/(\d{16})(?:[/?#]|$)`)

// Candidate is a discovered item identifier, not yet resolved.
type Candidate struct {
	ItemID     string
	CatalogRef string
}

// Scout extracts candidate item identifiers from a seller's public catalog
// page. Discovery never resolves item content; that is the hydrator's job.
type Scout struct {
	client *http.Client
	log    synclog.Recorder
}

func New(client *http.Client, log synclog.Recorder) *Scout {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Scout{client: client, log: log}
}

// Discover fetches the catalog page at catalogRef and returns the deduplicated
// candidates found on it, in first-seen order. Page-load failures and pages
// with zero matches both return an empty slice with a nil error so one
// seller's bad page never aborts a multi-seller run; only an unparsable
// catalogRef is reported as an error.
func (s *Scout) Discover(ctx context.Context, catalogRef string) ([]Candidate, error) {
	if _, err := url.ParseRequestURI(catalogRef); err != nil {
		return nil, fmt.Errorf("invalid catalog reference %q: %w", catalogRef, err)
	}

	s.record(ctx, synclog.KindScoutStart, catalogRef, "")

	doc, err := s.fetchDocument(ctx, catalogRef)
	if err != nil {
		slog.WarnContext(ctx, "catalog page load failed", "catalog_ref", catalogRef, "error", err)
		return nil, nil
	}

	seen := make(map[string]struct{})
	var candidates []Candidate
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := itemIDExpr.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		candidates = append(candidates, Candidate{ItemID: id, CatalogRef: catalogRef})
	})

	if len(candidates) == 0 {
		slog.InfoContext(ctx, "no candidates on catalog page", "catalog_ref", catalogRef)
		return nil, nil
	}

	s.record(ctx, synclog.KindScoutSuccess, catalogRef, fmt.Sprintf("%d candidates", len(candidates)))
	slog.InfoContext(ctx, "catalog scouted", "catalog_ref", catalogRef, "candidates", len(candidates))
	return candidates, nil
}

func (s *Scout) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "sokoni-scout/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (s *Scout) record(ctx context.Context, kind synclog.Kind, catalogRef, msg string) {
	if s.log == nil {
		return
	}
	err := s.log.Append(ctx, synclog.Event{CatalogRef: catalogRef, Kind: kind, Message: msg})
	if err != nil {
		slog.WarnContext(ctx, "failed to append sync event", "kind", kind, "error", err)
	}
}
