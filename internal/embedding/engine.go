package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"sokoni/backend/internal/hydrator"
	"sokoni/backend/internal/synclog"
)

// Dim is the fixed length of every feature and hybrid vector.
const Dim = 768

// Weighting of the two signals in the hybrid vector. Process-wide, not
// overridable per item; must sum to 1.
const (
	DefaultVisualWeight = 0.6
	DefaultTextWeight   = 0.4
)

const maxImageBytes = 10 << 20

// ErrNoSignal means neither text nor image produced any usable signal; the
// item is excluded from indexing.
var ErrNoSignal = errors.New("no text and no image signal")

// VisualExtractor turns raw image bytes into a fixed-length feature vector.
type VisualExtractor interface {
	VisualFeatures(ctx context.Context, image []byte) ([]float32, error)
}

// TextExtractor turns cleaned text into a fixed-length feature vector.
type TextExtractor interface {
	TextFeatures(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	VisualWeight float32
	TextWeight   float32
	BatchSize    int           // default 10
	FetchTimeout time.Duration // image fetch timeout, default 10s
}

func (c *Config) applyDefaults() {
	if c.VisualWeight == 0 && c.TextWeight == 0 {
		c.VisualWeight = DefaultVisualWeight
		c.TextWeight = DefaultTextWeight
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
}

// Engine produces normalized hybrid vectors from hydrated items. Extractors
// may be nil or unreachable; the engine then degrades to deterministic
// fallback vectors so repeated runs stay idempotent.
type Engine struct {
	cfg    Config
	visual VisualExtractor
	text   TextExtractor
	client *http.Client
	log    synclog.Recorder
}

func NewEngine(cfg Config, visual VisualExtractor, text TextExtractor, client *http.Client, log synclog.Recorder) *Engine {
	cfg.applyDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &Engine{cfg: cfg, visual: visual, text: text, client: client, log: log}
}

// Embed computes the hybrid vector for one item:
// clean text -> text features, fetch image -> visual features,
// hybrid[i] = visual[i]*wv + text[i]*wt, L2-normalized.
// The image bytes are transient; they are never written anywhere.
func (e *Engine) Embed(ctx context.Context, item *hydrator.Item) ([]float32, error) {
	clean := CleanText(item.Name + " " + item.Description)

	if clean == "" && item.ImageRef == "" {
		e.record(ctx, synclog.Event{ItemID: item.ItemID, CatalogRef: item.CatalogRef, Kind: synclog.KindEmbedFailed, Message: ErrNoSignal.Error()})
		return nil, fmt.Errorf("item %s: %w", item.ItemID, ErrNoSignal)
	}

	visualVec := e.visualFeatures(ctx, item, clean)
	textVec := e.textFeatures(ctx, item, clean)

	hybrid := make([]float32, Dim)
	for i := 0; i < Dim; i++ {
		hybrid[i] = visualVec[i]*e.cfg.VisualWeight + textVec[i]*e.cfg.TextWeight
	}
	normalize(hybrid)

	e.record(ctx, synclog.Event{ItemID: item.ItemID, CatalogRef: item.CatalogRef, Kind: synclog.KindEmbedSuccess})
	return hybrid, nil
}

// EmbedBatch processes items in fixed-size batches to bound peak memory and
// concurrency. A single item's failure degrades to the sentinel vector rather
// than aborting the batch; the returned slice is index-aligned with items.
func (e *Engine) EmbedBatch(ctx context.Context, items []*hydrator.Item) [][]float32 {
	vectors := make([][]float32, len(items))

	pool, err := ants.NewPool(e.cfg.BatchSize)
	if err != nil {
		for i := range items {
			vectors[i] = Sentinel()
		}
		return vectors
	}
	defer pool.Release()

	for start := 0; start < len(items); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			i := i
			if submitErr := pool.Submit(func() {
				defer wg.Done()
				vec, err := e.Embed(ctx, items[i])
				if err != nil {
					slog.WarnContext(ctx, "embedding degraded to sentinel", "item_id", items[i].ItemID, "error", err)
					vec = Sentinel()
				}
				vectors[i] = vec
			}); submitErr != nil {
				wg.Done()
				vectors[i] = Sentinel()
			}
		}
		wg.Wait()
	}

	return vectors
}

// Sentinel is the documented stand-in vector for items that failed inside a
// batch: unit length, all weight on the first component.
func Sentinel() []float32 {
	vec := make([]float32, Dim)
	vec[0] = 1
	return vec
}

// IsSentinel reports whether vec is the batch-failure stand-in. Callers use
// this to keep failed items out of the index.
func IsSentinel(vec []float32) bool {
	if len(vec) != Dim || vec[0] != 1 {
		return false
	}
	for _, v := range vec[1:] {
		if v != 0 {
			return false
		}
	}
	return true
}

// visualFeatures fetches the image and extracts features, falling back to a
// deterministic vector derived from the image reference and the cleaned text.
func (e *Engine) visualFeatures(ctx context.Context, item *hydrator.Item, clean string) []float32 {
	if item.ImageRef != "" && e.visual != nil {
		if img, err := e.fetchImage(ctx, item.ImageRef); err == nil {
			vec, err := e.visual.VisualFeatures(ctx, img)
			if err == nil && len(vec) == Dim {
				return vec
			}
			slog.WarnContext(ctx, "visual extraction failed, using fallback", "item_id", item.ItemID, "error", err)
		} else {
			slog.WarnContext(ctx, "image fetch failed, using fallback", "item_id", item.ItemID, "error", err)
		}
	}
	return fallbackVector("visual|" + item.ImageRef + "|" + clean)
}

func (e *Engine) textFeatures(ctx context.Context, item *hydrator.Item, clean string) []float32 {
	if clean != "" && e.text != nil {
		vec, err := e.text.TextFeatures(ctx, clean)
		if err == nil && len(vec) == Dim {
			return vec
		}
		slog.WarnContext(ctx, "text extraction failed, using fallback", "item_id", item.ItemID, "error", err)
	}
	return fallbackVector("text|" + clean)
}

// TextVector embeds freeform query text with the same extractor-or-fallback
// path used for items. The query surface depends on this for "search by
// description".
func (e *Engine) TextVector(ctx context.Context, text string) []float32 {
	clean := CleanText(text)
	if clean != "" && e.text != nil {
		if vec, err := e.text.TextFeatures(ctx, clean); err == nil && len(vec) == Dim {
			normalize(vec)
			return vec
		}
	}
	return fallbackVector("text|" + clean)
}

// fetchImage downloads the image into memory. The bytes are discarded by the
// caller right after feature extraction.
func (e *Engine) fetchImage(ctx context.Context, imageRef string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, imageRef, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned %s", resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

func (e *Engine) record(ctx context.Context, ev synclog.Event) {
	if e.log == nil {
		return
	}
	if err := e.log.Append(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to append sync event", "kind", ev.Kind, "error", err)
	}
}
