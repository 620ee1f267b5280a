package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"sokoni/backend/internal/embedding"
)

// Embedder is the remote text-feature variant, backed by gemini embeddings.
type Embedder struct {
	client *genai.Client
	model  string
}

func NewEmbedder(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Embedder, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: "gemini-embedding-001"}, nil
}

func (e *Embedder) TextFeatures(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding text", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "text embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}

	values := res.Embedding.Values
	if len(values) < embedding.Dim {
		return nil, fmt.Errorf("embedding too short: got %d, need %d", len(values), embedding.Dim)
	}
	// The model may return more dimensions than the index uses.
	return values[:embedding.Dim], nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
