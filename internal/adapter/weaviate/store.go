package weaviate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"sokoni/backend/internal/vector"
)

// Store implements vector.Index on a Weaviate Product class. Object IDs are
// derived deterministically from the item ID, which is what makes Upsert
// replace instead of duplicate.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// EnsureSchema creates the Product class if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(s.client))
}

func objectID(itemID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(itemID)).String()
}

func (s *Store) Upsert(ctx context.Context, e vector.Entry) error {
	obj := &models.Object{
		Class: vector.ClassName,
		ID:    strfmt.UUID(objectID(e.ItemID)),
		Properties: map[string]interface{}{
			"itemId":     e.ItemID,
			"sellerId":   e.SellerID,
			"categoryId": e.CategoryID,
			"price":      e.Price,
			"createdAt":  e.CreatedAt.Format(time.RFC3339),
		},
		Vector: e.Vector,
	}

	// Batch writes have PUT semantics, replacing any object with the same ID.
	res, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", e.ItemID, err)
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("upsert %s: %s", e.ItemID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, itemID string) error {
	err := s.client.Data().Deleter().
		WithClassName(vector.ClassName).
		WithID(objectID(itemID)).
		Do(ctx)
	if err != nil {
		var clientErr *fault.WeaviateClientError
		if errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("delete %s: %w", itemID, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int, f *vector.Filter) ([]vector.Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(query)

	fields := []graphql.Field{
		{Name: "itemId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	q := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...)

	if where := buildWhere(f); where != nil {
		q = q.WithWhere(where)
	}

	res, err := q.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var matches []vector.Match
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if objects, ok := data[vector.ClassName].([]interface{}); ok {
			for _, o := range objects {
				props, ok := o.(map[string]interface{})
				if !ok {
					continue
				}
				var m vector.Match
				if id, ok := props["itemId"].(string); ok {
					m.ItemID = id
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if distance, ok := additional["distance"].(float64); ok {
						// Cosine distance = 1 - cosine similarity.
						m.Score = float32(1 - distance)
					}
				}
				matches = append(matches, m)
			}
		}
	}
	return matches, nil
}

// GetVector fetches the stored vector for itemID.
func (s *Store) GetVector(ctx context.Context, itemID string) ([]float32, error) {
	objects, err := s.client.Data().ObjectsGetter().
		WithClassName(vector.ClassName).
		WithID(objectID(itemID)).
		WithVector().
		Do(ctx)
	if err != nil {
		var clientErr *fault.WeaviateClientError
		if errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", vector.ErrNotIndexed, itemID)
		}
		return nil, err
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: %s", vector.ErrNotIndexed, itemID)
	}
	return objects[0].Vector, nil
}

// Count reports the number of indexed entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if objects, ok := data[vector.ClassName].([]interface{}); ok && len(objects) > 0 {
			if meta, ok := objects[0].(map[string]interface{}); ok {
				if m, ok := meta["meta"].(map[string]interface{}); ok {
					if count, ok := m["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

func buildWhere(f *vector.Filter) *filters.WhereBuilder {
	if f == nil {
		return nil
	}

	var operands []*filters.WhereBuilder
	if f.SellerID != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"sellerId"}).
			WithOperator(filters.Equal).
			WithValueInt(*f.SellerID))
	}
	if f.CategoryID != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"categoryId"}).
			WithOperator(filters.Equal).
			WithValueInt(*f.CategoryID))
	}
	if f.MinPrice != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"price"}).
			WithOperator(filters.GreaterThanEqual).
			WithValueNumber(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"price"}).
			WithOperator(filters.LessThanEqual).
			WithValueNumber(*f.MaxPrice))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}
