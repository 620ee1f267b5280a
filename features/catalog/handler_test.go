package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sokoni/backend/internal/synclog"
)

func TestHandler_Sync(t *testing.T) {
	t.Run("Accepted", func(t *testing.T) {
		pub := new(MockPublisher)
		pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
		h := NewHandler(NewService(new(MockRepository), pub, synclog.NewMemoryLog()))

		body := `{"catalog_refs":["https://market.example.com/sellers/acme/catalog"]}`
		req := httptest.NewRequest(http.MethodPost, "/catalogs/sync", strings.NewReader(body))
		rec := httptest.NewRecorder()

		h.Sync(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(1), resp["queued"])
	})

	t.Run("InvalidBody", func(t *testing.T) {
		h := NewHandler(NewService(new(MockRepository), new(MockPublisher), synclog.NewMemoryLog()))

		req := httptest.NewRequest(http.MethodPost, "/catalogs/sync", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()

		h.Sync(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_BODY")
		assert.Contains(t, rec.Body.String(), "correlationId")
	})

	t.Run("PublishFailure", func(t *testing.T) {
		pub := new(MockPublisher)
		pub.On("Publish", mock.Anything, mock.Anything).Return(assert.AnError)
		h := NewHandler(NewService(new(MockRepository), pub, synclog.NewMemoryLog()))

		body := `{"catalog_refs":["https://market.example.com/c"]}`
		req := httptest.NewRequest(http.MethodPost, "/catalogs/sync", strings.NewReader(body))
		rec := httptest.NewRecorder()

		h.Sync(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandler_GetProduct(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetProduct", mock.Anything, "1234567890123456").Return(&Product{
			ItemID:   "1234567890123456",
			SellerID: 7,
			Name:     "Beaded Sandals",
			Price:    2499,
		}, nil)
		repo.On("GetSeller", mock.Anything, int64(7)).Return(&Seller{
			ID:        7,
			StoreName: "Acme Crafts",
		}, nil)
		h := NewHandler(NewService(repo, new(MockPublisher), synclog.NewMemoryLog()))

		req := httptest.NewRequest(http.MethodGet, "/products/1234567890123456", nil)
		req.SetPathValue("id", "1234567890123456")
		rec := httptest.NewRecorder()

		h.GetProduct(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Beaded Sandals")
		assert.Contains(t, rec.Body.String(), "Acme Crafts")
	})

	t.Run("SellerLookupFailureDegrades", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetProduct", mock.Anything, "1234567890123456").Return(&Product{
			ItemID:   "1234567890123456",
			SellerID: 7,
			Name:     "Beaded Sandals",
		}, nil)
		repo.On("GetSeller", mock.Anything, int64(7)).Return(nil, assert.AnError)
		h := NewHandler(NewService(repo, new(MockPublisher), synclog.NewMemoryLog()))

		req := httptest.NewRequest(http.MethodGet, "/products/1234567890123456", nil)
		req.SetPathValue("id", "1234567890123456")
		rec := httptest.NewRecorder()

		h.GetProduct(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Beaded Sandals")
		assert.NotContains(t, rec.Body.String(), `"seller"`)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetProduct", mock.Anything, "0000000000000000").Return(nil, sql.ErrNoRows)
		h := NewHandler(NewService(repo, new(MockPublisher), synclog.NewMemoryLog()))

		req := httptest.NewRequest(http.MethodGet, "/products/0000000000000000", nil)
		req.SetPathValue("id", "0000000000000000")
		rec := httptest.NewRecorder()

		h.GetProduct(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})
}

func TestHandler_ListEvents(t *testing.T) {
	log := synclog.NewMemoryLog()
	ctx := context.Background()
	require.NoError(t, log.Append(ctx, synclog.Event{ItemID: "a", Kind: synclog.KindHydrateSuccess}))
	require.NoError(t, log.Append(ctx, synclog.Event{ItemID: "b", Kind: synclog.KindHydrateNotFound}))

	h := NewHandler(NewService(new(MockRepository), new(MockPublisher), log))

	t.Run("FilterByKind", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/events?kind=hydrate_not_found", nil)
		rec := httptest.NewRecorder()

		h.ListEvents(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data []synclog.Event `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "b", resp.Data[0].ItemID)
	})

	t.Run("BadLimit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/events?limit=zero", nil)
		rec := httptest.NewRecorder()

		h.ListEvents(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("EmptyResultIsArray", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/events?item_id=nope", nil)
		rec := httptest.NewRecorder()

		h.ListEvents(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
	})
}
