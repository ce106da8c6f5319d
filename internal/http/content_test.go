package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/echome/echosync/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContent struct {
	items       []domain.ContentItem
	refreshErr  error
	refreshedAt time.Time
	categories  []string
	refreshes   int
}

func (s *stubContent) Items() []domain.ContentItem { return s.items }

func (s *stubContent) Batch(n int) []domain.ContentItem {
	if n > len(s.items) {
		n = len(s.items)
	}
	return s.items[:n]
}

func (s *stubContent) Refresh(_ context.Context, categories []string) error {
	s.refreshes++
	s.categories = categories
	return s.refreshErr
}

func (s *stubContent) LastRefresh() time.Time { return s.refreshedAt }

func contentRouter(svc contentService) chi.Router {
	r := chi.NewRouter()
	newContentHandler(encoder{}, svc).Routes(r)
	return r
}

func TestContentHandler_List(t *testing.T) {
	svc := &stubContent{
		items: []domain.ContentItem{
			{ID: "a1", Text: "one", IsActive: true},
			{ID: "a2", Text: "two", IsActive: true},
			{ID: "a3", Text: "three", IsActive: true},
		},
		refreshedAt: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
	}

	t.Run("all items", func(t *testing.T) {
		rr := httptest.NewRecorder()
		contentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp contentResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Count)
		assert.True(t, resp.LastRefresh.Equal(svc.refreshedAt))
	})

	t.Run("limited", func(t *testing.T) {
		rr := httptest.NewRecorder()
		contentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?limit=2", nil))

		var resp contentResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, "a1", resp.Items[0].ID)
	})

	t.Run("bad limit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		contentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?limit=many", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestContentHandler_Refresh(t *testing.T) {
	t.Run("with categories", func(t *testing.T) {
		svc := &stubContent{}

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/refresh", strings.NewReader(`{"categories":["calm"]}`))
		contentRouter(svc).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, 1, svc.refreshes)
		assert.Equal(t, []string{"calm"}, svc.categories)
	})

	t.Run("configured categories", func(t *testing.T) {
		svc := &stubContent{}

		rr := httptest.NewRecorder()
		contentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/refresh", nil))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Nil(t, svc.categories)
	})

	t.Run("remote failure", func(t *testing.T) {
		svc := &stubContent{refreshErr: errors.New("fetch failed")}

		rr := httptest.NewRecorder()
		contentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/refresh", nil))

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Contains(t, rr.Body.String(), "fetch failed")
	})
}
