package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	events     *sse.Server
	subscribed chan struct{}

	mu       sync.Mutex
	requests []string
	bodies   []favoritePayload
	status   int
	auth     string
}

func newFakeRemote(t *testing.T) (*fakeRemote, *httptest.Server) {
	f := &fakeRemote{subscribed: make(chan struct{}, 4), status: http.StatusOK}
	f.events = sse.NewWithCallback(func(string, *sse.Subscriber) {
		f.subscribed <- struct{}{}
	}, nil)
	f.events.AutoReplay = false
	f.events.CreateStream("user-1")

	r := chi.NewRouter()
	r.Route("/v1/users/{uid}/favorites", func(r chi.Router) {
		r.Get("/stream", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			q.Set("stream", chi.URLParam(r, "uid"))
			r.URL.RawQuery = q.Encode()
			f.events.ServeHTTP(w, r)
		})
		r.Put("/{id}", f.record)
		r.Delete("/{id}", f.record)
	})
	r.Get("/v1/content", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode([]domain.ContentItem{
			{ID: "c1", Text: "I am enough", Categories: []string{"calm"}, IsActive: true},
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		f.events.Close()
		srv.Close()
	})
	return f, srv
}

func (f *fakeRemote) record(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.auth = r.Header.Get("Authorization")

	if r.Method == http.MethodPut {
		var body favoritePayload
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		f.bodies = append(f.bodies, body)
	}

	if f.status != http.StatusOK {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":"unavailable","message":"try later"}`))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	c, err := NewClient(logger.Mock(), domain.RemoteConfig{BaseURL: baseURL, Token: "secret", Timeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestNormalizeBaseURL(t *testing.T) {
	got, err := NormalizeBaseURL(" https://store.example.com/ ")
	require.NoError(t, err)
	assert.Equal(t, "https://store.example.com", got)

	_, err = NormalizeBaseURL("")
	assert.Error(t, err)

	_, err = NormalizeBaseURL("store.example.com")
	assert.Error(t, err)
}

func TestClient_AddAndRemoveFavorite(t *testing.T) {
	f, srv := newFakeRemote(t)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.AddFavorite(ctx, "user-1", "aff-1", "I am enough"))
	require.NoError(t, c.RemoveFavorite(ctx, "user-1", "aff-1"))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{
		"PUT /v1/users/user-1/favorites/aff-1",
		"DELETE /v1/users/user-1/favorites/aff-1",
	}, f.requests)
	require.Len(t, f.bodies, 1)
	assert.Equal(t, "I am enough", f.bodies[0].Text)
	assert.Equal(t, "Bearer secret", f.auth)
}

func TestClient_APIError(t *testing.T) {
	f, srv := newFakeRemote(t)
	f.status = http.StatusServiceUnavailable
	c := newTestClient(t, srv.URL)

	err := c.AddFavorite(context.Background(), "user-1", "aff-1", "x")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "unavailable", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "try later")
}

func TestClient_RemoveMissingIsNotAnError(t *testing.T) {
	f, srv := newFakeRemote(t)
	f.status = http.StatusNotFound
	c := newTestClient(t, srv.URL)

	assert.NoError(t, c.RemoveFavorite(context.Background(), "user-1", "gone"))
}

func TestClient_Unreachable(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	assert.Error(t, c.AddFavorite(context.Background(), "user-1", "aff-1", "x"))
}

func TestClient_FetchContent(t *testing.T) {
	f, srv := newFakeRemote(t)
	c := newTestClient(t, srv.URL)

	items, err := c.FetchContent(context.Background(), []string{"calm", "focus"}, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c1", items[0].ID)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"GET /v1/content?category=calm&category=focus&limit=100"}, f.requests)
}

func TestClient_SubscribeFavorites(t *testing.T) {
	f, srv := newFakeRemote(t)
	c := newTestClient(t, srv.URL)

	updates := make(chan []domain.FavoriteRecord, 4)
	sub, err := c.SubscribeFavorites(context.Background(), "user-1", func(records []domain.FavoriteRecord) {
		updates <- records
	})
	require.NoError(t, err)
	require.NotEmpty(t, sub.ID())
	defer c.Unsubscribe(sub)

	select {
	case <-f.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("client never subscribed")
	}

	f.events.Publish("user-1", &sse.Event{Data: []byte(`not json`)})
	f.events.Publish("user-1", &sse.Event{Data: []byte(`[{"affirmationId":"aff-1","text":"I am enough"}]`)})

	select {
	case records := <-updates:
		require.Len(t, records, 1)
		assert.Equal(t, "aff-1", records[0].ItemID)
		assert.Equal(t, "I am enough", records[0].Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	assert.Empty(t, updates, "malformed snapshot must be skipped")
}

func TestClient_Unsubscribe(t *testing.T) {
	_, srv := newFakeRemote(t)
	c := newTestClient(t, srv.URL)

	sub, err := c.SubscribeFavorites(context.Background(), "user-1", func([]domain.FavoriteRecord) {})
	require.NoError(t, err)

	c.Unsubscribe(sub)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never reported done")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.subs)
}
