package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/echome/echosync/internal/favorites"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDBPinger struct {
	mock.Mock
}

func (m *mockDBPinger) Ping() error {
	args := m.Called()
	return args.Error(0)
}

type stubPeer bool

func (p stubPeer) IsReachable() bool { return bool(p) }

func readiness(t *testing.T, h *healthHandler) (int, readinessResponse) {
	t.Helper()

	router := chi.NewRouter()
	h.Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var resp readinessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr.Code, resp
}

func TestHealthHandler_Liveness(t *testing.T) {
	router := chi.NewRouter()
	newHealthHandler(encoder{}, nil, nil, nil).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/liveness", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
	assert.Equal(t, "OK", rr.Body.String())
}

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name      string
		pingErr   error
		peer      PeerStatus
		listening *bool
		code      int
		status    string
		checks    map[string]string
	}{
		{
			name:   "database only",
			code:   http.StatusOK,
			status: "ok",
			checks: map[string]string{"database": "ok"},
		},
		{
			name:      "phone with reachable watch",
			peer:      stubPeer(true),
			listening: boolPtr(true),
			code:      http.StatusOK,
			status:    "ok",
			checks:    map[string]string{"database": "ok", "peer": "reachable", "favorites_stream": "listening"},
		},
		{
			name:      "peer away does not fail readiness",
			peer:      stubPeer(false),
			listening: boolPtr(false),
			code:      http.StatusOK,
			status:    "ok",
			checks:    map[string]string{"database": "ok", "peer": "unreachable", "favorites_stream": "stopped"},
		},
		{
			name:    "database down",
			pingErr: errors.New("db ping failed"),
			peer:    stubPeer(true),
			code:    http.StatusInternalServerError,
			status:  "unhealthy",
			checks:  map[string]string{"database": "unreachable", "peer": "reachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDBPinger{}
			db.On("Ping").Return(tt.pingErr).Once()

			var svc favoritesService
			if tt.listening != nil {
				favs := &mockFavorites{}
				favs.On("Status").Return(favorites.Status{Listening: *tt.listening})
				svc = favs
			}

			code, resp := readiness(t, newHealthHandler(encoder{}, db, tt.peer, svc))

			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.checks, resp.Checks)
			db.AssertExpectations(t)
		})
	}
}

func boolPtr(b bool) *bool { return &b }
