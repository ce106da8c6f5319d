package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/echome/echosync/internal/config"
	"github.com/echome/echosync/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func testServer(services Services) Server {
	return Server{
		log:       zerolog.Nop(),
		config:    &config.AppConfig{Config: &domain.Config{}},
		favorites: services.Favorites,
		content:   services.Content,
		companion: services.Companion,
		peer:      services.Peer,
	}
}

func TestServer_RoutesFollowRole(t *testing.T) {
	phone := testServer(Services{
		Favorites: &mockFavorites{},
		Content:   &stubContent{},
		Peer: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	}).Handler()
	watch := testServer(Services{Companion: &stubCompanion{}}).Handler()

	tests := []struct {
		name    string
		handler http.Handler
		path    string
		status  int
	}{
		{name: "phone content", handler: phone, path: "/api/content/", status: http.StatusOK},
		{name: "phone peer endpoint", handler: phone, path: "/api/peer", status: http.StatusTeapot},
		{name: "phone has no companion", handler: phone, path: "/api/companion/", status: http.StatusNotFound},
		{name: "watch companion", handler: watch, path: "/api/companion/", status: http.StatusOK},
		{name: "watch has no favorites", handler: watch, path: "/api/favorites/", status: http.StatusNotFound},
		{name: "watch has no peer endpoint", handler: watch, path: "/api/peer", status: http.StatusNotFound},
		{name: "config on both", handler: watch, path: "/api/config/", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
