package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/echome/echosync/internal/config"
	"github.com/echome/echosync/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLevels struct {
	levels []string
}

func (r *recordingLevels) SetLogLevel(level string) {
	r.levels = append(r.levels, level)
}

func TestGetConfigHandler(t *testing.T) {
	appConfig := &config.AppConfig{
		Config: &domain.Config{
			Role:   "phone",
			UserID: "user-1",
			Server: domain.ServerConfig{
				Host:    "localhost",
				Port:    8383,
				BaseURL: "/echosync",
			},
			Logging: domain.LoggingConfig{
				Level:          "DEBUG",
				Path:           "/logs",
				MaxFileSize:    100,
				MaxBackupCount: 5,
			},
			Remote: domain.RemoteConfig{Type: "memory"},
			Sync: domain.SyncConfig{
				RetryDelay:    5 * time.Second,
				MaxRetryDelay: time.Minute,
			},
			Content: domain.ContentConfig{
				BatchSize:  25,
				Categories: []string{"calm"},
			},
		},
	}
	server := Server{
		version: "1.0.0",
		commit:  "abcdef",
		date:    "2026-01-01",
	}

	router := chi.NewRouter()
	newConfigHandler(encoder{}, server, appConfig).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp configJson
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.Equal(t, "phone", resp.Role)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, "localhost", resp.Host)
	assert.Equal(t, 8383, resp.Port)
	assert.Equal(t, "/echosync", resp.BaseURL)
	assert.Equal(t, "DEBUG", resp.LogLevel)
	assert.Equal(t, "/logs", resp.LogPath)
	assert.Equal(t, 100, resp.LogMaxSize)
	assert.Equal(t, 5, resp.LogMaxBackups)
	assert.Equal(t, "memory", resp.RemoteType)
	assert.Equal(t, "5s", resp.RetryDelay)
	assert.Equal(t, "1m0s", resp.MaxRetryDelay)
	assert.Equal(t, 25, resp.BatchSize)
	assert.Equal(t, []string{"calm"}, resp.Categories)
	assert.Equal(t, "1.0.0", resp.Version)
	assert.Equal(t, "abcdef", resp.Commit)
	assert.Equal(t, "2026-01-01", resp.Date)
}

func TestUpdateConfigHandler(t *testing.T) {
	appConfig := &config.AppConfig{
		Config: &domain.Config{
			Logging: domain.LoggingConfig{
				Level: "INFO",
				Path:  "/var/log",
			},
			Sync: domain.SyncConfig{RetryDelay: 5 * time.Second},
		},
	}
	levels := &recordingLevels{}
	server := Server{levels: levels}

	router := chi.NewRouter()
	newConfigHandler(encoder{}, server, appConfig).Routes(router)

	patch := func(body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("update fields", func(t *testing.T) {
		level := "DEBUG"
		path := "/tmp/logs"
		delay := "2s"
		body, _ := json.Marshal(domain.ConfigUpdate{
			LogLevel:   &level,
			LogPath:    &path,
			RetryDelay: &delay,
			Categories: []string{"focus", "sleep"},
		})

		rr := patch(body)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "DEBUG", appConfig.Config.Logging.Level)
		assert.Equal(t, "/tmp/logs", appConfig.Config.Logging.Path)
		assert.Equal(t, 2*time.Second, appConfig.Config.Sync.RetryDelay)
		assert.Equal(t, []string{"focus", "sleep"}, appConfig.Config.Content.Categories)
		assert.Equal(t, []string{"DEBUG"}, levels.levels)
	})

	t.Run("update only one field", func(t *testing.T) {
		level := "WARN"
		body, _ := json.Marshal(domain.ConfigUpdate{LogLevel: &level})

		rr := patch(body)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "WARN", appConfig.Config.Logging.Level)
		assert.Equal(t, "/tmp/logs", appConfig.Config.Logging.Path)
		assert.Equal(t, 2*time.Second, appConfig.Config.Sync.RetryDelay)
	})

	t.Run("invalid retry delay", func(t *testing.T) {
		delay := "soon"
		body, _ := json.Marshal(domain.ConfigUpdate{RetryDelay: &delay})

		rr := patch(body)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "invalid retry_delay")
		assert.Equal(t, 2*time.Second, appConfig.Config.Sync.RetryDelay)
	})

	t.Run("invalid json body", func(t *testing.T) {
		rr := patch([]byte("invalid json"))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, rr.Body.String(), "message")
	})
}
