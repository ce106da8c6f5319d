package http

import (
	"encoding/json"
	"net/http"

	"github.com/echome/echosync/internal/config"
	"github.com/echome/echosync/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type configJson struct {
	Role          string   `json:"role"`
	UserID        string   `json:"user_id"`
	Host          string   `json:"host"`
	Port          int      `json:"port"`
	BaseURL       string   `json:"base_url"`
	LogLevel      string   `json:"log_level"`
	LogPath       string   `json:"log_path"`
	LogMaxSize    int      `json:"log_max_size"`
	LogMaxBackups int      `json:"log_max_backups"`
	RemoteType    string   `json:"remote_type"`
	RetryDelay    string   `json:"retry_delay"`
	MaxRetryDelay string   `json:"max_retry_delay"`
	BatchSize     int      `json:"batch_size"`
	Categories    []string `json:"categories"`
	Version       string   `json:"version"`
	Commit        string   `json:"commit"`
	Date          string   `json:"date"`
}

type logLevelSetter interface {
	SetLogLevel(level string)
}

type configHandler struct {
	encoder encoder

	cfg    *config.AppConfig
	server Server
}

func newConfigHandler(encoder encoder, server Server, cfg *config.AppConfig) *configHandler {
	return &configHandler{
		encoder: encoder,
		cfg:     cfg,
		server:  server,
	}
}

func (h configHandler) Routes(r chi.Router) {
	r.Get("/", h.getConfig)
	r.Patch("/", h.updateConfig)
}

func (h configHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	c := h.cfg.Current()

	conf := configJson{
		Role:          c.Role,
		UserID:        c.UserID,
		Host:          c.Server.Host,
		Port:          c.Server.Port,
		BaseURL:       c.Server.BaseURL,
		LogLevel:      c.Logging.Level,
		LogPath:       c.Logging.Path,
		LogMaxSize:    c.Logging.MaxFileSize,
		LogMaxBackups: c.Logging.MaxBackupCount,
		RemoteType:    c.Remote.Type,
		RetryDelay:    c.Sync.RetryDelay.String(),
		MaxRetryDelay: c.Sync.MaxRetryDelay.String(),
		BatchSize:     c.Content.BatchSize,
		Categories:    c.Content.Categories,
		Version:       h.server.version,
		Commit:        h.server.commit,
		Date:          h.server.date,
	}

	render.JSON(w, r, conf)
}

// updateConfig applies changes in memory only; config.toml is left as is.
func (h configHandler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var data domain.ConfigUpdate

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.encoder.Error(w, err)
		return
	}

	if err := h.cfg.Update(data); err != nil {
		h.encoder.StatusError(w, http.StatusBadRequest, err)
		return
	}

	if data.LogLevel != nil && h.server.levels != nil {
		h.server.levels.SetLogLevel(*data.LogLevel)
	}

	render.NoContent(w, r)
}
