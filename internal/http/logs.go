package http

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/echome/echosync/internal/config"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type logFile struct {
	Name      string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Size      string    `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LogfilesResponse struct {
	Files []logFile `json:"files"`
	Count int       `json:"count"`
}

var sensitiveLogPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\b(apikey|passkey|token|pairing_token|password)=[^\s&"]+`), "${1}=REDACTED"},
	{regexp.MustCompile(`(?i)("(?:token|pairing_token|pairing_token_hash|password)"\s*:\s*)"[^"]*"`), `${1}"REDACTED"`},
	{regexp.MustCompile(`(?i)\bBearer\s+[^\s"]+`), "Bearer REDACTED"},
}

type logsHandler struct {
	cfg *config.AppConfig
}

func newLogsHandler(cfg *config.AppConfig) *logsHandler {
	return &logsHandler{cfg: cfg}
}

func (h logsHandler) Routes(r chi.Router) {
	r.Get("/files", h.files)
	r.Get("/files/{logFile}", h.downloadFile)
}

func (h logsHandler) files(w http.ResponseWriter, r *http.Request) {
	response := LogfilesResponse{Files: []logFile{}}

	logDir := h.cfg.Current().Logging.Path
	if logDir == "" {
		render.JSON(w, r, response)
		return
	}

	entries, err := os.ReadDir(logDir)
	if err != nil {
		render.JSON(w, r, response)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		response.Files = append(response.Files, logFile{
			Name:      entry.Name(),
			SizeBytes: info.Size(),
			Size:      humanize.Bytes(uint64(info.Size())),
			UpdatedAt: info.ModTime(),
		})
	}
	response.Count = len(response.Files)

	render.JSON(w, r, response)
}

func (h logsHandler) downloadFile(w http.ResponseWriter, r *http.Request) {
	logDir := h.cfg.Current().Logging.Path
	if logDir == "" {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Message: "log path not configured", Status: http.StatusNotFound})
		return
	}

	name := chi.URLParam(r, "logFile")
	if name != filepath.Base(name) || filepath.Ext(name) != ".log" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Message: "invalid file: " + name, Status: http.StatusBadRequest})
		return
	}

	sanitized, err := SanitizeLogFile(filepath.Join(logDir, name))
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Message: err.Error(), Status: http.StatusInternalServerError})
		return
	}
	defer os.Remove(sanitized)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)

	http.ServeFile(w, r, sanitized)
}

// SanitizeLogFile writes a redacted copy of path to a temp file and returns its path.
func SanitizeLogFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	content := string(data)
	for _, p := range sensitiveLogPatterns {
		content = p.re.ReplaceAllString(content, p.repl)
	}

	tmp, err := os.CreateTemp("", "echosync-log-*.log")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := tmp.WriteString(content); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}

	return tmp.Name(), nil
}
