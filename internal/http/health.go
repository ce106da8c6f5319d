package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DBPinger defines an interface for types that can be pinged.
type DBPinger interface {
	Ping() error
}

// PeerStatus reports whether the companion device is currently reachable.
type PeerStatus interface {
	IsReachable() bool
}

const (
	checkOK          = "ok"
	checkUnreachable = "unreachable"
)

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type healthHandler struct {
	encoder   encoder
	dbPinger  DBPinger
	peer      PeerStatus
	favorites favoritesService
}

func newHealthHandler(encoder encoder, dbPinger DBPinger, peer PeerStatus, favorites favoritesService) *healthHandler {
	return &healthHandler{
		encoder:   encoder,
		dbPinger:  dbPinger,
		peer:      peer,
		favorites: favorites,
	}
}

func (h healthHandler) Routes(r chi.Router) {
	r.Get("/liveness", h.handleLiveness)
	r.Get("/readiness", h.handleReadiness)
}

func (h healthHandler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeHealthy(w)
}

// handleReadiness fails only on the local database. The peer link and the
// favorites stream come and go in normal operation and are reported as is.
func (h healthHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	resp := readinessResponse{Status: checkOK, Checks: map[string]string{"database": checkOK}}
	status := http.StatusOK

	if err := h.dbPinger.Ping(); err != nil {
		resp.Status = "unhealthy"
		resp.Checks["database"] = checkUnreachable
		status = http.StatusInternalServerError
	}

	if h.peer != nil {
		resp.Checks["peer"] = checkUnreachable
		if h.peer.IsReachable() {
			resp.Checks["peer"] = "reachable"
		}
	}

	if h.favorites != nil {
		resp.Checks["favorites_stream"] = "stopped"
		if h.favorites.Status().Listening {
			resp.Checks["favorites_stream"] = "listening"
		}
	}

	h.encoder.StatusResponse(r.Context(), w, resp, status)
}

func writeHealthy(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
