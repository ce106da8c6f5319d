package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/peer"
	"github.com/echome/echosync/pkg/errors"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type companionService interface {
	FavoriteIDs() []string
	Content() []domain.ContentItem
	LastSync() time.Time
	Toggle(ctx context.Context, itemID, text string) (bool, error)
	RefreshContent(ctx context.Context) error
}

type companionResponse struct {
	FavoriteIDs []string             `json:"favoriteIds"`
	Content     []domain.ContentItem `json:"content"`
	LastSync    time.Time            `json:"last_sync"`
	LastSyncAgo string               `json:"last_sync_ago,omitempty"`
}

type companionHandler struct {
	encoder encoder
	service companionService
}

func newCompanionHandler(encoder encoder, service companionService) *companionHandler {
	return &companionHandler{
		encoder: encoder,
		service: service,
	}
}

func (h companionHandler) Routes(r chi.Router) {
	r.Get("/", h.state)
	r.Post("/refresh", h.refresh)
	r.Post("/favorites/{itemID}/toggle", h.toggle)
}

func (h companionHandler) state(w http.ResponseWriter, r *http.Request) {
	resp := companionResponse{
		FavoriteIDs: h.service.FavoriteIDs(),
		Content:     h.service.Content(),
		LastSync:    h.service.LastSync(),
	}
	if !resp.LastSync.IsZero() {
		resp.LastSyncAgo = humanize.Time(resp.LastSync)
	}

	render.JSON(w, r, resp)
}

func (h companionHandler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RefreshContent(r.Context()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, peer.ErrNotReachable) {
			status = http.StatusServiceUnavailable
		}
		h.encoder.StatusError(w, status, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h companionHandler) toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID := chi.URLParam(r, "itemID")

	var data toggleRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			h.encoder.StatusResponse(ctx, w, errorResponse{Message: "invalid request body", Status: http.StatusBadRequest}, http.StatusBadRequest)
			return
		}
	}

	now, err := h.service.Toggle(ctx, itemID, data.Text)
	if err != nil {
		// the cache already reverted; report the state it reverted to
		h.encoder.StatusResponse(ctx, w, toggleResponse{ItemID: itemID, IsFavorite: now}, http.StatusBadGateway)
		return
	}

	h.encoder.StatusResponse(ctx, w, toggleResponse{ItemID: itemID, IsFavorite: now}, http.StatusOK)
}
