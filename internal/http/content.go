package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/echome/echosync/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type contentService interface {
	Items() []domain.ContentItem
	Batch(n int) []domain.ContentItem
	Refresh(ctx context.Context, categories []string) error
	LastRefresh() time.Time
}

type refreshRequest struct {
	Categories []string `json:"categories"`
}

type contentResponse struct {
	Items       []domain.ContentItem `json:"items"`
	Count       int                  `json:"count"`
	LastRefresh time.Time            `json:"last_refresh"`
}

type contentHandler struct {
	encoder encoder
	service contentService
}

func newContentHandler(encoder encoder, service contentService) *contentHandler {
	return &contentHandler{
		encoder: encoder,
		service: service,
	}
}

func (h contentHandler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/refresh", h.refresh)
}

func (h contentHandler) list(w http.ResponseWriter, r *http.Request) {
	items := h.service.Items()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "invalid limit", Status: http.StatusBadRequest}, http.StatusBadRequest)
			return
		}
		items = h.service.Batch(limit)
	}

	render.JSON(w, r, contentResponse{Items: items, Count: len(items), LastRefresh: h.service.LastRefresh()})
}

func (h contentHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var data refreshRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "invalid request body", Status: http.StatusBadRequest}, http.StatusBadRequest)
			return
		}
	}

	if err := h.service.Refresh(r.Context(), data.Categories); err != nil {
		h.encoder.StatusError(w, http.StatusBadGateway, err)
		return
	}

	h.encoder.NoContent(w)
}
