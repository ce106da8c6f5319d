package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/favorites"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type favoritesService interface {
	Toggle(itemID, text string) bool
	IDs() []string
	Records() []domain.FavoriteRecord
	Pending() []domain.PendingOperation
	FlushPending(ctx context.Context) error
	Status() favorites.Status
}

type toggleRequest struct {
	Text string `json:"text"`
}

type toggleResponse struct {
	ItemID     string `json:"affirmationId"`
	IsFavorite bool   `json:"isFavorite"`
}

type favoritesResponse struct {
	IDs     []string                `json:"ids"`
	Records []domain.FavoriteRecord `json:"records"`
}

type favoritesHandler struct {
	encoder encoder
	service favoritesService
}

func newFavoritesHandler(encoder encoder, service favoritesService) *favoritesHandler {
	return &favoritesHandler{
		encoder: encoder,
		service: service,
	}
}

func (h favoritesHandler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/pending", h.pending)
	r.Get("/status", h.status)
	r.Post("/flush", h.flush)
	r.Post("/{itemID}/toggle", h.toggle)
}

func (h favoritesHandler) list(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, favoritesResponse{IDs: h.service.IDs(), Records: h.service.Records()})
}

func (h favoritesHandler) pending(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Pending())
}

func (h favoritesHandler) status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Status())
}

func (h favoritesHandler) flush(w http.ResponseWriter, r *http.Request) {
	if err := h.service.FlushPending(r.Context()); err != nil {
		h.encoder.Error(w, err)
		return
	}
	render.JSON(w, r, h.service.Status())
}

func (h favoritesHandler) toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		h.encoder.StatusResponse(ctx, w, errorResponse{Message: "item id is required", Status: http.StatusBadRequest}, http.StatusBadRequest)
		return
	}

	var data toggleRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			h.encoder.StatusResponse(ctx, w, errorResponse{Message: "invalid request body", Status: http.StatusBadRequest}, http.StatusBadRequest)
			return
		}
	}

	now := h.service.Toggle(itemID, data.Text)

	h.encoder.StatusResponse(ctx, w, toggleResponse{ItemID: itemID, IsFavorite: now}, http.StatusOK)
}
