package domain

import (
	"context"
	"time"
)

// ContentItem is a single affirmation from the remote catalog.
type ContentItem struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Categories []string  `json:"categories"`
	Tone       string    `json:"tone,omitempty"`
	Length     string    `json:"length,omitempty"`
	IsActive   bool      `json:"isActive"`
	Order      int       `json:"-"`
	CachedAt   time.Time `json:"-"`
}

type ContentRepo interface {
	List(ctx context.Context) ([]ContentItem, error)
	// Replace swaps the whole cached catalog for items, keeping their order.
	Replace(ctx context.Context, items []ContentItem) error
}
