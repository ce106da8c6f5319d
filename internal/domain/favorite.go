package domain

import (
	"context"
	"time"
)

// FavoriteRecord is the locally cached snapshot of a favorited item.
type FavoriteRecord struct {
	ItemID  string    `json:"affirmationId"`
	Text    string    `json:"text"`
	SavedAt time.Time `json:"savedAt"`
}

// PendingOperation is a favorite change not yet confirmed by the remote store.
type PendingOperation struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	ItemID     string    `json:"affirmationId"`
	Text       string    `json:"text"`
	IsAdding   bool      `json:"isAdding"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempts   int       `json:"attempts"`
}

// FavoriteRepo persists the favorite cache and the pending queue.
// SaveState replaces both in a single transaction.
type FavoriteRepo interface {
	LoadState(ctx context.Context) ([]FavoriteRecord, []PendingOperation, error)
	SaveState(ctx context.Context, records []FavoriteRecord, pending []PendingOperation) error
}
