package domain

import "context"

// Subscription is a handle to a live remote favorites subscription.
type Subscription interface {
	ID() string
	// Done is closed once the subscription stops delivering snapshots.
	Done() <-chan struct{}
}

// RemoteStore is the narrow surface of the remote document store used by the core.
// Subscription deliveries are full snapshots, never deltas.
type RemoteStore interface {
	AddFavorite(ctx context.Context, userID, itemID, text string) error
	RemoveFavorite(ctx context.Context, userID, itemID string) error
	SubscribeFavorites(ctx context.Context, userID string, onUpdate func([]FavoriteRecord)) (Subscription, error)
	Unsubscribe(sub Subscription)
	FetchContent(ctx context.Context, categories []string, limit int) ([]ContentItem, error)
}
