package remote

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/pkg/errors"
)

// ErrUnavailable is returned by MemoryStore while offline or failing.
var ErrUnavailable = errors.New("remote store unavailable")

// Call records a mutation attempted against a MemoryStore.
type Call struct {
	Op     string
	UserID string
	ItemID string
	Text   string
	Err    error
}

type memorySub struct {
	sub      *subscription
	userID   string
	onUpdate func([]domain.FavoriteRecord)
}

// MemoryStore is an in-process remote store. With auto publish enabled every
// successful mutation delivers a fresh snapshot to the user's subscribers.
type MemoryStore struct {
	mu          sync.Mutex
	favorites   map[string]map[string]domain.FavoriteRecord
	content     []domain.ContentItem
	subs        map[string]memorySub
	calls       []Call
	offline     bool
	failNext    int
	autoPublish bool
}

type MemoryOption func(*MemoryStore)

// WithAutoPublish delivers a snapshot to subscribers after each mutation.
func WithAutoPublish() MemoryOption {
	return func(m *MemoryStore) { m.autoPublish = true }
}

// WithContent seeds the content catalog.
func WithContent(items []domain.ContentItem) MemoryOption {
	return func(m *MemoryStore) { m.content = items }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		favorites: make(map[string]map[string]domain.FavoriteRecord),
		subs:      make(map[string]memorySub),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetOffline makes every call fail with ErrUnavailable until reset.
func (m *MemoryStore) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// FailNext makes the next n mutations fail.
func (m *MemoryStore) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Calls returns a copy of the recorded mutations.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Snapshot returns the stored favorites for userID, newest first.
func (m *MemoryStore) Snapshot(userID string) []domain.FavoriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(userID)
}

// Seed stores records for userID without recording calls or publishing.
func (m *MemoryStore) Seed(userID string, records ...domain.FavoriteRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	favs := m.userFavorites(userID)
	for _, rec := range records {
		favs[rec.ItemID] = rec
	}
}

func (m *MemoryStore) snapshotLocked(userID string) []domain.FavoriteRecord {
	favs := m.favorites[userID]
	out := make([]domain.FavoriteRecord, 0, len(favs))
	for _, rec := range favs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SavedAt.Equal(out[j].SavedAt) {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out
}

func (m *MemoryStore) userFavorites(userID string) map[string]domain.FavoriteRecord {
	favs, ok := m.favorites[userID]
	if !ok {
		favs = make(map[string]domain.FavoriteRecord)
		m.favorites[userID] = favs
	}
	return favs
}

// failLocked reports the injected failure for the current call, if any.
func (m *MemoryStore) failLocked() error {
	if m.offline {
		return ErrUnavailable
	}
	if m.failNext > 0 {
		m.failNext--
		return ErrUnavailable
	}
	return nil
}

func (m *MemoryStore) AddFavorite(ctx context.Context, userID, itemID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	err := m.failLocked()
	m.calls = append(m.calls, Call{Op: "add", UserID: userID, ItemID: itemID, Text: text, Err: err})
	if err == nil {
		m.userFavorites(userID)[itemID] = domain.FavoriteRecord{ItemID: itemID, Text: text, SavedAt: time.Now()}
	}
	m.mu.Unlock()

	if err == nil && m.autoPublish {
		m.Publish(userID)
	}
	return err
}

func (m *MemoryStore) RemoveFavorite(ctx context.Context, userID, itemID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	err := m.failLocked()
	m.calls = append(m.calls, Call{Op: "remove", UserID: userID, ItemID: itemID, Err: err})
	if err == nil {
		delete(m.userFavorites(userID), itemID)
	}
	m.mu.Unlock()

	if err == nil && m.autoPublish {
		m.Publish(userID)
	}
	return err
}

// Publish delivers the current snapshot to every subscriber of userID.
func (m *MemoryStore) Publish(userID string) {
	m.mu.Lock()
	snapshot := m.snapshotLocked(userID)
	targets := make([]func([]domain.FavoriteRecord), 0)
	for _, sub := range m.subs {
		if sub.userID == userID {
			targets = append(targets, sub.onUpdate)
		}
	}
	m.mu.Unlock()

	for _, fn := range targets {
		records := make([]domain.FavoriteRecord, len(snapshot))
		copy(records, snapshot)
		fn(records)
	}
}

func (m *MemoryStore) SubscribeFavorites(ctx context.Context, userID string, onUpdate func([]domain.FavoriteRecord)) (domain.Subscription, error) {
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return nil, ErrUnavailable
	}
	sub := newSubscription()
	m.subs[sub.ID()] = memorySub{sub: sub, userID: userID, onUpdate: onUpdate}
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			m.Unsubscribe(sub)
		case <-sub.done:
		}
	}()

	return sub, nil
}

func (m *MemoryStore) Unsubscribe(sub domain.Subscription) {
	if sub == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked(sub.ID())
}

// DropSubscriptions ends every live subscription as if the stream had died.
func (m *MemoryStore) DropSubscriptions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.subs {
		m.dropLocked(id)
	}
}

func (m *MemoryStore) dropLocked(id string) {
	if entry, ok := m.subs[id]; ok {
		close(entry.sub.done)
		delete(m.subs, id)
	}
}

// Subscribers returns the number of live subscriptions.
func (m *MemoryStore) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *MemoryStore) FetchContent(ctx context.Context, categories []string, limit int) ([]domain.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offline {
		return nil, ErrUnavailable
	}

	wanted := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		wanted[c] = struct{}{}
	}

	out := make([]domain.ContentItem, 0)
	for _, item := range m.content {
		if !item.IsActive {
			continue
		}
		if len(wanted) > 0 && !matchesCategory(item, wanted) {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func matchesCategory(item domain.ContentItem, wanted map[string]struct{}) bool {
	for _, c := range item.Categories {
		if _, ok := wanted[c]; ok {
			return true
		}
	}
	return false
}

var _ domain.RemoteStore = (*MemoryStore)(nil)
