package content

import (
	"context"
	"sync"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"

	"github.com/asaskevich/EventBus"
	"github.com/rs/zerolog"
)

const (
	defaultBatchSize       = 50
	defaultRefreshInterval = 4 * time.Hour
)

type Service interface {
	// Load restores the cached catalog from the local store.
	Load(ctx context.Context) error
	Items() []domain.ContentItem
	// Batch returns up to n cached items in catalog order.
	Batch(n int) []domain.ContentItem
	// CurrentBatch is Batch with the configured batch size.
	CurrentBatch() []domain.ContentItem
	// Refresh fetches twice the batch size from the remote store and
	// replaces the cache. Nil categories use the configured ones.
	Refresh(ctx context.Context, categories []string) error
	NeedsRefresh() bool
	LastRefresh() time.Time
}

type service struct {
	log    zerolog.Logger
	cfg    domain.ContentConfig
	repo   domain.ContentRepo
	remote domain.RemoteStore
	bus    EventBus.Bus

	refreshMu sync.Mutex

	mu          sync.RWMutex
	items       []domain.ContentItem
	lastRefresh time.Time
}

func NewService(log logger.Logger, cfg *domain.Config, repo domain.ContentRepo, remote domain.RemoteStore, bus EventBus.Bus) Service {
	return &service{
		log:    log.With().Str("module", "content").Logger(),
		cfg:    cfg.Content,
		repo:   repo,
		remote: remote,
		bus:    bus,
	}
}

func (s *service) batchSize() int {
	if s.cfg.BatchSize <= 0 {
		return defaultBatchSize
	}
	return s.cfg.BatchSize
}

func (s *service) refreshInterval() time.Duration {
	if s.cfg.RefreshInterval <= 0 {
		return defaultRefreshInterval
	}
	return s.cfg.RefreshInterval
}

func (s *service) Load(ctx context.Context) error {
	items, err := s.repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load content cache")
	}

	var newest time.Time
	for _, item := range items {
		if item.CachedAt.After(newest) {
			newest = item.CachedAt
		}
	}

	s.mu.Lock()
	s.items = items
	s.lastRefresh = newest
	s.mu.Unlock()

	s.log.Info().Int("items", len(items)).Msg("content cache loaded")
	return nil
}

func (s *service) Items() []domain.ContentItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ContentItem(nil), s.items...)
}

func (s *service) Batch(n int) []domain.ContentItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.items) {
		n = len(s.items)
	}
	return append([]domain.ContentItem(nil), s.items[:n]...)
}

func (s *service) CurrentBatch() []domain.ContentItem {
	return s.Batch(s.batchSize())
}

func (s *service) Refresh(ctx context.Context, categories []string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if categories == nil {
		categories = s.cfg.Categories
	}

	items, err := s.remote.FetchContent(ctx, categories, s.batchSize()*2)
	if err != nil {
		return errors.Wrap(err, "could not fetch content")
	}

	items = dedupe(items)
	if len(items) == 0 {
		s.log.Warn().Strs("categories", categories).Msg("remote returned no content, keeping cache")
		return nil
	}

	if err := s.repo.Replace(ctx, items); err != nil {
		// the fresh batch is still served from memory
		s.log.Error().Err(err).Msg("could not persist content cache")
	}

	now := time.Now()
	for i := range items {
		items[i].Order = i
		items[i].CachedAt = now
	}

	s.mu.Lock()
	s.items = items
	s.lastRefresh = now
	s.mu.Unlock()

	s.log.Info().Int("items", len(items)).Strs("categories", categories).Msg("content refreshed")

	if s.bus != nil {
		s.bus.Publish(domain.EventContentRefreshed, s.CurrentBatch())
	}
	return nil
}

func (s *service) NeedsRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items) == 0 || time.Since(s.lastRefresh) > s.refreshInterval()
}

func (s *service) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(items []domain.ContentItem) []domain.ContentItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}
