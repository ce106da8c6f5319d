package companion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/internal/peer"

	"github.com/rs/zerolog"
)

// Link is the part of the peer channel the watch side talks through.
type Link interface {
	IsReachable() bool
	SendToggle(ctx context.Context, itemID, text string, isFavorite bool) error
	RequestContent(ctx context.Context) (peer.Reply, error)
}

// Cache is the watch's display copy of content and favorite ids. The phone
// stays authoritative: every push it sends replaces what is here.
type Cache struct {
	log  zerolog.Logger
	link Link

	mu       sync.RWMutex
	ids      map[string]struct{}
	content  []domain.ContentItem
	lastSync time.Time
}

func NewCache(log logger.Logger, link Link) *Cache {
	return &Cache{
		log:  log.With().Str("module", "companion").Logger(),
		link: link,
		ids:  make(map[string]struct{}),
	}
}

func (c *Cache) FavoriteIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Cache) Content() []domain.ContentItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.ContentItem(nil), c.content...)
}

func (c *Cache) LastSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}

func (c *Cache) IsFavorite(itemID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[itemID]
	return ok
}

// Toggle flips the item locally and relays the intent to the phone when it
// is reachable. A failed send reverts the flip. Returns the resulting state.
func (c *Cache) Toggle(ctx context.Context, itemID, text string) (bool, error) {
	now := c.flip(itemID)

	if !c.link.IsReachable() {
		c.log.Debug().Str("item", itemID).Msg("phone not reachable, toggle kept locally")
		return now, nil
	}

	if err := c.link.SendToggle(ctx, itemID, text, now); err != nil {
		c.log.Warn().Err(err).Str("item", itemID).Msg("toggle not delivered, reverting")
		return c.flip(itemID), err
	}

	return now, nil
}

func (c *Cache) flip(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids[itemID]; ok {
		delete(c.ids, itemID)
		return false
	}
	c.ids[itemID] = struct{}{}
	return true
}

// RefreshContent asks the phone for a new batch. The batch arrives through
// ApplyContentBatch.
func (c *Cache) RefreshContent(ctx context.Context) error {
	if !c.link.IsReachable() {
		return peer.ErrNotReachable
	}

	reply, err := c.link.RequestContent(ctx)
	if err != nil {
		return err
	}
	c.log.Debug().Str("status", reply.Status).Msg("content requested")
	return nil
}

func (c *Cache) ApplyFavoriteIDs(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	c.mu.Lock()
	c.ids = set
	c.lastSync = time.Now()
	c.mu.Unlock()

	c.log.Debug().Int("favorites", len(set)).Msg("favorite ids replaced")
}

func (c *Cache) ApplyContentBatch(items []domain.ContentItem, favoriteIDs []string, at time.Time) {
	set := make(map[string]struct{}, len(favoriteIDs))
	for _, id := range favoriteIDs {
		set[id] = struct{}{}
	}
	if at.IsZero() {
		at = time.Now()
	}

	c.mu.Lock()
	c.content = append([]domain.ContentItem(nil), items...)
	c.ids = set
	c.lastSync = at
	c.mu.Unlock()

	c.log.Debug().Int("items", len(items)).Int("favorites", len(set)).Msg("content batch applied")
}
