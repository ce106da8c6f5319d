package favorites

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"

	"github.com/asaskevich/EventBus"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service interface {
	// Load reads the cache and pending queue from the local store.
	Load(ctx context.Context) error
	// Toggle flips membership of itemID and returns the new membership.
	// It persists locally before returning and never waits on the network.
	Toggle(itemID, text string) bool
	IsFavorite(itemID string) bool
	// IDs returns the favorite ids, sorted.
	IDs() []string
	// Records returns the cached records, newest first.
	Records() []domain.FavoriteRecord
	// Pending returns the queued operations in FIFO order.
	Pending() []domain.PendingOperation
	// MergeServerState reconciles a full server snapshot with pending local intent.
	MergeServerState(serverIDs map[string]struct{}, serverRecords map[string]domain.FavoriteRecord)
	// FlushPending submits queued operations to the remote store.
	FlushPending(ctx context.Context) error
	// Kick schedules an asynchronous flush on the Run loop.
	Kick()
	// Run serves flush kicks and retries until ctx is done.
	Run(ctx context.Context)
	StartListening(ctx context.Context) error
	StopListening()
	// OnChange registers fn for every change of the id list.
	OnChange(fn func(ids []string)) error
	Status() Status
}

// Status is a point-in-time summary of the set.
type Status struct {
	Favorites     int       `json:"favorites"`
	Pending       int       `json:"pending"`
	Listening     bool      `json:"listening"`
	LastFlush     time.Time `json:"last_flush,omitempty"`
	LastFlushAgo  string    `json:"last_flush_ago,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	RetryAttempts int       `json:"retry_attempts"`
}

type service struct {
	log    zerolog.Logger
	userID string
	cfg    domain.SyncConfig
	repo   domain.FavoriteRepo
	remote domain.RemoteStore
	bus    EventBus.Bus

	mu       sync.Mutex
	records  map[string]domain.FavoriteRecord
	pending  []domain.PendingOperation
	seq      int64
	inFlight map[string]struct{}

	lastFlush time.Time
	lastError string

	flushMu  sync.Mutex
	flushing bool
	dirty    bool

	kick chan struct{}

	subMu sync.Mutex
	sub   domain.Subscription
}

func NewService(log logger.Logger, cfg *domain.Config, repo domain.FavoriteRepo, remote domain.RemoteStore, bus EventBus.Bus) Service {
	return &service{
		log:      log.With().Str("module", "favorites").Logger(),
		userID:   cfg.UserID,
		cfg:      cfg.Sync,
		repo:     repo,
		remote:   remote,
		bus:      bus,
		records:  make(map[string]domain.FavoriteRecord),
		inFlight: make(map[string]struct{}),
		kick:     make(chan struct{}, 1),
	}
}

func (s *service) Load(ctx context.Context) error {
	records, pending, err := s.repo.LoadState(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load favorites")
	}

	s.mu.Lock()
	s.records = make(map[string]domain.FavoriteRecord, len(records))
	for _, rec := range records {
		s.records[rec.ItemID] = rec
	}
	s.pending = pending
	for _, op := range pending {
		if op.Seq > s.seq {
			s.seq = op.Seq
		}
	}
	s.mu.Unlock()

	s.log.Info().Int("favorites", len(records)).Int("pending", len(pending)).Msg("favorites loaded")

	if len(pending) > 0 {
		s.Kick()
	}

	return nil
}

func (s *service) Toggle(itemID, text string) bool {
	now := time.Now()

	s.mu.Lock()
	_, exists := s.records[itemID]
	adding := !exists
	if adding {
		s.records[itemID] = domain.FavoriteRecord{ItemID: itemID, Text: text, SavedAt: now}
	} else {
		if text == "" {
			text = s.records[itemID].Text
		}
		delete(s.records, itemID)
	}
	s.enqueueLocked(itemID, text, adding, now)
	s.persistLocked()
	ids := s.idsLocked()
	s.mu.Unlock()

	s.log.Debug().Str("item", itemID).Bool("favorite", adding).Msg("favorite toggled")

	s.publish(ids)
	s.Kick()

	return adding
}

// enqueueLocked records a flip of itemID. A queued inverse operation that was
// never submitted cancels out instead of adding a second operation. Once an
// operation has been attempted the server may already have applied it, so the
// new flip is queued behind it and both are sent in order.
func (s *service) enqueueLocked(itemID, text string, adding bool, now time.Time) {
	for i := len(s.pending) - 1; i >= 0; i-- {
		op := s.pending[i]
		if op.ItemID != itemID {
			continue
		}
		if _, busy := s.inFlight[op.ID]; busy || op.Attempts > 0 {
			break
		}
		if op.IsAdding != adding {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.log.Trace().Str("item", itemID).Msg("pending operation coalesced")
			return
		}
		s.pending[i].Text = text
		return
	}

	s.seq++
	s.pending = append(s.pending, domain.PendingOperation{
		ID:         uuid.NewString(),
		Seq:        s.seq,
		ItemID:     itemID,
		Text:       text,
		IsAdding:   adding,
		EnqueuedAt: now,
	})
}

func (s *service) IsFavorite(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[itemID]
	return ok
}

func (s *service) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idsLocked()
}

func (s *service) idsLocked() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *service) Records() []domain.FavoriteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsLocked()
}

func (s *service) recordsLocked() []domain.FavoriteRecord {
	out := make([]domain.FavoriteRecord, 0, len(s.records))
	for _, rec := range s.records {
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

func (s *service) Pending() []domain.PendingOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingOperation, len(s.pending))
	copy(out, s.pending)
	return out
}

func (s *service) MergeServerState(serverIDs map[string]struct{}, serverRecords map[string]domain.FavoriteRecord) {
	s.mu.Lock()

	// latest queued intent per item
	intent := make(map[string]domain.PendingOperation, len(s.pending))
	for _, op := range s.pending {
		intent[op.ItemID] = op
	}

	merged := make(map[string]domain.FavoriteRecord, len(serverIDs)+len(intent))
	for id := range serverIDs {
		if op, ok := intent[id]; ok && !op.IsAdding {
			continue
		}
		merged[id] = s.resolveRecordLocked(id, serverRecords, domain.FavoriteRecord{ItemID: id})
	}
	for id, op := range intent {
		if !op.IsAdding {
			continue
		}
		if _, ok := merged[id]; ok {
			continue
		}
		merged[id] = s.resolveRecordLocked(id, serverRecords, domain.FavoriteRecord{ItemID: id, Text: op.Text, SavedAt: op.EnqueuedAt})
	}

	added, removed := diffKeys(s.records, merged)
	s.records = merged
	s.persistLocked()
	ids := s.idsLocked()
	s.mu.Unlock()

	s.log.Debug().Int("server", len(serverIDs)).Int("favorites", len(ids)).Int("added", added).Int("removed", removed).Msg("merged server state")

	s.publish(ids)
}

// resolveRecordLocked picks the server copy, then the local copy, then fallback.
func (s *service) resolveRecordLocked(id string, serverRecords map[string]domain.FavoriteRecord, fallback domain.FavoriteRecord) domain.FavoriteRecord {
	if rec, ok := serverRecords[id]; ok {
		rec.ItemID = id
		if rec.SavedAt.IsZero() {
			if local, ok := s.records[id]; ok {
				rec.SavedAt = local.SavedAt
			}
		}
		return rec
	}
	if rec, ok := s.records[id]; ok {
		return rec
	}
	return fallback
}

func diffKeys(before, after map[string]domain.FavoriteRecord) (added, removed int) {
	for id := range after {
		if _, ok := before[id]; !ok {
			added++
		}
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			removed++
		}
	}
	return added, removed
}

// persistLocked writes the cache and queue. Failures leave memory authoritative.
func (s *service) persistLocked() {
	pending := make([]domain.PendingOperation, len(s.pending))
	copy(pending, s.pending)

	if err := s.repo.SaveState(context.Background(), s.recordsLocked(), pending); err != nil {
		s.log.Error().Err(err).Msg("could not persist favorites")
	}
}

func (s *service) publish(ids []string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.EventFavoritesChanged, ids)
}

func (s *service) OnChange(fn func(ids []string)) error {
	if s.bus == nil {
		return errors.New("no event bus configured")
	}
	return s.bus.Subscribe(domain.EventFavoritesChanged, fn)
}

func (s *service) Status() Status {
	s.subMu.Lock()
	listening := s.sub != nil
	s.subMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Listening: listening,
		Favorites: len(s.records),
		Pending:   len(s.pending),
		LastFlush: s.lastFlush,
		LastError: s.lastError,
	}
	for _, op := range s.pending {
		st.RetryAttempts += op.Attempts
	}
	if !s.lastFlush.IsZero() {
		st.LastFlushAgo = humanize.Time(s.lastFlush)
	}

	return st
}

func (s *service) StartListening(ctx context.Context) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.sub != nil {
		return nil
	}
	if s.userID == "" {
		return errors.New("no user signed in")
	}

	sub, err := s.remote.SubscribeFavorites(ctx, s.userID, func(records []domain.FavoriteRecord) {
		ids := make(map[string]struct{}, len(records))
		byID := make(map[string]domain.FavoriteRecord, len(records))
		for _, rec := range records {
			ids[rec.ItemID] = struct{}{}
			byID[rec.ItemID] = rec
		}
		s.MergeServerState(ids, byID)
	})
	if err != nil {
		return errors.Wrap(err, "could not subscribe to favorites")
	}

	s.sub = sub
	s.log.Info().Str("subscription", sub.ID()).Msg("listening for favorites")

	go s.watchSubscription(sub)

	return nil
}

// watchSubscription clears the listener once the remote stream ends on its
// own so a later StartListening subscribes again.
func (s *service) watchSubscription(sub domain.Subscription) {
	<-sub.Done()

	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.sub != sub {
		return
	}
	s.sub = nil
	s.log.Warn().Str("subscription", sub.ID()).Msg("favorites subscription ended")
}

func (s *service) StopListening() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.sub == nil {
		return
	}

	s.remote.Unsubscribe(s.sub)
	s.log.Info().Str("subscription", s.sub.ID()).Msg("stopped listening for favorites")
	s.sub = nil
}
