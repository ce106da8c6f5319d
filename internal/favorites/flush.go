package favorites

import (
	"context"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/pkg/errors"
)

var errNoUser = errors.New("no user signed in")

func (s *service) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// FlushPending runs FIFO passes over the queue. A call made while a pass is
// running only marks the queue dirty; the running call does another pass.
// Failed submissions stay queued and are not reported; the only error is the
// context's once it is cancelled.
func (s *service) FlushPending(ctx context.Context) error {
	s.flushMu.Lock()
	if s.flushing {
		s.dirty = true
		s.flushMu.Unlock()
		return nil
	}
	s.flushing = true
	s.flushMu.Unlock()

	for {
		s.flushPass(ctx)

		s.flushMu.Lock()
		if !s.dirty || ctx.Err() != nil {
			s.flushing = false
			s.dirty = false
			s.flushMu.Unlock()
			return ctx.Err()
		}
		s.dirty = false
		s.flushMu.Unlock()
	}
}

// flushPass submits every queued operation once and reports how many failed.
// After a failure the later operations on the same item wait for the next pass
// so they never overtake it.
func (s *service) flushPass(ctx context.Context) (failed int) {
	s.mu.Lock()
	batch := make([]string, 0, len(s.pending))
	for _, op := range s.pending {
		batch = append(batch, op.ID)
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	held := make(map[string]struct{})
	for _, id := range batch {
		if ctx.Err() != nil {
			return failed
		}

		op, ok := s.claim(id, held)
		if !ok {
			continue
		}

		err := s.submit(ctx, op)
		s.settle(op, err)
		if err != nil {
			failed++
			held[op.ItemID] = struct{}{}
		}
	}

	s.log.Debug().Int("submitted", len(batch)).Int("failed", failed).Msg("flush pass finished")

	return failed
}

// claim marks the operation with id as in flight and returns its current copy.
// It reports false when the operation was coalesced away since the pass
// started or its item is held.
func (s *service) claim(id string, held map[string]struct{}) (domain.PendingOperation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.pending {
		if op.ID != id {
			continue
		}
		if _, ok := held[op.ItemID]; ok {
			return domain.PendingOperation{}, false
		}
		s.inFlight[id] = struct{}{}
		return op, true
	}
	return domain.PendingOperation{}, false
}

func (s *service) submit(ctx context.Context, op domain.PendingOperation) error {
	if s.userID == "" {
		return errNoUser
	}
	if op.IsAdding {
		return s.remote.AddFavorite(ctx, s.userID, op.ItemID, op.Text)
	}
	return s.remote.RemoveFavorite(ctx, s.userID, op.ItemID)
}

// settle removes a confirmed operation or records a failed attempt.
func (s *service) settle(op domain.PendingOperation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, op.ID)
	s.lastFlush = time.Now()

	for i := range s.pending {
		if s.pending[i].ID != op.ID {
			continue
		}
		if err == nil {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
		} else {
			s.pending[i].Attempts++
		}
		break
	}

	if err != nil {
		s.lastError = err.Error()
		s.log.Warn().Err(err).Str("item", op.ItemID).Bool("adding", op.IsAdding).Int("attempts", op.Attempts+1).Msg("remote favorite update failed, will retry")
	} else {
		s.lastError = ""
		s.log.Debug().Str("item", op.ItemID).Bool("adding", op.IsAdding).Msg("remote favorite update confirmed")
	}

	s.persistLocked()
}

func (s *service) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run flushes on every kick. While operations remain after a pass it retries
// after the retry delay, doubling per failing pass up to the max delay.
func (s *service) Run(ctx context.Context) {
	s.log.Debug().Msg("flush loop started")

	var (
		timer  *time.Timer
		retryC <-chan time.Time
		delay  = s.baseDelay()
	)

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			retryC = nil
		}
	}
	defer stopTimer()

	if s.pendingCount() > 0 {
		s.Kick()
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("flush loop stopped")
			return
		case <-s.kick:
		case <-retryC:
			retryC = nil
			timer = nil
		}

		_ = s.FlushPending(ctx)

		stopTimer()
		if s.pendingCount() == 0 {
			delay = s.baseDelay()
			continue
		}

		s.log.Debug().Dur("delay", delay).Msg("scheduling flush retry")
		timer = time.NewTimer(delay)
		retryC = timer.C
		delay = s.nextDelay(delay)
	}
}

func (s *service) baseDelay() time.Duration {
	if s.cfg.RetryDelay <= 0 {
		return 5 * time.Second
	}
	return s.cfg.RetryDelay
}

func (s *service) nextDelay(current time.Duration) time.Duration {
	max := s.cfg.MaxRetryDelay
	if max <= s.baseDelay() {
		return s.baseDelay()
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}
