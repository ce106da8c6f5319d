package server

import (
	"context"
	"sync"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/internal/scheduler"
	"github.com/echome/echosync/pkg/errors"

	"github.com/rs/zerolog"
)

type Favorites interface {
	Load(ctx context.Context) error
	IDs() []string
	Run(ctx context.Context)
	StartListening(ctx context.Context) error
	StopListening()
}

type Content interface {
	Load(ctx context.Context) error
	NeedsRefresh() bool
	Refresh(ctx context.Context, categories []string) error
}

type Channel interface {
	Activate(ctx context.Context) error
	PushFavoriteIDs(ids []string)
}

// Server owns the background lifecycle of one role. A watch passes nil
// favorites and content.
type Server struct {
	log    zerolog.Logger
	config *domain.Config

	scheduler scheduler.Service
	channel   Channel
	favorites Favorites
	content   Content

	cancel context.CancelFunc
	stopWG sync.WaitGroup
	lock   sync.Mutex
}

func NewServer(log logger.Logger, config *domain.Config, scheduler scheduler.Service, channel Channel, favorites Favorites, content Content) *Server {
	return &Server{
		log:       log.With().Str("module", "server").Logger(),
		config:    config,
		scheduler: scheduler,
		channel:   channel,
		favorites: favorites,
		content:   content,
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cancel != nil {
		return errors.New("server already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.favorites != nil {
		if err := s.favorites.Load(runCtx); err != nil {
			cancel()
			s.cancel = nil
			return errors.Wrap(err, "could not load favorites")
		}

		s.stopWG.Add(1)
		go func() {
			defer s.stopWG.Done()
			s.favorites.Run(runCtx)
		}()

		if err := s.favorites.StartListening(runCtx); err != nil {
			s.log.Warn().Err(err).Msg("favorites listener not started, local changes stay queued")
		}
	}

	if s.content != nil {
		if err := s.content.Load(runCtx); err != nil {
			s.log.Error().Err(err).Msg("could not load content cache")
		}

		if s.content.NeedsRefresh() {
			s.stopWG.Add(1)
			go func() {
				defer s.stopWG.Done()
				if err := s.content.Refresh(runCtx, nil); err != nil {
					s.log.Warn().Err(err).Msg("initial content refresh failed")
				}
			}()
		}
	}

	if s.channel != nil {
		if err := s.channel.Activate(runCtx); err != nil {
			s.log.Error().Err(err).Msg("could not activate peer channel")
		} else if s.favorites != nil {
			s.channel.PushFavoriteIDs(s.favorites.IDs())
		}
	}

	s.scheduler.Start()

	s.log.Info().Str("role", s.config.Role).Msg("background services started")

	return nil
}

func (s *Server) Shutdown() {
	s.log.Info().Msg("Shutting down server")

	s.scheduler.Stop()

	if s.favorites != nil {
		s.favorites.StopListening()
	}

	s.lock.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.lock.Unlock()

	s.stopWG.Wait()
}
