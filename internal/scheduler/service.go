package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	jobFlushPending    = "favorites-flush-pending"
	jobRefreshContent  = "content-refresh"
	jobRefreshFromPeer = "companion-refresh"

	contentCheckSpec = "*/15 * * * *"
)

type Service interface {
	Start()
	Stop()
	// AddJob adds a job that runs periodically at the given interval.
	AddJob(job cron.Job, interval time.Duration, identifier string) (int, error)
	// AddJobWithSpec adds a job using a cron spec string (e.g., "*/15 * * * *").
	AddJobWithSpec(job cron.Job, spec string, identifier string) (int, error)
	RemoveJobByIdentifier(id string) error
	GetNextRun(id string) (time.Time, error)
}

// Jobs holds what the scheduled jobs act on. Nil fields skip their job.
type Jobs struct {
	Favorites Flusher
	Content   ContentRefresher
	Companion CompanionRefresher
}

type service struct {
	log    zerolog.Logger
	config *domain.Config
	deps   Jobs

	cron *cron.Cron
	jobs map[string]cron.EntryID
	m    sync.RWMutex
}

func NewService(log logger.Logger, config *domain.Config, deps Jobs) Service {
	return &service{
		log:    log.With().Str("module", "scheduler").Logger(),
		config: config,
		deps:   deps,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
		)),
		jobs: map[string]cron.EntryID{},
	}
}

func (s *service) Start() {
	s.log.Info().Msg("Starting scheduler service")

	s.cron.Start()

	s.addAppJobs()
}

func (s *service) addAppJobs() {
	if s.deps.Favorites != nil {
		interval := s.config.Sync.FlushInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		flush := &FlushPendingJob{
			Name:      jobFlushPending,
			Log:       s.log.With().Str("job", jobFlushPending).Logger(),
			Favorites: s.deps.Favorites,
		}
		if _, err := s.AddJob(flush, interval, jobFlushPending); err != nil {
			s.log.Error().Err(err).Msgf("Failed to add '%s' job", jobFlushPending)
		}
	}

	if s.deps.Content != nil {
		refresh := &RefreshContentJob{
			Name:       jobRefreshContent,
			Log:        s.log.With().Str("job", jobRefreshContent).Logger(),
			Content:    s.deps.Content,
			Categories: s.config.Content.Categories,
		}
		if _, err := s.AddJobWithSpec(refresh, contentCheckSpec, jobRefreshContent); err != nil {
			s.log.Error().Err(err).Msgf("Failed to add '%s' job", jobRefreshContent)
		}
	}

	if s.deps.Companion != nil {
		interval := s.config.Content.RefreshInterval
		if interval <= 0 {
			interval = 4 * time.Hour
		}

		refresh := &CompanionRefreshJob{
			Name:      jobRefreshFromPeer,
			Log:       s.log.With().Str("job", jobRefreshFromPeer).Logger(),
			Companion: s.deps.Companion,
		}
		if _, err := s.AddJob(refresh, interval, jobRefreshFromPeer); err != nil {
			s.log.Error().Err(err).Msgf("Failed to add '%s' job", jobRefreshFromPeer)
		}
	}
}

func (s *service) Stop() {
	s.log.Info().Msg("Stopping scheduler service")
	<-s.cron.Stop().Done()
}

func (s *service) AddJob(job cron.Job, interval time.Duration, identifier string) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if _, exists := s.jobs[identifier]; exists {
		s.log.Warn().Str("identifier", identifier).Msg("Job with this identifier already exists, skipping add.")
		return 0, fmt.Errorf("job with identifier '%s' already exists", identifier)
	}

	entryID, err := s.cron.AddJob(fmt.Sprintf("@every %s", interval.String()), cron.NewChain(
		cron.SkipIfStillRunning(cron.DefaultLogger)).Then(job))

	if err != nil {
		s.log.Error().Err(err).Str("identifier", identifier).Msg("Failed to add job with interval")
		return 0, fmt.Errorf("failed to add job '%s': %w", identifier, err)
	}

	s.log.Info().Str("identifier", identifier).Dur("interval", interval).Int("entryID", int(entryID)).Msg("Scheduled job added")
	s.jobs[identifier] = entryID
	return int(entryID), nil
}

// AddJobWithSpec adds a job using a cron specification string.
func (s *service) AddJobWithSpec(job cron.Job, spec string, identifier string) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if _, exists := s.jobs[identifier]; exists {
		s.log.Warn().Str("identifier", identifier).Msg("Job with this identifier already exists, skipping add.")
		return 0, fmt.Errorf("job with identifier '%s' already exists", identifier)
	}

	entryID, err := s.cron.AddJob(spec, cron.NewChain(
		cron.SkipIfStillRunning(cron.DefaultLogger)).Then(job))

	if err != nil {
		s.log.Error().Err(err).Str("identifier", identifier).Str("spec", spec).Msg("Failed to add job with spec")
		return 0, fmt.Errorf("failed to add job '%s' with spec '%s': %w", identifier, spec, err)
	}

	s.log.Info().Str("identifier", identifier).Str("spec", spec).Int("entryID", int(entryID)).Msg("Scheduled job added")
	s.jobs[identifier] = entryID
	return int(entryID), nil
}

func (s *service) RemoveJobByIdentifier(id string) error {
	s.m.Lock()
	defer s.m.Unlock()

	v, ok := s.jobs[id]
	if !ok {
		return nil
	}

	s.log.Debug().Msgf("scheduler.Remove: removing job: %v", id)

	s.cron.Remove(v)
	delete(s.jobs, id)

	return nil
}

func (s *service) GetNextRun(id string) (time.Time, error) {
	entry := s.getEntryById(id)

	if !entry.Valid() {
		return time.Time{}, nil
	}

	return entry.Next, nil
}

func (s *service) getEntryById(id string) cron.Entry {
	s.m.Lock()
	defer s.m.Unlock()

	v, ok := s.jobs[id]
	if !ok {
		return cron.Entry{}
	}

	return s.cron.Entry(v)
}
