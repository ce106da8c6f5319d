package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const jobTimeout = time.Minute

type Flusher interface {
	FlushPending(ctx context.Context) error
}

type ContentRefresher interface {
	NeedsRefresh() bool
	Refresh(ctx context.Context, categories []string) error
}

type CompanionRefresher interface {
	RefreshContent(ctx context.Context) error
}

// FlushPendingJob retries queued favorite operations in case the flush loop
// missed a kick.
type FlushPendingJob struct {
	Name      string
	Log       zerolog.Logger
	Favorites Flusher
}

func (j *FlushPendingJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := j.Favorites.FlushPending(ctx); err != nil {
		j.Log.Error().Err(err).Msg("periodic flush failed")
	}
}

type RefreshContentJob struct {
	Name       string
	Log        zerolog.Logger
	Content    ContentRefresher
	Categories []string
}

func (j *RefreshContentJob) Run() {
	if !j.Content.NeedsRefresh() {
		j.Log.Trace().Msg("content is fresh")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := j.Content.Refresh(ctx, j.Categories); err != nil {
		j.Log.Error().Err(err).Msg("could not refresh content")
	}
}

// CompanionRefreshJob asks the phone for fresh content on the watch side.
type CompanionRefreshJob struct {
	Name      string
	Log       zerolog.Logger
	Companion CompanionRefresher
}

func (j *CompanionRefreshJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := j.Companion.RefreshContent(ctx); err != nil {
		j.Log.Debug().Err(err).Msg("could not request content from phone")
	}
}
