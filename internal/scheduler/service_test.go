package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFlusher struct {
	calls atomic.Int32
}

func (f *countingFlusher) FlushPending(ctx context.Context) error {
	f.calls.Add(1)
	return nil
}

type fakeContent struct {
	stale     bool
	refreshed atomic.Int32
}

func (c *fakeContent) NeedsRefresh() bool { return c.stale }

func (c *fakeContent) Refresh(ctx context.Context, categories []string) error {
	c.refreshed.Add(1)
	return nil
}

type fakeCompanion struct {
	calls atomic.Int32
}

func (c *fakeCompanion) RefreshContent(ctx context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestStart_SchedulesConfiguredJobs(t *testing.T) {
	cfg := &domain.Config{
		Sync:    domain.SyncConfig{FlushInterval: time.Minute},
		Content: domain.ContentConfig{RefreshInterval: time.Hour},
	}
	svc := NewService(logger.Mock(), cfg, Jobs{Favorites: &countingFlusher{}, Content: &fakeContent{}})
	svc.Start()
	defer svc.Stop()

	next, err := svc.GetNextRun(jobFlushPending)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), next, 2*time.Second)

	next, err = svc.GetNextRun(jobRefreshContent)
	require.NoError(t, err)
	assert.False(t, next.IsZero())

	next, err = svc.GetNextRun(jobRefreshFromPeer)
	require.NoError(t, err)
	assert.True(t, next.IsZero())
}

func TestAddJob_DuplicateIdentifier(t *testing.T) {
	svc := NewService(logger.Mock(), &domain.Config{}, Jobs{})

	_, err := svc.AddJob(&FlushPendingJob{Favorites: &countingFlusher{}}, time.Minute, "job")
	require.NoError(t, err)

	_, err = svc.AddJob(&FlushPendingJob{Favorites: &countingFlusher{}}, time.Minute, "job")
	assert.Error(t, err)

	_, err = svc.AddJobWithSpec(&FlushPendingJob{Favorites: &countingFlusher{}}, "not a spec", "other")
	assert.Error(t, err)

	require.NoError(t, svc.RemoveJobByIdentifier("job"))
	require.NoError(t, svc.RemoveJobByIdentifier("missing"))

	next, err := svc.GetNextRun("job")
	require.NoError(t, err)
	assert.True(t, next.IsZero())
}

func TestJobs(t *testing.T) {
	flusher := &countingFlusher{}
	(&FlushPendingJob{Log: logger.Mock().With().Logger(), Favorites: flusher}).Run()
	assert.EqualValues(t, 1, flusher.calls.Load())

	fresh := &fakeContent{}
	(&RefreshContentJob{Content: fresh}).Run()
	assert.EqualValues(t, 0, fresh.refreshed.Load())

	stale := &fakeContent{stale: true}
	(&RefreshContentJob{Content: stale}).Run()
	assert.EqualValues(t, 1, stale.refreshed.Load())

	companion := &fakeCompanion{}
	(&CompanionRefreshJob{Companion: companion}).Run()
	assert.EqualValues(t, 1, companion.calls.Load())
}
