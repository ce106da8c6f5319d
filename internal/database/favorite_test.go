package database

import (
	"context"
	"testing"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFavoriteRepo_LoadState_Empty(t *testing.T) {
	repo := NewFavoriteRepo(logger.Mock(), setupTestDB(t, ""))

	records, pending, err := repo.LoadState(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, pending)
}

func TestFavoriteRepo_SaveState_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewFavoriteRepo(logger.Mock(), setupTestDB(t, ""))

	now := time.Now().UTC().Truncate(time.Second)
	records := []domain.FavoriteRecord{
		{ItemID: "aff-1", Text: "I am enough", SavedAt: now},
		{ItemID: "aff-2", Text: "I am calm", SavedAt: now.Add(time.Minute)},
	}
	pending := []domain.PendingOperation{
		{ID: "op-b", Seq: 2, ItemID: "aff-2", Text: "I am calm", IsAdding: true, EnqueuedAt: now, Attempts: 3},
		{ID: "op-a", Seq: 1, ItemID: "aff-3", IsAdding: false, EnqueuedAt: now},
	}

	require.NoError(t, repo.SaveState(ctx, records, pending))

	gotRecords, gotPending, err := repo.LoadState(ctx)
	require.NoError(t, err)

	require.Len(t, gotRecords, 2)
	assert.Equal(t, "aff-2", gotRecords[0].ItemID, "newest first")
	assert.Equal(t, "I am enough", gotRecords[1].Text)
	assert.True(t, gotRecords[1].SavedAt.Equal(now))

	require.Len(t, gotPending, 2)
	assert.Equal(t, "op-a", gotPending[0].ID, "ordered by seq")
	assert.False(t, gotPending[0].IsAdding)
	assert.Equal(t, "op-b", gotPending[1].ID)
	assert.True(t, gotPending[1].IsAdding)
	assert.Equal(t, 3, gotPending[1].Attempts)
}

func TestFavoriteRepo_SaveState_Replaces(t *testing.T) {
	ctx := context.Background()
	repo := NewFavoriteRepo(logger.Mock(), setupTestDB(t, ""))

	require.NoError(t, repo.SaveState(ctx,
		[]domain.FavoriteRecord{{ItemID: "aff-1", SavedAt: time.Now()}},
		[]domain.PendingOperation{{ID: "op-1", Seq: 1, ItemID: "aff-1", IsAdding: true, EnqueuedAt: time.Now()}},
	))
	require.NoError(t, repo.SaveState(ctx, []domain.FavoriteRecord{{ItemID: "aff-9", SavedAt: time.Now()}}, nil))

	records, pending, err := repo.LoadState(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "aff-9", records[0].ItemID)
	assert.Empty(t, pending)
}

func TestFavoriteRepo_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := NewDB(newTestConfig("sqlite", dir), logger.Mock())
	require.NoError(t, err)
	require.NoError(t, db.Open())

	require.NoError(t, NewFavoriteRepo(logger.Mock(), db).SaveState(ctx,
		[]domain.FavoriteRecord{{ItemID: "aff-1", Text: "I am enough", SavedAt: time.Now()}},
		[]domain.PendingOperation{{ID: "op-1", Seq: 1, ItemID: "aff-1", Text: "I am enough", IsAdding: true, EnqueuedAt: time.Now()}},
	))
	require.NoError(t, db.Close())

	records, pending, err := NewFavoriteRepo(logger.Mock(), setupTestDB(t, dir)).LoadState(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, pending, 1)
	assert.Equal(t, "op-1", pending[0].ID)
}
