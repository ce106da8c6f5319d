package database

import (
	"context"
	"testing"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentRepo_ReplaceAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewContentRepo(logger.Mock(), setupTestDB(t, ""))

	items := []domain.ContentItem{
		{ID: "c", Text: "third", Categories: []string{"calm"}, IsActive: true},
		{ID: "a", Text: "first", Categories: []string{"focus", "calm"}, Tone: "gentle", IsActive: true},
		{ID: "c", Text: "duplicate"},
	}
	require.NoError(t, repo.Replace(ctx, items))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c", got[0].ID, "insertion order kept")
	assert.Equal(t, 0, got[0].Order)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, []string{"focus", "calm"}, got[1].Categories)
	assert.Equal(t, "gentle", got[1].Tone)
	assert.True(t, got[1].IsActive)
	assert.False(t, got[1].CachedAt.IsZero())
}

func TestContentRepo_ReplaceEmptyClears(t *testing.T) {
	ctx := context.Background()
	repo := NewContentRepo(logger.Mock(), setupTestDB(t, ""))

	require.NoError(t, repo.Replace(ctx, []domain.ContentItem{{ID: "a", Text: "x"}}))
	require.NoError(t, repo.Replace(ctx, nil))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
