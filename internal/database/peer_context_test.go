package database

import (
	"context"
	"testing"

	"github.com/echome/echosync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerContextRepo_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := NewPeerContextRepo(logger.Mock(), setupTestDB(t, ""))

	got, err := repo.GetContext(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.SetContext(ctx, []byte(`{"type":"favoriteIds","favoriteIds":["a"]}`)))
	require.NoError(t, repo.SetContext(ctx, []byte(`{"type":"favoriteIds","favoriteIds":["b"]}`)))

	got, err = repo.GetContext(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"favoriteIds","favoriteIds":["b"]}`, string(got))
}
