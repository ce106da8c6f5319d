package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNew_WritesTemplateOnFirstRun(t *testing.T) {
	dir := t.TempDir()

	cfg := New(dir, "dev")

	_, err := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	c := cfg.Current()
	assert.Equal(t, "dev", c.Version)
	assert.Equal(t, string(domain.RolePhone), c.Role)
	assert.Equal(t, "sqlite", c.Database.Type)
	assert.Equal(t, 8383, c.Server.Port)
	assert.Equal(t, 5*time.Second, c.Sync.RetryDelay)
	assert.Equal(t, 4*time.Hour, c.Content.RefreshInterval)
	assert.Equal(t, "1.0.0", c.Peer.ProtocolVersion)

	require.NotEmpty(t, c.Peer.PairingToken)
	require.NotEmpty(t, c.Peer.PairingTokenHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(c.Peer.PairingTokenHash), []byte(c.Peer.PairingToken)))
}

func TestNew_ReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	content := `
role = "watch"
user_id = "user-1"

[sync]
retry_delay = "250ms"
max_retry_delay = "2s"

[content]
batch_size = 10
categories = ["calm", "gratitude"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

	c := New(dir, "1.2.3").Current()

	assert.Equal(t, "watch", c.Role)
	assert.Equal(t, "user-1", c.UserID)
	assert.Equal(t, 250*time.Millisecond, c.Sync.RetryDelay)
	assert.Equal(t, 2*time.Second, c.Sync.MaxRetryDelay)
	assert.Equal(t, 10, c.Content.BatchSize)
	assert.Equal(t, []string{"calm", "gratitude"}, c.Content.Categories)
	// untouched sections keep defaults
	assert.Equal(t, "http", c.Remote.Type)
	assert.Equal(t, 5*time.Minute, c.Sync.FlushInterval)
}

func TestUpdate(t *testing.T) {
	cfg := New(t.TempDir(), "dev")

	level := "INFO"
	delay := "1s"
	require.NoError(t, cfg.Update(domain.ConfigUpdate{
		LogLevel:   &level,
		RetryDelay: &delay,
		Categories: []string{"calm"},
	}))

	c := cfg.Current()
	assert.Equal(t, "INFO", c.Logging.Level)
	assert.Equal(t, time.Second, c.Sync.RetryDelay)
	assert.Equal(t, []string{"calm"}, c.Content.Categories)

	bad := "soon"
	assert.Error(t, cfg.Update(domain.ConfigUpdate{RetryDelay: &bad}))
}

func TestWriteConfig_KeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`role = "watch"`), 0o644))

	require.NoError(t, writeConfig(dir, "config.toml"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `role = "watch"`, string(b))
}
