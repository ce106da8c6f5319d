//go:build !integration

package logger

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Defaults(t *testing.T) {
	cfg := &domain.Config{
		Version: "dev",
		Logging: domain.LoggingConfig{Level: "DEBUG"},
	}
	l, ok := New(cfg).(*DefaultLogger)
	require.True(t, ok)
	assert.Nil(t, l.lumberjackLog)
	assert.Equal(t, zerolog.DebugLevel, l.level)
}

func TestNewLogger_LogDirCreation(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "logs")
	cfg := &domain.Config{
		Version: "1.0.0",
		Logging: domain.LoggingConfig{
			Level:          "INFO",
			Path:           tmpDir,
			MaxFileSize:    1,
			MaxBackupCount: 1,
		},
	}
	l := New(cfg).(*DefaultLogger)

	assert.DirExists(t, tmpDir)
	require.NotNil(t, l.lumberjackLog)
	assert.True(t, strings.HasPrefix(filepath.Base(l.lumberjackLog.Filename), "echosync-"))
}

func TestSetLogLevel(t *testing.T) {
	l := New(&domain.Config{Version: "dev", Logging: domain.LoggingConfig{Level: "DEBUG"}}).(*DefaultLogger)

	levels := []struct {
		input string
		want  zerolog.Level
	}{
		{"INFO", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"WARN", zerolog.WarnLevel},
		{"TRACE", zerolog.TraceLevel},
		{"INVALID", zerolog.Disabled},
	}
	for _, tc := range levels {
		l.SetLogLevel(tc.input)
		assert.Equal(t, tc.want, l.level, tc.input)
		assert.Equal(t, tc.want, l.log.GetLevel(), tc.input)
	}
}

func TestLoggerMethods(t *testing.T) {
	l := New(&domain.Config{Version: "dev", Logging: domain.LoggingConfig{Level: "DEBUG"}})
	assert.NotPanics(t, func() {
		_ = l.Log()
		_ = l.Error()
		_ = l.Err(errors.New("test"))
		_ = l.Warn()
		_ = l.Info()
		_ = l.Debug()
		_ = l.Trace()
		_ = l.With()
	})
}

func TestRegisterSSEWriter(t *testing.T) {
	l := New(&domain.Config{Version: "dev", Logging: domain.LoggingConfig{Level: "DEBUG"}}).(*DefaultLogger)
	before := len(l.writers)

	l.RegisterSSEWriter(&mockSSE{})

	assert.Len(t, l.writers, before+1)
}

func TestRegisterSSEWriter_PublishesLines(t *testing.T) {
	l := New(&domain.Config{Version: "dev", Logging: domain.LoggingConfig{Level: "DEBUG"}})
	pub := &mockSSE{}
	l.RegisterSSEWriter(pub)

	l.Info().Str("item", "aff-1").Msg("toggled")

	require.NotNil(t, pub.lastPublishedEvent)
	assert.Equal(t, LogStream, pub.lastPublishedTopic)
	assert.Contains(t, string(pub.lastPublishedEvent.Data), "toggled")
	assert.Contains(t, string(pub.lastPublishedEvent.Data), "item=aff-1")
}

func TestCheckRotate(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &domain.Config{
		Version: "1.0.0",
		Logging: domain.LoggingConfig{Level: "INFO", Path: tmpDir, MaxFileSize: 1, MaxBackupCount: 1},
	}
	l := New(cfg).(*DefaultLogger)

	l.currentDate = "2000-01-01"
	l.checkRotate()

	today := time.Now().Format("2006-01-02")
	assert.Equal(t, today, l.currentDate)
	assert.Equal(t, filepath.Join(tmpDir, "echosync-"+today+".log"), l.lumberjackLog.Filename)
}

func TestScheduleRotationCheck_NoLogFile(t *testing.T) {
	l := New(&domain.Config{Version: "dev", Logging: domain.LoggingConfig{Level: "DEBUG"}}).(*DefaultLogger)

	done := make(chan struct{})
	go func() {
		l.scheduleRotationCheck()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("scheduleRotationCheck did not return without a log file")
	}
}

var _ SSEPublisher = (*sse.Server)(nil)
