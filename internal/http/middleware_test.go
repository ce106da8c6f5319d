package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerMiddleware(t *testing.T) {
	var buffer strings.Builder
	testLogger := zerolog.New(&buffer).Level(zerolog.DebugLevel)

	handlerCalled := false
	mw := LoggerMiddleware(&testLogger)
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	})

	req := httptest.NewRequest("POST", "/api/favorites/aff-1/toggle", nil)
	rr := httptest.NewRecorder()
	mw(testHandler).ServeHTTP(rr, req)

	assert.True(t, handlerCalled)
	assert.Equal(t, http.StatusCreated, rr.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(buffer.String()), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/api/favorites/aff-1/toggle", line["path"])
	assert.EqualValues(t, http.StatusCreated, line["status"])
	assert.EqualValues(t, 5, line["bytes"])
}

func TestLoggerMiddleware_ServerErrorsLogAtWarn(t *testing.T) {
	var buffer strings.Builder
	testLogger := zerolog.New(&buffer).Level(zerolog.WarnLevel)

	mw := LoggerMiddleware(&testLogger)
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	mw(failing).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/content", nil))

	assert.Contains(t, buffer.String(), `"status":502`)
	assert.Contains(t, buffer.String(), `"level":"warn"`)
}

func TestLoggerMiddleware_RecoversPanic(t *testing.T) {
	var buffer strings.Builder
	testLogger := zerolog.New(&buffer)

	mw := LoggerMiddleware(&testLogger)
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		mw(panicking).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buffer.String(), "Unhandled panic recovered by middleware")
}
