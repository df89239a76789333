package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"portfolio-srv/internal/config"
	"portfolio-srv/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShuffleCommandPrintsBoard(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"shuffle", "--seed", "42", "--moves", "150"})

	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, 1, strings.Count(out.String(), "."))
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Portfolio-Srv")
}

func TestNewAppWithMemoryStore(t *testing.T) {
	cfg := &config.Config{
		StoreDriver:     database.DriverMemory,
		AdminPassphrase: "secret",
		MaxAttempts:     3,
		LockTime:        1,
		ShuffleMoves:    100,
		GameIdleMinutes: 30,
		NotifyToName:    "Owner",
	}

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/puzzle", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, a.games.Len())

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/isalive", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotifyCommandWithoutChannels(t *testing.T) {
	t.Setenv("EMAILJS_SERVICE_ID", "")
	t.Setenv("NATS_URL", "")

	cmd := rootCmd()
	cmd.SetArgs([]string{"notify", "-m", "hello"})
	assert.NoError(t, cmd.Execute())
}
