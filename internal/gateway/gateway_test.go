// ABOUTME: Lifecycle tests for gateway startup and graceful shutdown.
// ABOUTME: Runs real listeners on ephemeral ports.

package gateway

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acx-labs/fleetgate/internal/config"
)

func TestRunStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Server.WSAddr = "127.0.0.1:0"
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Database.Path = filepath.Join(dir, "test.db")
	cfg.Scripts.Dir = dir
	cfg.Ingest.Interval = 50 * time.Millisecond

	g, err := New(cfg, slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	// Give the listeners a moment to come up before tearing down.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not shut down after context cancellation")
	}
}

func TestNewCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Database.Path = filepath.Join(dir, "nested", "fleet.db")
	cfg.Scripts.Dir = dir
	cfg.Ingest.Interval = time.Second

	g, err := New(cfg, slog.Default())
	require.NoError(t, err)
	defer g.store.Close()

	_, err = os.Stat(cfg.Database.Path)
	assert.NoError(t, err)
}
