// ABOUTME: Gateway orchestrator wiring registry, store, ingestion, and both listeners.
// ABOUTME: Runs the agent websocket server and the admin HTTP server until shutdown.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/acx-labs/fleetgate/internal/agent"
	"github.com/acx-labs/fleetgate/internal/config"
	"github.com/acx-labs/fleetgate/internal/control"
	"github.com/acx-labs/fleetgate/internal/distribute"
	"github.com/acx-labs/fleetgate/internal/ingest"
	"github.com/acx-labs/fleetgate/internal/store"
)

// Gateway wires the control plane together: the live agent registry, the
// persistent store, the distribution service, the ingestion engine, and the
// two listeners (agent websocket, admin HTTP).
type Gateway struct {
	config     *config.Config
	logger     *slog.Logger
	registry   *agent.Registry
	store      *store.SQLiteStore
	distribute *distribute.Service
	ingest     *ingest.Engine

	wsServer    *http.Server
	adminServer *http.Server
}

// New builds a gateway from configuration. The store is opened (and its
// schema created) here; Run starts the listeners.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	registry := agent.NewRegistry(logger.With("component", "registry"))
	dist := distribute.NewService(registry, cfg.Scripts.Dir, logger.With("component", "distribute"))
	eng := ingest.New(st, ingest.Config{
		Interval:          cfg.Ingest.Interval,
		ResetStaleRunning: cfg.Ingest.ResetStaleRunning,
		StaleAfter:        cfg.Ingest.StaleAfter,
	}, logger.With("component", "ingest"))

	g := &Gateway{
		config:     cfg,
		logger:     logger,
		registry:   registry,
		store:      st,
		distribute: dist,
		ingest:     eng,
	}

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", control.NewHandler(registry, st, logger.With("component", "control")))
	g.wsServer = &http.Server{
		Addr:    cfg.Server.WSAddr,
		Handler: wsMux,
	}

	g.adminServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.adminMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Run starts the ingestion loop and both servers, then blocks until ctx is
// cancelled or a listener fails. Shutdown is graceful with a fresh timeout
// since ctx is already done by then.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("gateway starting",
		"ws_addr", g.config.Server.WSAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	var wg sync.WaitGroup
	ingestCtx, stopIngest := context.WithCancel(ctx)
	defer stopIngest()

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.ingest.Run(ingestCtx)
	}()

	errCh := make(chan error, 2)
	go func() {
		if err := g.wsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("websocket server: %w", err)
		}
	}()
	go func() {
		if err := g.adminServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
	case serverErr = <-errCh:
		g.logger.Error("server failed", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	stopIngest()
	wg.Wait()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown stops both servers and closes the store. It runs on a
// fresh context because the run context is already cancelled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the listeners and closes the store. Safe to call once
// after Run returns or instead of Run if the gateway never started.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error

	if err := g.adminServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
	}
	if err := g.wsServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket server shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	g.logger.Info("gateway stopped")
	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once at least one agent is connected.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	n := len(g.registry.Snapshot())
	if n == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", n)
}
