// Package svc wires every collaborator into one runnable unit and gives
// it a lifecycle the CLI's `serve` command and the OS-service wrapper
// both drive identically.
package svc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sttstudio/internal/api"
	"sttstudio/internal/config"
	"sttstudio/internal/engine"
	"sttstudio/internal/janitor"
	"sttstudio/internal/job"
	"sttstudio/internal/store"
	"sttstudio/pkg/logger"
)

// Studio owns the wiring: store, registry, flusher, queue, engine,
// janitor, and the HTTP router.
type Studio struct {
	cfg *config.Config
}

// New builds an unstarted Studio bound to cfg.
func New(cfg *config.Config) *Studio {
	return &Studio{cfg: cfg}
}

// Run blocks until ctx is cancelled or the HTTP server fails fatally. On
// exit it drains the flusher, stops in-flight jobs, and closes the
// listener.
func (s *Studio) Run(ctx context.Context) error {
	st, err := store.New(s.cfg)
	if err != nil {
		return fmt.Errorf("initialize artifact store: %w", err)
	}

	reg := job.NewRegistry(s.cfg.MetaDir(), s.cfg.LogMaxLines)
	flusher := job.NewFlusher(reg, s.cfg.MetaFlushIntervalSeconds, s.cfg.MetaLogMaxLines)

	_, q, err := engine.Bootstrap(s.cfg, reg, st)
	if err != nil {
		return fmt.Errorf("bootstrap engine: %w", err)
	}

	jan := janitor.New(reg, st, s.cfg)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go flusher.Run(bgCtx)
	go jan.Run(bgCtx)

	handler := api.NewHandler(s.cfg, reg, st, q)
	router := api.SetupRoutes(s.cfg, handler)

	httpServer := &http.Server{
		Addr:    s.cfg.Host + ":" + s.cfg.Port,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Startup("http", fmt.Sprintf("listening on %s:%s", s.cfg.Host, s.cfg.Port))
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	q.Stop()
	bgCancel()
	flusher.FlushAll()
	return nil
}
