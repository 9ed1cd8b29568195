// Package service exposes reviews over a local HTTP API so editors and
// CI hooks can drive them without spawning a fresh process per review.
package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"crev/internal/config"
	"crev/internal/index"
	"crev/internal/logging"
	"crev/internal/review"
	"crev/internal/session"
)

// Server holds the running service: the current index, the review
// runner, and the HTTP listener.
type Server struct {
	cfg     config.ServiceConfig
	root    string
	runner  *review.Runner
	store   *session.Store
	builder *index.Builder
	version string

	mu        sync.RWMutex
	idx       *index.Index
	startedAt time.Time

	httpSrv *http.Server
}

// NewServer wires a service around an already built index.
func NewServer(cfg config.ServiceConfig, root string, runner *review.Runner, store *session.Store, builder *index.Builder, idx *index.Index, version string) *Server {
	s := &Server{
		cfg:       cfg,
		root:      root,
		runner:    runner,
		store:     store,
		builder:   builder,
		version:   version,
		idx:       idx,
		startedAt: time.Now(),
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Index returns the current index snapshot.
func (s *Server) Index() *index.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

// Refresh re-parses the changed paths and swaps in the updated index.
// Reviews already in flight keep the snapshot they started with.
func (s *Server) Refresh(ctx context.Context, changed []string) error {
	s.mu.RLock()
	current := s.idx
	s.mu.RUnlock()

	updated, err := s.builder.Update(ctx, current, changed)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.idx = updated
	s.mu.Unlock()

	logging.Info("index refreshed", "changed", len(changed), "files", updated.Stats.TotalFiles)
	return nil
}

// Rebuild discards the current index and builds a fresh one.
func (s *Server) Rebuild(ctx context.Context) error {
	updated, err := s.builder.Build(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.idx = updated
	s.mu.Unlock()

	logging.Info("index rebuilt", "files", updated.Stats.TotalFiles, "symbols", updated.Stats.TotalSymbols)
	return nil
}

// ListenAndServe blocks serving HTTP until Shutdown is called or the
// listener fails.
func (s *Server) ListenAndServe() error {
	logging.Info("service listening", "addr", s.cfg.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// busyReview reports whether err means the session is locked by
// another review.
func busyReview(err error) bool {
	return errors.Is(err, session.ErrSessionBusy)
}
