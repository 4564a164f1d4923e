// Package api provides the HTTP surface for StageLink: the Twilio WhatsApp
// webhook plus health and stats endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PalcoLivre/StageLink/internal/dispatch"
	"github.com/PalcoLivre/StageLink/internal/flow"
	"github.com/PalcoLivre/StageLink/internal/llm"
	"github.com/PalcoLivre/StageLink/internal/store"
)

// Default server configuration.
const (
	DefaultAddr = ":8080"
	// KnownSubjectWait is the webhook reply ceiling for subjects with existing
	// conversation state; their turns are cheap and usually finish in time.
	KnownSubjectWait = 3 * time.Second
	// NewSubjectWait is the ceiling for first contact, which runs an
	// extraction pass and may create a profile.
	NewSubjectWait = 13 * time.Second

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Opts holds server configuration.
type Opts struct {
	Addr         string
	SlowDownText string
	BusyText     string
	ErrorText    string
	KnownWait    time.Duration
	NewWait      time.Duration
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSlowDownText overrides the reply sent when the processing ceiling fires.
func WithSlowDownText(text string) Option {
	return func(o *Opts) { o.SlowDownText = text }
}

// WithBusyText overrides the reply sent when the dispatch queue is full.
func WithBusyText(text string) Option {
	return func(o *Opts) { o.BusyText = text }
}

// WithErrorText overrides the reply sent on unrecoverable handler errors.
func WithErrorText(text string) Option {
	return func(o *Opts) { o.ErrorText = text }
}

// WithWaitCeilings overrides the synchronous reply ceilings for known and new
// subjects.
func WithWaitCeilings(known, fresh time.Duration) Option {
	return func(o *Opts) {
		o.KnownWait = known
		o.NewWait = fresh
	}
}

// Server wires the webhook to the dispatch queue and exposes operational
// endpoints.
type Server struct {
	queue *dispatch.Queue
	store store.Store
	pool  *llm.Pool
	opts  Opts
}

// NewServer builds the server over its dependencies.
func NewServer(queue *dispatch.Queue, st store.Store, pool *llm.Pool, options ...Option) *Server {
	opts := Opts{
		Addr:         DefaultAddr,
		SlowDownText: flow.MsgSlowDown,
		BusyText:     flow.MsgSystemBusy,
		ErrorText:    "Estamos com uma dificuldade técnica no momento. 😥 Pode tentar de novo em alguns minutos?",
		KnownWait:    KnownSubjectWait,
		NewWait:      NewSubjectWait,
	}
	for _, opt := range options {
		opt(&opts)
	}
	return &Server{queue: queue, store: st, pool: pool, opts: opts}
}

// Handler returns the routed HTTP handler with panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/whatsapp", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	return s.recoverMiddleware(mux)
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("API server shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("API server stopped")
	return nil
}

// recoverMiddleware converts handler panics into a clean 500 so one bad
// message never takes the process down.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("API handler panic recovered", "panic", rec, "path", r.URL.Path)
				if r.URL.Path == "/webhook/whatsapp" {
					writeTwiML(w, s.opts.ErrorText)
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
