// Package server exposes a window.Manager over HTTP: a page with the drop
// zone, window controls and charts, a JSON API, and a websocket stream of
// engine events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/lossdiff/pkg/observability"
	"github.com/Sumatoshi-tech/lossdiff/pkg/plotpage"
	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

const (
	defaultUploadLimit = 32 << 20
	shutdownTimeout    = 10 * time.Second
	readHeaderTimeout  = 10 * time.Second
)

// Options configure a Server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// UploadLimit caps dataset uploads in bytes.
	UploadLimit int64

	SeriesA    string
	SeriesB    string
	Theme      plotpage.Theme
	PlotHeight string

	Logger *slog.Logger
	Tracer trace.Tracer
	RED    *observability.REDMetrics
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// Server serves one window.Manager.
type Server struct {
	manager *window.Manager
	opts    Options
	logger  *slog.Logger
	hub     *Hub
	handler http.Handler

	unsubscribe func()
}

// New creates a Server and subscribes its event hub to manager.
func New(manager *window.Manager, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Tracer == nil {
		opts.Tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	if opts.UploadLimit <= 0 {
		opts.UploadLimit = defaultUploadLimit
	}

	s := &Server{
		manager: manager,
		opts:    opts,
		logger:  opts.Logger,
		hub:     NewHub(opts.Logger),
	}

	s.unsubscribe = manager.Subscribe(s.hub.Publish)
	s.handler = observability.HTTPMiddleware(opts.Tracer, opts.RED, s.routes())

	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("POST /api/dataset", s.handleDataset)
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("PUT /api/window", s.handleWindow)
	mux.HandleFunc("PUT /api/window/start", s.handleStage("start", s.manager.SetWindowStart))
	mux.HandleFunc("PUT /api/window/end", s.handleStage("end", s.manager.SetWindowEnd))
	mux.HandleFunc("POST /api/replot", s.handleReplot)
	mux.Handle("GET /ws", s.hub)
	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler(s.hub.Ready))

	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}

	return mux
}

// Handler returns the HTTP handler with tracing and RED metrics applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the websocket event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run listens on Options.Addr and serves until ctx is done, then shuts down
// gracefully. The event hub runs for the lifetime of the call.
func (s *Server) Run(ctx context.Context) error {
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener, which it closes.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	defer s.unsubscribe()

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()

	go s.hub.Run(hubCtx)

	// Accepting starts only after the hub runs, so /readyz and /ws never see it stopped.
	<-s.hub.Started()

	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- srv.Serve(listener)
	}()

	s.logger.InfoContext(ctx, "server listening", "addr", "http://"+listener.Addr().String())

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.InfoContext(ctx, "server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		return errors.Join(fmt.Errorf("shutdown: %w", shutdownErr), srv.Close())
	}

	err := <-serveErr
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}
