// Package webhook accepts inbound HTTP deliveries (slash commands,
// interactive callbacks, outgoing webhooks) and feeds the raw body into
// the digestion pipeline. It also serves /healthz and /metrics.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slackwire/internal/event"
	"slackwire/internal/runtime/supervisor"
	logx "slackwire/pkg/logx"
)

// maxBodyBytes bounds one delivery; Slack payloads are far smaller.
const maxBodyBytes int64 = 1 << 20

// Digester is the digestion boundary: anything that can turn raw bytes
// into a dispatched canonical record.
type Digester interface {
	Digest(raw []byte) (event.Record, error)
}

type Config struct {
	Addr string
	Path string
}

type Server struct {
	cfg Config
	log logx.Logger

	digester Digester
	gatherer prometheus.Gatherer

	srv *http.Server
	sup *supervisor.Supervisor
}

type Option func(*Server)

// WithMetricsGatherer exposes g on /metrics.
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func New(cfg Config, d Digester, log logx.Logger, opts ...Option) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, log: log, digester: d}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post(cfg.Path, s.handleDelivery)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// handleDelivery pushes the accumulated body bytes into digestion. The
// decoder handles both JSON and form-encoded bodies, so the content
// type is not inspected here.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if _, err := s.digester.Digest(body); err != nil {
		s.log.Warn("webhook delivery rejected", logx.Err(err))
		http.Error(w, "undecodable delivery", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Start serves in the background until ctx is done, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log.With(logx.String("comp", "webhook"))))

	s.sup.Go("webhook.serve", func(context.Context) error {
		s.log.Info("webhook listening", logx.String("addr", s.cfg.Addr), logx.String("path", s.cfg.Path))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	s.sup.Go0("webhook.shutdown_on_cancel", func(c context.Context) {
		<-c.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	})
	return nil
}

// Stop shuts the server down and waits for its goroutines.
func (s *Server) Stop(ctx context.Context) error {
	if s.sup == nil {
		return nil
	}
	s.sup.Cancel()
	err := s.sup.Wait(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
