// Package http serves the calendar and document API.
package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cuzdan/internal/core"
	"cuzdan/internal/highlight"
	"cuzdan/internal/log"
	"cuzdan/internal/metrics"
	"cuzdan/internal/middleware/ratelimit"
	"cuzdan/internal/middleware/security"
	"cuzdan/internal/services"
	"cuzdan/internal/store"
)

// Deps are the collaborators of a Server.
type Deps struct {
	Store    store.DocumentStore
	Calendar *services.CalendarService
	Metrics  *metrics.Metrics
	Logger   *log.Logger
	// Defaults apply when a highlights request leaves a parameter out.
	Defaults  highlight.Options
	RateLimit ratelimit.Config
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server
	store        store.DocumentStore
	calendar     *services.CalendarService
	metrics      *metrics.Metrics
	logger       *log.Logger
	limiter      *ratelimit.Limiter
	defaults     highlight.Options
	now          func() time.Time
	started      time.Time
	resources    []resource
	shutdownOnce sync.Once
}

func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		store:    deps.Store,
		calendar: deps.Calendar,
		metrics:  deps.Metrics,
		logger:   logger.WithComponent(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		defaults: deps.Defaults,
		now:      now,
		started:  time.Now(),
	}
	s.resources = []resource{
		newResource[core.Transaction](deps.Store, store.Transactions, logger, true),
		newResource[core.Payment](deps.Store, store.Payments, logger, true),
		newResource[core.BankCard](deps.Store, store.Cards, logger, true),
		newResource[core.Installment](deps.Store, store.Installments, logger, false),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.Middleware(s.logger))
	r.Use(log.AccessLog(s.logger))
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Get("/highlights", s.handleHighlights)
		r.Get("/highlights/stream", s.handleHighlightStream)
		r.Get("/overview", s.handleOverview)
		r.Get("/notifications", s.handleGetNotifications)
		r.With(s.writeLimit).Put("/notifications", s.handlePutNotifications)

		for _, res := range s.resources {
			res := res
			r.Route("/"+res.name(), func(r chi.Router) {
				s.mountResource(r, res)
				switch res.name() {
				case store.Cards:
					r.Get("/{id}/minimum-payment", s.handleMinimumPayment)
				case store.Installments:
					r.Get("/{id}/schedule", s.handleInstallmentSchedule)
				}
			})
		}
	})

	return r
}

// writeLimit rate limits state changing requests per client IP.
func (s *Server) writeLimit(next http.Handler) http.Handler {
	return s.limiter.Middleware(
		clientIP,
		func(w http.ResponseWriter, r *http.Request) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, clientIP(r),
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		},
	)(next)
}

// clientIP is the remote address without its port. RealIP has already
// applied any forwarding headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// instrument records request duration by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordRequest(route, status, time.Since(start))
	})
}

// Shutdown stops background work and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(s.limiter.Stop)
	return s.Server.Shutdown(ctx)
}
