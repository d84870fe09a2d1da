package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cuzdan/internal/core"
	"cuzdan/internal/highlight"
	"cuzdan/internal/log"
	"cuzdan/internal/services"
	"cuzdan/internal/store"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	switch {
	case s.store == nil:
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	default:
		checks["store"] = "ok"
		if p, ok := s.store.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				checks["store"] = "failed: " + err.Error()
				status, httpStatus = "not_ready", http.StatusServiceUnavailable
			}
		}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

type highlightsResponse struct {
	UserID     string                 `json:"userId"`
	Options    highlight.Options      `json:"options"`
	Count      int                    `json:"count"`
	Highlights []core.HighlightedDate `json:"highlights"`
}

// highlightOptions reads past, future and cards from the query, falling back
// to the configured defaults.
func (s *Server) highlightOptions(r *http.Request) (highlight.Options, error) {
	opts := s.defaults
	var err error
	if opts.PastMonths, err = queryWindow(r, "past", s.defaults.PastMonths); err != nil {
		return opts, err
	}
	if opts.FutureMonths, err = queryWindow(r, "future", s.defaults.FutureMonths); err != nil {
		return opts, err
	}
	if opts.IncludeCards, err = queryBool(r, "cards", s.defaults.IncludeCards); err != nil {
		return opts, err
	}
	return opts.Normalize(), nil
}

func (s *Server) handleHighlights(w http.ResponseWriter, r *http.Request) {
	if s.calendar == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar not configured")
		return
	}
	userID := chi.URLParam(r, "userID")
	opts, err := s.highlightOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.calendar.Highlights(r.Context(), userID, opts)
	if err != nil {
		handleServiceError(w, r, err, log.OpCompose)
		return
	}
	highlight.Sort(events)

	writeJSON(w, http.StatusOK, highlightsResponse{
		UserID:     userID,
		Options:    opts,
		Count:      len(events),
		Highlights: events,
	})
}

// handleHighlightStream pushes the composed highlights as server-sent events,
// once on connect and again after every change to the user's data.
func (s *Server) handleHighlightStream(w http.ResponseWriter, r *http.Request) {
	if s.calendar == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar not configured")
		return
	}
	userID := chi.URLParam(r, "userID")
	opts, err := s.highlightOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Only the latest snapshot matters to a slow client.
	updates := make(chan []core.HighlightedDate, 1)
	stop, err := s.calendar.Watch(r.Context(), userID, opts, func(events []core.HighlightedDate) {
		for {
			select {
			case updates <- events:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	if err != nil {
		handleServiceError(w, r, err, log.OpWatch)
		return
	}
	defer stop()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case events := <-updates:
			highlight.Sort(events)
			data, err := json.Marshal(highlightsResponse{UserID: userID, Options: opts, Count: len(events), Highlights: events})
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: highlights\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	transactions, err := store.NewCollection[core.Transaction](s.store, store.Transactions, s.logger).List(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		handleServiceError(w, r, err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, core.Summarize(transactions, year, month))
}

func (s *Server) preferences() *store.Collection[core.NotificationPreferences] {
	return store.NewCollection[core.NotificationPreferences](s.store, store.Notifications, s.logger)
}

func (s *Server) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.preferences().Get(r.Context(), chi.URLParam(r, "userID"), services.PreferencesID)
	if errors.Is(err, core.ErrNotFound) {
		prefs, err = core.DefaultNotificationPreferences(), nil
	}
	if err != nil {
		handleServiceError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	prefs := core.DefaultNotificationPreferences()
	if err := decodeBody(w, r, &prefs); err != nil {
		handleServiceError(w, r, err, log.OpUpdate)
		return
	}
	if err := prefs.Validate(); err != nil {
		handleServiceError(w, r, err, log.OpValidate)
		return
	}
	saved, err := s.preferences().Put(r.Context(), userID, services.PreferencesID, prefs)
	if err != nil {
		handleServiceError(w, r, err, log.OpUpdate)
		return
	}
	s.metrics.IncrDocumentWrite(store.Notifications, log.OpUpdate)
	writeJSON(w, http.StatusOK, saved)
}

type minimumPaymentResponse struct {
	CardID  string  `json:"cardId"`
	Bank    string  `json:"bankName"`
	Balance float64 `json:"balance"`
	Minimum float64 `json:"minimum"`
}

func (s *Server) handleMinimumPayment(w http.ResponseWriter, r *http.Request) {
	balance, err := core.ParseAmount(r.URL.Query().Get("balance"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "balance must be a non-negative amount")
		return
	}
	cards := store.NewCollection[core.BankCard](s.store, store.Cards, s.logger)
	card, err := cards.Get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, minimumPaymentResponse{
		CardID:  card.ID,
		Bank:    card.BankName,
		Balance: balance,
		Minimum: core.MinimumPayment(card, balance),
	})
}

type scheduleResponse struct {
	InstallmentID string                  `json:"installmentId"`
	Entries       []core.InstallmentEntry `json:"entries"`
}

func (s *Server) handleInstallmentSchedule(w http.ResponseWriter, r *http.Request) {
	installments := store.NewCollection[core.Installment](s.store, store.Installments, s.logger)
	inst, err := installments.Get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err, log.OpRead)
		return
	}
	entries, err := inst.Schedule()
	if err != nil {
		handleServiceError(w, r, err, log.OpCompose)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{InstallmentID: inst.ID, Entries: entries})
}
