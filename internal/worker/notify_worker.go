// Package worker delivers reminder messages taken off the broker.
package worker

import (
	"context"
	"fmt"
	"time"

	"cuzdan/internal/amqp"
	"cuzdan/internal/cache"
	"cuzdan/internal/core"
	"cuzdan/internal/log"
	"cuzdan/internal/metrics"
)

// Notifier delivers one reminder to its user.
type Notifier interface {
	Notify(ctx context.Context, msg *amqp.ReminderMessage) error
}

// LogNotifier delivers reminders by writing them to the log.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Notify(ctx context.Context, msg *amqp.ReminderMessage) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Discard()
	}
	when := "today"
	if msg.DaysLeft > 0 {
		when = fmt.Sprintf("in %d days", msg.DaysLeft)
	}
	logger.InfoContext(ctx, "Reminder delivered",
		log.FieldUserID, msg.UserID,
		log.FieldDate, msg.Date.String(),
		log.FieldHighlightType, string(msg.Type),
		"description", msg.Description,
		"when", when)
	return nil
}

// NotifyWorker hands reminder messages to a Notifier. Redelivered messages
// are dropped while their id is still remembered.
type NotifyWorker struct {
	notifier Notifier
	seen     cache.Cache[struct{}]
	metrics  *metrics.Metrics
	logger   *log.Logger
	now      func() time.Time
}

func NewNotifyWorker(notifier Notifier, seen cache.Cache[struct{}], m *metrics.Metrics, logger *log.Logger) *NotifyWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &NotifyWorker{
		notifier: notifier,
		seen:     seen,
		metrics:  m,
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
	}
}

// HandleReminder processes a single reminder message from AMQP. Returning an
// error asks the broker to redeliver it.
func (w *NotifyWorker) HandleReminder(ctx context.Context, msg *amqp.ReminderMessage) error {
	if w.seen != nil {
		if _, ok := w.seen.Get(msg.ID); ok {
			w.logger.DebugContext(ctx, "Skipping duplicate reminder", "id", msg.ID)
			w.metrics.IncrReminder("duplicate")
			return nil
		}
	}

	now := w.now()
	today := core.NewDate(now.Year(), int(now.Month()), now.Day())
	if msg.Date.Before(today.Time) {
		w.logger.InfoContext(ctx, "Dropping stale reminder",
			"id", msg.ID,
			log.FieldUserID, msg.UserID,
			log.FieldDate, msg.Date.String())
		w.metrics.IncrReminder("stale")
		return nil
	}

	if err := w.notifier.Notify(ctx, msg); err != nil {
		w.metrics.IncrReminder("undelivered")
		return fmt.Errorf("notify %s: %w", msg.UserID, err)
	}

	if w.seen != nil {
		w.seen.Set(msg.ID, struct{}{})
	}
	w.metrics.IncrReminder("delivered")
	return nil
}
