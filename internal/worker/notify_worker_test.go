package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"cuzdan/internal/amqp"
	"cuzdan/internal/cache"
	"cuzdan/internal/core"
	"cuzdan/internal/metrics"
)

type recordingNotifier struct {
	got []*amqp.ReminderMessage
	err error
}

func (n *recordingNotifier) Notify(_ context.Context, msg *amqp.ReminderMessage) error {
	if n.err != nil {
		return n.err
	}
	n.got = append(n.got, msg)
	return nil
}

func newTestWorker(n Notifier) (*NotifyWorker, *metrics.Metrics) {
	m := metrics.New()
	w := NewNotifyWorker(n, cache.NewLRUCache[struct{}](16, time.Hour), m, nil)
	w.now = func() time.Time { return time.Date(2024, time.January, 15, 8, 0, 0, 0, time.UTC) }
	return w, m
}

func reminder(id string, date core.Date) *amqp.ReminderMessage {
	return &amqp.ReminderMessage{ID: id, UserID: "alice", Date: date, Type: core.HighlightPayment, Description: "Kira", DaysLeft: 2}
}

func TestHandleReminder(t *testing.T) {
	tests := []struct {
		name      string
		msgs      []*amqp.ReminderMessage
		delivered int
		outcome   string
	}{
		{
			name:      "delivers upcoming reminder",
			msgs:      []*amqp.ReminderMessage{reminder("a", core.NewDate(2024, 1, 17))},
			delivered: 1,
			outcome:   "delivered",
		},
		{
			name:      "today is not stale",
			msgs:      []*amqp.ReminderMessage{reminder("a", core.NewDate(2024, 1, 15))},
			delivered: 1,
			outcome:   "delivered",
		},
		{
			name:      "drops duplicates",
			msgs:      []*amqp.ReminderMessage{reminder("a", core.NewDate(2024, 1, 17)), reminder("a", core.NewDate(2024, 1, 17))},
			delivered: 1,
			outcome:   "duplicate",
		},
		{
			name:      "drops stale reminders",
			msgs:      []*amqp.ReminderMessage{reminder("a", core.NewDate(2024, 1, 14))},
			delivered: 0,
			outcome:   "stale",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			w, m := newTestWorker(n)
			for _, msg := range tt.msgs {
				if err := w.HandleReminder(context.Background(), msg); err != nil {
					t.Fatalf("HandleReminder() error = %v", err)
				}
			}
			if len(n.got) != tt.delivered {
				t.Fatalf("delivered %d, want %d", len(n.got), tt.delivered)
			}
			if got := m.CounterValue("reminders", tt.outcome); got != 1 {
				t.Errorf("%s count = %v, want 1", tt.outcome, got)
			}
		})
	}
}

func TestHandleReminderNotifierError(t *testing.T) {
	n := &recordingNotifier{err: errors.New("smtp down")}
	w, _ := newTestWorker(n)
	msg := reminder("a", core.NewDate(2024, 1, 17))

	if err := w.HandleReminder(context.Background(), msg); err == nil {
		t.Fatal("expected error so the message is redelivered")
	}

	n.err = nil
	if err := w.HandleReminder(context.Background(), msg); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if len(n.got) != 1 {
		t.Fatalf("delivered %d after retry, want 1", len(n.got))
	}
}

func TestLogNotifier(t *testing.T) {
	if err := (LogNotifier{}).Notify(context.Background(), reminder("a", core.NewDate(2024, 1, 17))); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
}
