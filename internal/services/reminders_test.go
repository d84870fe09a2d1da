package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cuzdan/internal/amqp"
	"cuzdan/internal/core"
	"cuzdan/internal/metrics"
	"cuzdan/internal/store"
	"cuzdan/internal/store/memory"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ReminderMessage
	err  error
}

func (p *fakePublisher) PublishReminder(_ context.Context, msg *amqp.ReminderMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func seedReminderData(t *testing.T, s store.DocumentStore) {
	t.Helper()
	ctx := context.Background()
	prefs := store.NewCollection[core.NotificationPreferences](s, store.Notifications, nil)
	payments := store.NewCollection[core.Payment](s, store.Payments, nil)
	cards := store.NewCollection[core.BankCard](s, store.Cards, nil)

	if _, err := prefs.Put(ctx, "alice", PreferencesID, core.NotificationPreferences{
		Enabled: true, LeadDays: 3, Types: []core.HighlightType{core.HighlightPayment},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := prefs.Put(ctx, "bob", PreferencesID, core.NotificationPreferences{Enabled: false, LeadDays: 3}); err != nil {
		t.Fatal(err)
	}
	for _, user := range []string{"alice", "bob", "carol"} {
		if _, err := payments.Put(ctx, user, "", core.Payment{
			PaymentType: core.Fixed, Name: "Kira", Amount: 5000, Status: core.Pending, PaymentDay: core.Day(17),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := cards.Put(ctx, "alice", "", core.BankCard{BankName: "Örnek Bank", PaymentDueDate: "16"}); err != nil {
		t.Fatal(err)
	}
}

func TestProcessDue(t *testing.T) {
	s := memory.New()
	defer s.Close()
	seedReminderData(t, s)

	pub := &fakePublisher{}
	m := metrics.New()
	p := NewReminderProcessor(s, pub, m, nil, DefaultReminderProcessorConfig())

	n, err := p.ProcessDue(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if n != 1 || pub.count() != 1 {
		t.Fatalf("published %d (publisher saw %d), want 1", n, pub.count())
	}

	msg := pub.msgs[0]
	if msg.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", msg.UserID)
	}
	if msg.Type != core.HighlightPayment {
		t.Errorf("Type = %q, want payment", msg.Type)
	}
	if msg.Date.String() != "2024-01-17" {
		t.Errorf("Date = %s, want 2024-01-17", msg.Date)
	}
	if msg.DaysLeft != 2 {
		t.Errorf("DaysLeft = %d, want 2", msg.DaysLeft)
	}

	t.Run("already sent reminders are skipped", func(t *testing.T) {
		n, err := p.ProcessDue(context.Background(), fixedNow)
		if err != nil {
			t.Fatalf("ProcessDue() error = %v", err)
		}
		if n != 0 {
			t.Fatalf("second run published %d, want 0", n)
		}
		if got := m.CounterValue("reminders", "skipped"); got != 1 {
			t.Errorf("skipped = %v, want 1", got)
		}
	})

	t.Run("sent reminder is recorded", func(t *testing.T) {
		sent := store.NewCollection[SentReminder](s, store.Reminders, nil)
		record, err := sent.Get(context.Background(), "alice", msg.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if record.Type != core.HighlightPayment || record.ID != msg.ID {
			t.Errorf("record = %+v", record)
		}
	})
}

func TestProcessDueOutsideLeadTime(t *testing.T) {
	s := memory.New()
	defer s.Close()
	seedReminderData(t, s)

	pub := &fakePublisher{}
	p := NewReminderProcessor(s, pub, nil, nil, DefaultReminderProcessorConfig())

	n, err := p.ProcessDue(context.Background(), time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("published %d, want 0", n)
	}
}

func TestProcessDuePublishFailure(t *testing.T) {
	s := memory.New()
	defer s.Close()
	seedReminderData(t, s)

	pub := &fakePublisher{err: errors.New("broker down")}
	m := metrics.New()
	p := NewReminderProcessor(s, pub, m, nil, DefaultReminderProcessorConfig())

	n, err := p.ProcessDue(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("published %d, want 0", n)
	}
	if got := m.CounterValue("reminders", "failed"); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()

	n, err = p.ProcessDue(context.Background(), fixedNow)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("retry published %d, want 1", n)
	}
}

func TestProcessDueNotInitialized(t *testing.T) {
	p := NewReminderProcessor(nil, nil, nil, nil, ReminderProcessorConfig{})
	if _, err := p.ProcessDue(context.Background(), fixedNow); err == nil {
		t.Fatal("expected error for processor without store")
	}
}

func TestReminderIDIsStable(t *testing.T) {
	event := core.HighlightedDate{Date: core.NewDate(2024, 1, 17), Type: core.HighlightPayment, Description: "Kira"}
	if ReminderID(event) != ReminderID(event) {
		t.Fatal("ReminderID is not deterministic")
	}
	other := event
	other.Date = core.NewDate(2024, 2, 17)
	if ReminderID(event) == ReminderID(other) {
		t.Fatal("different dates share a reminder id")
	}
	if len(ReminderID(event)) != 40 {
		t.Fatalf("ReminderID length = %d, want 40", len(ReminderID(event)))
	}
}

func TestReminderProcessorLifecycle(t *testing.T) {
	s := memory.New()
	defer s.Close()
	p := NewReminderProcessor(s, LogPublisher{}, nil, nil, ReminderProcessorConfig{Interval: time.Hour})

	if p.IsRunning() {
		t.Fatal("processor should not be running initially")
	}
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !p.IsRunning() {
		t.Fatal("processor should be running after Start")
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("expected error when starting already running processor")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if p.IsRunning() {
		t.Fatal("processor should not be running after Stop")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestProcessDueLongLeadSpansMonths(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	prefs := store.NewCollection[core.NotificationPreferences](s, store.Notifications, nil)
	payments := store.NewCollection[core.Payment](s, store.Payments, nil)
	if _, err := prefs.Put(ctx, "alice", PreferencesID, core.NotificationPreferences{
		Enabled: true, LeadDays: 31, Types: []core.HighlightType{core.HighlightPayment},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := payments.Put(ctx, "alice", "", core.Payment{
		PaymentType: core.Fixed, Name: "Aidat", Amount: 750, Status: core.Pending, PaymentDay: core.Day(2),
	}); err != nil {
		t.Fatal(err)
	}

	pub := &fakePublisher{}
	p := NewReminderProcessor(s, pub, metrics.New(), nil, DefaultReminderProcessorConfig())
	endOfJanuary := time.Date(2024, time.January, 31, 8, 0, 0, 0, time.UTC)
	n, err := p.ProcessDue(ctx, endOfJanuary)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("published %d reminders, want 2", n)
	}
	got := map[string]bool{}
	for _, msg := range pub.msgs {
		got[msg.Date.String()] = true
	}
	for _, want := range []string{"2024-02-02", "2024-03-02"} {
		if !got[want] {
			t.Errorf("missing reminder for %s, got %v", want, got)
		}
	}
}

func TestLeadWindow(t *testing.T) {
	tests := []struct {
		name        string
		today, till core.Date
		want        int
	}{
		{"same month", core.NewDate(2024, 1, 10), core.NewDate(2024, 1, 13), 0},
		{"next month", core.NewDate(2024, 1, 30), core.NewDate(2024, 2, 2), 1},
		{"two months ahead", core.NewDate(2024, 1, 31), core.NewDate(2024, 3, 2), 2},
		{"across the year", core.NewDate(2024, 12, 20), core.NewDate(2025, 1, 20), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := leadWindow(tt.today, tt.till)
			if opts.PastMonths != 0 || opts.FutureMonths != tt.want || !opts.IncludeCards {
				t.Fatalf("leadWindow() = %+v, want future %d", opts, tt.want)
			}
		})
	}
}
