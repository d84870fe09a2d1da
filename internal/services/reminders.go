package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"cuzdan/internal/amqp"
	"cuzdan/internal/core"
	"cuzdan/internal/highlight"
	"cuzdan/internal/log"
	"cuzdan/internal/metrics"
	"cuzdan/internal/store"
)

// PreferencesID is the document id of a user's notification preferences.
const PreferencesID = "default"

// ReminderPublisher hands a reminder to whatever delivers it.
type ReminderPublisher interface {
	PublishReminder(ctx context.Context, msg *amqp.ReminderMessage) error
}

// LogPublisher writes reminders to the log. It is used when no broker is configured.
type LogPublisher struct {
	Logger *log.Logger
}

func (p LogPublisher) PublishReminder(ctx context.Context, msg *amqp.ReminderMessage) error {
	logger := p.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger.InfoContext(ctx, "Reminder due",
		log.FieldUserID, msg.UserID,
		log.FieldDate, msg.Date.String(),
		log.FieldHighlightType, string(msg.Type),
		"description", msg.Description,
		"days_left", msg.DaysLeft)
	return nil
}

// SentReminder records a reminder that was already published.
type SentReminder struct {
	ID          string             `json:"id,omitempty"`
	Date        core.Date          `json:"date"`
	Type        core.HighlightType `json:"type"`
	Description string             `json:"description"`
	SentAt      time.Time          `json:"sentAt"`
}

// ReminderID identifies an event across runs.
func ReminderID(event core.HighlightedDate) string {
	sum := sha1.Sum([]byte(event.Date.String() + "|" + string(event.Type) + "|" + event.Description))
	return hex.EncodeToString(sum[:])
}

// ReminderProcessorConfig holds configuration for the reminder processor
type ReminderProcessorConfig struct {
	// Interval is how often Start runs ProcessDue (default: 1h)
	Interval time.Duration
}

// DefaultReminderProcessorConfig returns sensible defaults
func DefaultReminderProcessorConfig() ReminderProcessorConfig {
	return ReminderProcessorConfig{Interval: time.Hour}
}

// ReminderProcessor publishes reminders for upcoming calendar events.
type ReminderProcessor struct {
	store        store.DocumentStore
	preferences  *store.Collection[core.NotificationPreferences]
	sent         *store.Collection[SentReminder]
	transactions *store.Collection[core.Transaction]
	payments     *store.Collection[core.Payment]
	cards        *store.Collection[core.BankCard]
	publisher    ReminderPublisher
	metrics      *metrics.Metrics
	logger       *log.Logger
	config       ReminderProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReminderProcessor(s store.DocumentStore, publisher ReminderPublisher, m *metrics.Metrics, logger *log.Logger, config ReminderProcessorConfig) *ReminderProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultReminderProcessorConfig().Interval
	}
	return &ReminderProcessor{
		store:        s,
		preferences:  store.NewCollection[core.NotificationPreferences](s, store.Notifications, logger),
		sent:         store.NewCollection[SentReminder](s, store.Reminders, logger),
		transactions: store.NewCollection[core.Transaction](s, store.Transactions, logger),
		payments:     store.NewCollection[core.Payment](s, store.Payments, logger),
		cards:        store.NewCollection[core.BankCard](s, store.Cards, logger),
		publisher:    publisher,
		metrics:      m,
		logger:       logger.WithComponent(log.ComponentReminder),
		config:       config,
	}
}

// ProcessDue publishes every reminder that is due at now and not yet sent.
// It returns how many were published. Failures for one user or event are
// logged and skipped.
func (p *ReminderProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.publisher == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	users, err := p.store.Users(ctx, store.Notifications)
	if err != nil {
		return 0, fmt.Errorf("list notification users: %w", err)
	}

	today := core.NewDate(now.Year(), int(now.Month()), now.Day())
	p.logger.InfoContext(ctx, "Processing reminders",
		"users", len(users),
		log.FieldDate, today.String())

	published := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		n, err := p.processUser(ctx, userID, now, today)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to process reminders for user",
				log.FieldUserID, userID,
				log.FieldError, err)
			continue
		}
		published += n
	}

	p.logger.InfoContext(ctx, "Reminders processed", "published", published)
	return published, nil
}

func (p *ReminderProcessor) processUser(ctx context.Context, userID string, now time.Time, today core.Date) (int, error) {
	prefs, err := p.preferences.Get(ctx, userID, PreferencesID)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !prefs.Enabled {
		return 0, nil
	}
	if len(prefs.Types) == 0 {
		prefs.Types = core.DefaultNotificationPreferences().Types
	}

	transactions, err := p.transactions.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	payments, err := p.payments.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	cards, err := p.cards.List(ctx, userID)
	if err != nil {
		return 0, err
	}

	until := core.Date{Time: today.AddDate(0, 0, prefs.LeadDays)}
	events := highlight.Compose(now, transactions, payments, cards, leadWindow(today, until))

	published := 0
	for _, event := range highlight.Between(events, today, until) {
		if !prefs.Wants(event.Type) {
			continue
		}
		ok, err := p.publish(ctx, userID, today, event)
		if err != nil {
			p.metrics.IncrReminder("failed")
			p.logger.ErrorContext(ctx, "Failed to publish reminder",
				log.FieldUserID, userID,
				log.FieldDate, event.Date.String(),
				log.FieldHighlightType, string(event.Type),
				log.FieldError, err)
			continue
		}
		if !ok {
			p.metrics.IncrReminder("skipped")
			continue
		}
		p.metrics.IncrReminder("sent")
		published++
	}
	return published, nil
}

// leadWindow covers every month touched by [today, until].
func leadWindow(today, until core.Date) highlight.Options {
	months := (until.Year()-today.Year())*12 + until.Month() - today.Month()
	return highlight.Options{PastMonths: 0, FutureMonths: months, IncludeCards: true}
}

// publish reports false when the reminder was already sent.
func (p *ReminderProcessor) publish(ctx context.Context, userID string, today core.Date, event core.HighlightedDate) (bool, error) {
	id := ReminderID(event)
	_, err := p.sent.Get(ctx, userID, id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return false, fmt.Errorf("check sent reminder: %w", err)
	}

	daysLeft := int(event.Date.Sub(today.Time).Hours() / 24)
	if err := p.publisher.PublishReminder(ctx, amqp.NewReminderMessage(id, userID, event, daysLeft)); err != nil {
		return false, fmt.Errorf("publish: %w", err)
	}

	record := SentReminder{Date: event.Date, Type: event.Type, Description: event.Description, SentAt: time.Now().UTC()}
	if _, err := p.sent.Put(ctx, userID, id, record); err != nil {
		return false, fmt.Errorf("record sent reminder: %w", err)
	}
	return true, nil
}

// Start runs ProcessDue now and then every Interval. Returns an error if already running.
func (p *ReminderProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reminder processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	p.logger.InfoContext(ctx, "Reminder processor started", "interval", p.config.Interval)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ReminderProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Reminder processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Reminder processor stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the processor is currently running
func (p *ReminderProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReminderProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *ReminderProcessor) tick(ctx context.Context) {
	if _, err := p.ProcessDue(ctx, time.Now()); err != nil {
		p.logger.ErrorContext(ctx, "Reminder run failed", log.FieldError, err)
	}
}
