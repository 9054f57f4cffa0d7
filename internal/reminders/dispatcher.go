// Package reminders delivers due reminders through the channel they were created on.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/xaenox/micronote/internal/metrics"
	"github.com/xaenox/micronote/internal/models"
	"github.com/xaenox/micronote/internal/replies"
	"github.com/xaenox/micronote/internal/storage"
	"go.uber.org/zap"
)

// Sender delivers a text to a channel-specific recipient id.
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

type Dispatcher struct {
	store   storage.Storage
	senders map[models.Channel]Sender
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(store storage.Storage, senders map[models.Channel]Sender, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:   store,
		senders: senders,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

// Run polls for due reminders until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("Reminder dispatcher started", zap.Duration("poll_interval", d.cfg.PollInterval))
	for {
		if _, err := d.Tick(ctx); err != nil {
			d.logger.Error("Reminder tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			d.logger.Info("Reminder dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick delivers one batch of due reminders and returns how many were sent.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.store.DueReminders(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load due reminders: %w", err)
	}

	sent := 0
	for _, r := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		outcome := d.deliver(ctx, r, now)
		d.metrics.ObserveReminder(outcome)
		if outcome == "sent" {
			sent++
		}
	}
	return sent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, r *models.Reminder, now time.Time) string {
	log := d.logger.With(
		zap.Int64("reminder_id", r.ID),
		zap.Int64("user_id", r.UserID),
		zap.String("channel", string(r.Channel)))

	user, err := d.store.GetUser(ctx, r.UserID)
	if err != nil {
		log.Error("Failed to load reminder owner", zap.Error(err))
		return "failed"
	}

	recipient, ok := user.ChannelID(r.Channel)
	if !ok {
		log.Warn("User no longer reachable on channel, dropping reminder")
		d.finish(ctx, log, r, now)
		return "undeliverable"
	}

	sender, ok := d.senders[r.Channel]
	if !ok || sender == nil {
		log.Warn("No sender registered for channel")
		return "no_sender"
	}

	message := ""
	if r.Message != nil {
		message = *r.Message
	}
	if err := sender.Send(ctx, recipient, replies.Reminder(message)); err != nil {
		log.Error("Failed to deliver reminder, will retry", zap.Error(err))
		return "failed"
	}

	d.finish(ctx, log, r, now)
	log.Info("Reminder delivered")
	return "sent"
}

// finish reschedules a recurring reminder or marks a one-off one as sent.
func (d *Dispatcher) finish(ctx context.Context, log *zap.Logger, r *models.Reminder, now time.Time) {
	if next, ok := NextOccurrence(r.RemindAt, r.Recurrence, r.RecurrenceEnd, now); ok {
		if err := d.store.RescheduleReminder(ctx, r.ID, next); err != nil {
			log.Error("Failed to reschedule reminder", zap.Error(err))
		}
		log.Debug("Reminder rescheduled", zap.Time("next", next))
		return
	}
	if err := d.store.MarkReminderSent(ctx, r.ID, now); err != nil {
		log.Error("Failed to mark reminder sent", zap.Error(err))
	}
}

// NextOccurrence returns the first occurrence of a recurring reminder after now.
// Any recurrence other than weekly, monthly or yearly repeats daily. It reports
// false for one-off reminders and once the recurrence has ended.
func NextOccurrence(at time.Time, rec models.Recurrence, end *time.Time, now time.Time) (time.Time, bool) {
	step := func(t time.Time) time.Time {
		switch rec {
		case models.RecurrenceWeekly:
			return t.AddDate(0, 0, 7)
		case models.RecurrenceMonthly:
			return t.AddDate(0, 1, 0)
		case models.RecurrenceYearly:
			return t.AddDate(1, 0, 0)
		default:
			return t.AddDate(0, 0, 1)
		}
	}

	if rec == models.RecurrenceNone {
		return time.Time{}, false
	}

	next := step(at)
	for !next.After(now) {
		next = step(next)
	}
	if end != nil && next.After(*end) {
		return time.Time{}, false
	}
	return next, true
}
