// Package pipeline turns one inbound chat message into persisted notes.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/xaenox/micronote/internal/metrics"
	"github.com/xaenox/micronote/internal/models"
	"github.com/xaenox/micronote/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrUserNotFound means no account is linked to the sender. The message is dropped.
	ErrUserNotFound = errors.New("pipeline: user not found")
	// ErrPersistence wraps any storage failure; processing of the message stops there.
	ErrPersistence = errors.New("pipeline: persistence failure")
)

// TagMultiple is the ai_tag of a message that was split into several notes.
const TagMultiple = "multiple"

// FallbackTitleLength is the number of characters kept when the title is cut from the content.
const FallbackTitleLength = 20

// Classifier decides the note type. It never fails.
type Classifier interface {
	Classify(ctx context.Context, text string, aiEligible bool) models.ClassificationResult
}

// Extractor is the part of the LLM gateway the pipeline uses for structured data.
type Extractor interface {
	Available() bool
	ExtractShoppingListItems(ctx context.Context, text string) ([]models.ShoppingItem, error)
	ExtractReminderDetails(ctx context.Context, text string) (models.ReminderMetadata, error)
	GenerateNoteTitle(ctx context.Context, text string, noteType models.NoteType) (string, error)
	TriageMultipleActions(ctx context.Context, text string) ([]models.TriageSegment, error)
	ExtractMultipleActions(ctx context.Context, text string) (*models.MultiAction, error)
}

type Options struct {
	// MultiActionEnabled lets premium users split one message into several notes.
	MultiActionEnabled bool
	// Now overrides the clock, mainly in tests.
	Now func() time.Time
}

// Input is one inbound message as delivered by a channel.
type Input struct {
	Channel       models.Channel
	SenderID      string
	Text          string
	RawPayload    json.RawMessage
	CorrelationID string
}

// Result carries what a channel needs to confirm the message back to the user.
type Result struct {
	IncomingMessage *models.IncomingMessage
	Notes           []*models.Note
	Reminders       []*models.Reminder
	// Source is the classification strategy that decided, empty for multi-action results.
	Source string
}

// Note returns the first created note.
func (r *Result) Note() *models.Note {
	if r == nil || len(r.Notes) == 0 {
		return nil
	}
	return r.Notes[0]
}

type Processor struct {
	store      storage.Storage
	classifier Classifier
	extractor  Extractor
	opts       Options
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func NewProcessor(
	store storage.Storage,
	classifier Classifier,
	extractor Extractor,
	opts Options,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Processor{
		store:      store,
		classifier: classifier,
		extractor:  extractor,
		opts:       opts,
		logger:     logger,
		metrics:    m,
	}
}

// Process runs the whole ingestion flow for one message. Only a missing user
// or a storage failure is returned as an error; AI problems degrade silently.
func (p *Processor) Process(ctx context.Context, in Input) (*Result, error) {
	log := p.logger.With(
		zap.String("correlation_id", in.CorrelationID),
		zap.String("channel", string(in.Channel)),
		zap.String("sender_id", in.SenderID))

	log.Info("Processing incoming message", zap.Int("length", utf8.RuneCountInString(in.Text)))

	user, err := p.store.GetUserByChannel(ctx, in.Channel, in.SenderID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("No user linked to sender, dropping message")
		p.metrics.ObservePipeline("user_not_found")
		return nil, fmt.Errorf("%w: %s %s", ErrUserNotFound, in.Channel, in.SenderID)
	}
	if err != nil {
		return nil, p.persistenceError(log, "resolve user", err)
	}
	log = log.With(zap.Int64("user_id", user.ID), zap.String("plan", string(user.Plan)))

	aiEligible := user.Plan.AIEligible() && p.extractor != nil && p.extractor.Available()
	log.Debug("Resolved user", zap.Bool("ai_eligible", aiEligible))

	if aiEligible && user.Plan.MultiActionEligible() && p.opts.MultiActionEnabled {
		result, err := p.processMultiple(ctx, log, user, in)
		if err != nil {
			return nil, err
		}
		if result != nil {
			p.metrics.ObservePipeline("multiple")
			return result, nil
		}
	}

	result, err := p.processSingle(ctx, log, user, in, aiEligible)
	if err != nil {
		return nil, err
	}
	p.metrics.ObservePipeline("ok")
	return result, nil
}

func (p *Processor) processSingle(ctx context.Context, log *zap.Logger, user *models.User, in Input, aiEligible bool) (*Result, error) {
	classification := p.classifier.Classify(ctx, in.Text, aiEligible)
	log.Info("Message classified",
		zap.String("note_type", string(classification.Type)),
		zap.String("source", classification.Source))

	note := &models.Note{
		UserID:  user.ID,
		Type:    classification.Type,
		Content: in.Text,
	}
	var reminder *models.Reminder

	switch {
	case classification.Type == models.NoteShoppingList && aiEligible:
		items, err := p.extractor.ExtractShoppingListItems(ctx, in.Text)
		if err != nil {
			log.Info("Shopping list extraction failed, saving without items", zap.Error(err))
			break
		}
		note.Metadata = models.ShoppingListMetadata{Items: items}
		log.Debug("Extracted shopping list", zap.Int("items", len(items)))

	case classification.Type == models.NoteReminder && aiEligible:
		details, err := p.extractor.ExtractReminderDetails(ctx, in.Text)
		if err != nil {
			log.Info("Reminder extraction failed, saving as plain note", zap.Error(err))
			break
		}
		note.Content = details.Message
		note.Metadata = details
		message := details.Message
		reminder = &models.Reminder{
			UserID:   user.ID,
			RemindAt: details.RemindAt,
			Channel:  in.Channel,
			Message:  &message,
		}
		log.Debug("Extracted reminder", zap.Time("remind_at", details.RemindAt))
	}

	msg, err := p.saveIncoming(ctx, log, user, in, string(classification.Type))
	if err != nil {
		return nil, err
	}

	note.Title = p.title(ctx, log, in.Text, classification.Type, aiEligible)
	note.IncomingMessageID = &msg.ID
	note.CreatedAt = p.messageTime(in)

	if err := p.saveNote(ctx, log, note, reminder); err != nil {
		return nil, err
	}

	result := &Result{
		IncomingMessage: msg,
		Notes:           []*models.Note{note},
		Source:          classification.Source,
	}
	if reminder != nil {
		result.Reminders = append(result.Reminders, reminder)
	}

	return result, nil
}

func (p *Processor) saveIncoming(ctx context.Context, log *zap.Logger, user *models.User, in Input, tag string) (*models.IncomingMessage, error) {
	processedAt := p.opts.Now()
	msg := &models.IncomingMessage{
		UserID:      user.ID,
		SenderID:    in.SenderID,
		Channel:     in.Channel,
		Content:     in.Text,
		Metadata:    in.RawPayload,
		AITag:       tag,
		ProcessedAt: &processedAt,
	}
	if err := p.store.SaveIncomingMessage(ctx, msg); err != nil {
		return nil, p.persistenceError(log, "save incoming message", err)
	}
	log.Debug("Saved incoming message", zap.Int64("incoming_message_id", msg.ID))
	return msg, nil
}

// saveNote persists a note, then its reminder if any, and only then counts it
// against the user.
func (p *Processor) saveNote(ctx context.Context, log *zap.Logger, note *models.Note, reminder *models.Reminder) error {
	if err := p.store.CreateNote(ctx, note); err != nil {
		return p.persistenceError(log, "create note", err)
	}
	log.Info("Note created",
		zap.Int64("note_id", note.ID),
		zap.String("note_type", string(note.Type)),
		zap.String("title", note.Title))

	if reminder != nil {
		reminder.NoteID = note.ID
		if err := p.store.CreateReminder(ctx, reminder); err != nil {
			return p.persistenceError(log, "create reminder", err)
		}
		log.Info("Reminder scheduled",
			zap.Int64("reminder_id", reminder.ID),
			zap.Time("remind_at", reminder.RemindAt))
	}

	if err := p.store.IncrementNoteCount(ctx, note.UserID); err != nil {
		return p.persistenceError(log, "increment notes count", err)
	}
	p.metrics.ObserveNote(string(note.Type))
	return nil
}

func (p *Processor) title(ctx context.Context, log *zap.Logger, text string, noteType models.NoteType, aiEligible bool) string {
	if aiEligible {
		title, err := p.extractor.GenerateNoteTitle(ctx, text, noteType)
		if err == nil {
			return title
		}
		log.Debug("Title generation failed, truncating content", zap.Error(err))
	}
	return TruncateTitle(text)
}

// messageTime reads the original send time from the channel payload.
func (p *Processor) messageTime(in Input) time.Time {
	if len(in.RawPayload) > 0 && gjson.ValidBytes(in.RawPayload) {
		var ts gjson.Result
		switch in.Channel {
		case models.ChannelTelegram:
			ts = gjson.GetBytes(in.RawPayload, "message.date")
		case models.ChannelWhatsApp:
			ts = gjson.GetBytes(in.RawPayload, "entry.0.changes.0.value.messages.0.timestamp")
		}
		if ts.Exists() && ts.Int() > 0 {
			return time.Unix(ts.Int(), 0)
		}
	}
	return p.opts.Now()
}

func (p *Processor) persistenceError(log *zap.Logger, step string, err error) error {
	log.Error("Persistence failed, aborting message",
		zap.String("step", step),
		zap.Error(err))
	p.metrics.ObservePipeline("persistence_error")
	return fmt.Errorf("%w: %s: %v", ErrPersistence, step, err)
}

// TruncateTitle keeps the first FallbackTitleLength characters of text, marking a cut with "...".
func TruncateTitle(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= FallbackTitleLength {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:FallbackTitleLength])) + "..."
}
