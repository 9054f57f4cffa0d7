package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xaenox/micronote/internal/models"
	"go.uber.org/zap"
)

type plannedNote struct {
	note     *models.Note
	reminder *models.Reminder
}

// processMultiple returns a nil result when the message should go through the
// single-note flow instead. Only persistence failures are returned as errors.
func (p *Processor) processMultiple(ctx context.Context, log *zap.Logger, user *models.User, in Input) (*Result, error) {
	segments, err := p.extractor.TriageMultipleActions(ctx, in.Text)
	if err != nil {
		log.Debug("Triage failed, using single note flow", zap.Error(err))
		return nil, nil
	}
	if len(segments) < 2 {
		log.Debug("Single intent message", zap.Int("segments", len(segments)))
		return nil, nil
	}

	actions, err := p.extractor.ExtractMultipleActions(ctx, in.Text)
	if err != nil {
		log.Info("Multi-action extraction failed, using single note flow", zap.Error(err))
		return nil, nil
	}
	if actions.Empty() {
		log.Info("Multi-action extraction returned nothing, using single note flow")
		return nil, nil
	}

	log.Info("Splitting message into actions",
		zap.Int("segments", len(segments)),
		zap.Int("actions", actions.Count()))

	msg, err := p.saveIncoming(ctx, log, user, in, TagMultiple)
	if err != nil {
		return nil, err
	}

	createdAt := p.messageTime(in)
	result := &Result{IncomingMessage: msg}

	for _, planned := range planNotes(actions, user.ID, in.Channel) {
		note := planned.note
		note.IncomingMessageID = &msg.ID
		note.CreatedAt = createdAt
		note.Title = TruncateTitle(note.Content)

		if err := p.saveNote(ctx, log, note, planned.reminder); err != nil {
			return nil, err
		}
		result.Notes = append(result.Notes, note)
		if planned.reminder != nil {
			result.Reminders = append(result.Reminders, planned.reminder)
		}
	}

	return result, nil
}

// planNotes maps every extracted action to the note (and reminder) it produces,
// in the order the keys appear in the extraction schema.
func planNotes(actions *models.MultiAction, userID int64, channel models.Channel) []plannedNote {
	var out []plannedNote
	add := func(t models.NoteType, content string, metadata models.NoteMetadata) *plannedNote {
		out = append(out, plannedNote{note: &models.Note{
			UserID:   userID,
			Type:     t,
			Content:  content,
			Metadata: metadata,
		}})
		return &out[len(out)-1]
	}

	for _, r := range actions.Reminders {
		planned := add(models.NoteReminder, r.Message, models.ReminderMetadata{Message: r.Message, RemindAt: r.RemindAt})
		message := r.Message
		planned.reminder = &models.Reminder{
			UserID:   userID,
			RemindAt: r.RemindAt,
			Channel:  channel,
			Message:  &message,
		}
	}
	for _, t := range actions.Tasks {
		add(models.NoteTask, t.Text, t.Metadata())
	}
	for _, i := range actions.Ideas {
		add(models.NoteIdea, i.Text, nil)
	}
	for _, e := range actions.Events {
		content := e.Title
		if e.Location != "" {
			content += " @ " + e.Location
		}
		add(models.NoteEvent, content, e)
	}
	for _, c := range actions.Contacts {
		add(models.NoteContact, joinNonEmpty(c.Name, c.Phone, c.Email), c)
	}
	for _, r := range actions.Recipes {
		add(models.NoteRecipe, r.Name, r)
	}
	for _, b := range actions.Bookmarks {
		content := b.URL
		if b.Description != "" {
			content = b.Description + " " + b.URL
		}
		add(models.NoteBookmark, content, b)
	}
	for _, m := range actions.Measurements {
		value := strconv.FormatFloat(m.Value, 'f', -1, 64)
		add(models.NoteMeasurement, strings.TrimSpace(fmt.Sprintf("%s: %s %s", m.Kind, value, m.Unit)), m)
	}
	if actions.ShoppingList != nil && len(actions.ShoppingList.Items) > 0 {
		names := make([]string, 0, len(actions.ShoppingList.Items))
		for _, item := range actions.ShoppingList.Items {
			names = append(names, item.Text)
		}
		add(models.NoteShoppingList, strings.Join(names, ", "), *actions.ShoppingList)
	}

	return out
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
