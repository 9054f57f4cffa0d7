package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/micronote/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("storage: not found")

type Storage interface {
	UserStorage
	NoteStorage
	ReminderStorage
	Close() error
}

type UserStorage interface {
	// GetUserByChannel finds the user whose channel identifier equals senderID.
	GetUserByChannel(ctx context.Context, channel models.Channel, senderID string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	IncrementNoteCount(ctx context.Context, userID int64) error
}

type NoteStorage interface {
	SaveIncomingMessage(ctx context.Context, msg *models.IncomingMessage) error
	CreateNote(ctx context.Context, note *models.Note) error
	// ListNotes returns the user's newest notes first.
	ListNotes(ctx context.Context, userID int64, limit int) ([]*models.Note, error)
}

type ReminderStorage interface {
	CreateReminder(ctx context.Context, reminder *models.Reminder) error
	// DueReminders returns unsent reminders with remind_at <= now, oldest first.
	DueReminders(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error)
	MarkReminderSent(ctx context.Context, id int64, sentAt time.Time) error
	RescheduleReminder(ctx context.Context, id int64, next time.Time) error
}
