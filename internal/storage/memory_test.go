package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/micronote/internal/models"
)

func strPtr(s string) *string { return &s }

func seedUser(t *testing.T, s *MemoryStorage, telegramID string) *models.User {
	t.Helper()
	u := &models.User{Name: "Ana", Plan: models.PlanPro, TelegramID: strPtr(telegramID)}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestMemoryStorage_Users(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	u := seedUser(t, s, "42")

	got, err := s.GetUserByChannel(ctx, models.ChannelTelegram, "42")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, models.PlanPro, got.Plan)

	_, err = s.GetUserByChannel(ctx, models.ChannelWhatsApp, "42")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetUser(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.CreateUser(ctx, &models.User{TelegramID: strPtr("42")})
	assert.Error(t, err)

	require.NoError(t, s.IncrementNoteCount(ctx, u.ID))
	require.NoError(t, s.IncrementNoteCount(ctx, u.ID))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NotesCount)
}

func TestMemoryStorage_DefaultPlanIsFree(t *testing.T) {
	s := NewMemoryStorage()
	u := &models.User{WhatsAppID: strPtr("40712345678")}
	require.NoError(t, s.CreateUser(context.Background(), u))
	assert.Equal(t, models.PlanFree, u.Plan)
}

func TestMemoryStorage_NotesNewestFirst(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	u := seedUser(t, s, "1")

	base := time.Date(2025, 3, 6, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		n := &models.Note{UserID: u.ID, Type: models.NoteSimple, Content: "n", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, s.CreateNote(ctx, n))
	}

	notes, err := s.ListNotes(ctx, u.ID, 2)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, base.Add(2*time.Hour), notes[0].CreatedAt)
	assert.Equal(t, base.Add(time.Hour), notes[1].CreatedAt)
}

func TestMemoryStorage_CreateNoteValidates(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	u := seedUser(t, s, "1")

	err := s.CreateNote(ctx, &models.Note{UserID: u.ID, Type: "grocery"})
	assert.Error(t, err)

	err = s.CreateNote(ctx, &models.Note{UserID: u.ID, Type: models.NoteTask, Metadata: models.BookmarkMetadata{URL: "x"}})
	assert.Error(t, err)

	err = s.CreateNote(ctx, &models.Note{UserID: 999, Type: models.NoteSimple})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_Reminders(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	u := seedUser(t, s, "1")

	note := &models.Note{UserID: u.ID, Type: models.NoteReminder, Content: "sun la dentist"}
	require.NoError(t, s.CreateNote(ctx, note))

	now := time.Date(2025, 3, 6, 12, 0, 0, 0, time.UTC)
	past := &models.Reminder{NoteID: note.ID, UserID: u.ID, RemindAt: now.Add(-time.Minute), Channel: models.ChannelTelegram}
	future := &models.Reminder{NoteID: note.ID, UserID: u.ID, RemindAt: now.Add(time.Hour), Channel: models.ChannelTelegram}
	require.NoError(t, s.CreateReminder(ctx, past))
	require.NoError(t, s.CreateReminder(ctx, future))

	due, err := s.DueReminders(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, past.ID, due[0].ID)

	require.NoError(t, s.MarkReminderSent(ctx, past.ID, now))
	due, err = s.DueReminders(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, s.RescheduleReminder(ctx, past.ID, now.Add(-time.Second)))
	due, err = s.DueReminders(ctx, now, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	assert.ErrorIs(t, s.MarkReminderSent(ctx, 999, now), ErrNotFound)
	assert.ErrorIs(t, s.CreateReminder(ctx, &models.Reminder{NoteID: 999}), ErrNotFound)
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	u := seedUser(t, s, "1")

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	got.Plan = models.PlanPremium

	again, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, again.Plan)
}
