package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/micronote/internal/models"
)

type channelKey struct {
	channel  models.Channel
	senderID string
}

// MemoryStorage keeps everything in process memory. Returned values are copies.
type MemoryStorage struct {
	mu        sync.RWMutex
	users     map[int64]*models.User
	byChannel map[channelKey]int64
	messages  map[int64]*models.IncomingMessage
	notes     map[int64]*models.Note
	reminders map[int64]*models.Reminder
	lastID    int64
	now       func() time.Time
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:     make(map[int64]*models.User),
		byChannel: make(map[channelKey]int64),
		messages:  make(map[int64]*models.IncomingMessage),
		notes:     make(map[int64]*models.Note),
		reminders: make(map[int64]*models.Reminder),
		now:       time.Now,
	}
}

func (s *MemoryStorage) nextID() int64 {
	s.lastID++
	return s.lastID
}

// User methods
func (s *MemoryStorage) GetUserByChannel(ctx context.Context, channel models.Channel, senderID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byChannel[channelKey{channel, senderID}]
	if !exists {
		return nil, ErrNotFound
	}
	u := *s.users[id]
	return &u, nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, exists := s.users[id]; exists {
		u := *user
		return &u, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range []models.Channel{models.ChannelTelegram, models.ChannelWhatsApp} {
		if id, ok := user.ChannelID(c); ok {
			if _, taken := s.byChannel[channelKey{c, id}]; taken {
				return fmt.Errorf("%s id %s already linked", c, id)
			}
		}
	}

	if user.Plan == "" {
		user.Plan = models.PlanFree
	}
	user.ID = s.nextID()
	user.CreatedAt = s.now()

	u := *user
	s.users[u.ID] = &u
	for _, c := range []models.Channel{models.ChannelTelegram, models.ChannelWhatsApp} {
		if id, ok := u.ChannelID(c); ok {
			s.byChannel[channelKey{c, id}] = u.ID
		}
	}
	return nil
}

func (s *MemoryStorage) IncrementNoteCount(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return ErrNotFound
	}
	user.NotesCount++
	return nil
}

// Note methods
func (s *MemoryStorage) SaveIncomingMessage(ctx context.Context, msg *models.IncomingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = s.nextID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	m := *msg
	s.messages[m.ID] = &m
	return nil
}

func (s *MemoryStorage) CreateNote(ctx context.Context, note *models.Note) error {
	if err := note.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[note.UserID]; !exists {
		return fmt.Errorf("note owner %d: %w", note.UserID, ErrNotFound)
	}

	now := s.now()
	note.ID = s.nextID()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now
	n := *note
	s.notes[n.ID] = &n
	return nil
}

func (s *MemoryStorage) ListNotes(ctx context.Context, userID int64, limit int) ([]*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var notes []*models.Note
	for _, note := range s.notes {
		if note.UserID == userID {
			n := *note
			notes = append(notes, &n)
		}
	}

	sort.Slice(notes, func(i, j int) bool {
		if notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].ID > notes[j].ID
		}
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})

	if limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}
	return notes, nil
}

// Messages returns a copy of every stored incoming message, in insertion order.
func (s *MemoryStorage) Messages() []*models.IncomingMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.IncomingMessage, 0, len(s.messages))
	for _, msg := range s.messages {
		m := *msg
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reminder methods
func (s *MemoryStorage) CreateReminder(ctx context.Context, reminder *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[reminder.NoteID]; !exists {
		return fmt.Errorf("reminder note %d: %w", reminder.NoteID, ErrNotFound)
	}

	reminder.ID = s.nextID()
	reminder.CreatedAt = s.now()
	r := *reminder
	s.reminders[r.ID] = &r
	return nil
}

func (s *MemoryStorage) DueReminders(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Reminder
	for _, reminder := range s.reminders {
		if !reminder.IsSent && !reminder.RemindAt.After(now) {
			r := *reminder
			due = append(due, &r)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].RemindAt.Equal(due[j].RemindAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].RemindAt.Before(due[j].RemindAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStorage) MarkReminderSent(ctx context.Context, id int64, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminder, exists := s.reminders[id]
	if !exists {
		return ErrNotFound
	}
	reminder.IsSent = true
	reminder.SentAt = &sentAt
	return nil
}

func (s *MemoryStorage) RescheduleReminder(ctx context.Context, id int64, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminder, exists := s.reminders[id]
	if !exists {
		return ErrNotFound
	}
	reminder.RemindAt = next
	reminder.IsSent = false
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
