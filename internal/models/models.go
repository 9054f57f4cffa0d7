package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Channel is the messenger a message arrived on.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
)

func ParseChannel(s string) (Channel, bool) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelTelegram:
		return ChannelTelegram, true
	case ChannelWhatsApp:
		return ChannelWhatsApp, true
	}
	return "", false
}

// Plan is the subscription tier of a user.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

// AIEligible reports whether the plan may use AI classification and extraction.
func (p Plan) AIEligible() bool {
	return p == PlanPro || p == PlanPremium
}

// MultiActionEligible reports whether the plan may split one message into several notes.
func (p Plan) MultiActionEligible() bool {
	return p == PlanPremium
}

// User represents an account linked to one or more messengers
type User struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Plan       Plan      `json:"plan" db:"plan"`
	TelegramID *string   `json:"telegram_id,omitempty" db:"telegram_id"`
	WhatsAppID *string   `json:"whatsapp_id,omitempty" db:"whatsapp_id"`
	NotesCount int       `json:"notes_count" db:"notes_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ChannelID returns the identifier the user is reachable at on channel c.
func (u *User) ChannelID(c Channel) (string, bool) {
	var id *string
	switch c {
	case ChannelTelegram:
		id = u.TelegramID
	case ChannelWhatsApp:
		id = u.WhatsAppID
	}
	if id == nil || *id == "" {
		return "", false
	}
	return *id, true
}

// IncomingMessage is the raw record of a received message
type IncomingMessage struct {
	ID          int64           `json:"id" db:"id"`
	UserID      int64           `json:"user_id" db:"user_id"`
	SenderID    string          `json:"sender_id" db:"sender_id"`
	Channel     Channel         `json:"channel" db:"channel"`
	Content     string          `json:"content" db:"content"`
	Metadata    json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	AITag       string          `json:"ai_tag" db:"ai_tag"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Recurrence is the repeat rule of a reminder. The zero value means no repetition.
type Recurrence string

const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "DAILY"
	RecurrenceWeekly  Recurrence = "WEEKLY"
	RecurrenceMonthly Recurrence = "MONTHLY"
	RecurrenceYearly  Recurrence = "YEARLY"
)

// Reminder is the optional companion of a reminder note.
type Reminder struct {
	ID            int64      `json:"id" db:"id"`
	NoteID        int64      `json:"note_id" db:"note_id"`
	UserID        int64      `json:"user_id" db:"user_id"`
	RemindAt      time.Time  `json:"remind_at" db:"remind_at"`
	Recurrence    Recurrence `json:"recurrence" db:"recurrence"`
	RecurrenceEnd *time.Time `json:"recurrence_end,omitempty" db:"recurrence_end"`
	Channel       Channel    `json:"channel" db:"channel"`
	Message       *string    `json:"message,omitempty" db:"message"`
	IsSent        bool       `json:"is_sent" db:"is_sent"`
	SentAt        *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// ClassificationResult is the transient output of the classifier.
type ClassificationResult struct {
	Type     NoteType     `json:"type"`
	Metadata NoteMetadata `json:"metadata,omitempty"`
	// Source names the strategy that decided, e.g. "ai" or "regex".
	Source string `json:"source"`
}

// TriageSegment is one typed span of a message, without deep extraction.
type TriageSegment struct {
	Type NoteType `json:"type"`
	Text string   `json:"text"`
}

// ExtractedReminder is a reminder action pulled from a multi-intent message.
type ExtractedReminder struct {
	Message  string    `json:"message"`
	RemindAt time.Time `json:"remind_at"`
}

// ExtractedText is an action whose only payload is its text.
type ExtractedText struct {
	Text string `json:"text"`
}

// ExtractedTask is a task action with its optional deadline and priority.
type ExtractedTask struct {
	Text     string     `json:"text"`
	DueAt    *time.Time `json:"due_at,omitempty"`
	Priority string     `json:"priority,omitempty"`
}

// Metadata returns the task details, or nil when the model gave none.
func (t ExtractedTask) Metadata() NoteMetadata {
	if t.DueAt == nil && t.Priority == "" {
		return nil
	}
	return TaskMetadata{DueAt: t.DueAt, Priority: t.Priority}
}

// MultiAction groups every action extracted from one message, keyed by note type.
type MultiAction struct {
	Reminders    []ExtractedReminder   `json:"reminders,omitempty"`
	Tasks        []ExtractedTask       `json:"tasks,omitempty"`
	Ideas        []ExtractedText       `json:"ideas,omitempty"`
	Events       []EventMetadata       `json:"events,omitempty"`
	Contacts     []ContactMetadata     `json:"contacts,omitempty"`
	Recipes      []RecipeMetadata      `json:"recipes,omitempty"`
	Bookmarks    []BookmarkMetadata    `json:"bookmarks,omitempty"`
	Measurements []MeasurementMetadata `json:"measurements,omitempty"`
	ShoppingList *ShoppingListMetadata `json:"shopping_list,omitempty"`
}

// Count returns how many notes the actions would produce.
func (m *MultiAction) Count() int {
	if m == nil {
		return 0
	}
	n := len(m.Reminders) + len(m.Tasks) + len(m.Ideas) + len(m.Events) +
		len(m.Contacts) + len(m.Recipes) + len(m.Bookmarks) + len(m.Measurements)
	if m.ShoppingList != nil && len(m.ShoppingList.Items) > 0 {
		n++
	}
	return n
}

func (m *MultiAction) Empty() bool {
	return m.Count() == 0
}
