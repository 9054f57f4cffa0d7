package models

import (
	"fmt"
	"strings"
	"time"
)

// NoteType is the category a message is classified into.
type NoteType string

const (
	NoteSimple       NoteType = "simple"
	NoteTask         NoteType = "task"
	NoteIdea         NoteType = "idea"
	NoteShoppingList NoteType = "shopping_list"
	NoteReminder     NoteType = "reminder"
	NoteEvent        NoteType = "event"
	NoteContact      NoteType = "contact"
	NoteRecipe       NoteType = "recipe"
	NoteBookmark     NoteType = "bookmark"
	NoteMeasurement  NoteType = "measurement"
)

var allNoteTypes = []NoteType{
	NoteSimple,
	NoteTask,
	NoteIdea,
	NoteShoppingList,
	NoteReminder,
	NoteEvent,
	NoteContact,
	NoteRecipe,
	NoteBookmark,
	NoteMeasurement,
}

// AllNoteTypes returns the ten note types in canonical order.
func AllNoteTypes() []NoteType {
	out := make([]NoteType, len(allNoteTypes))
	copy(out, allNoteTypes)
	return out
}

// Valid reports whether t is one of the fixed note types.
func (t NoteType) Valid() bool {
	for _, known := range allNoteTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t NoteType) String() string {
	return string(t)
}

// ParseNoteType normalises free model output ("Shopping_List.", "`task`") into a NoteType.
func ParseNoteType(s string) (NoteType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, " \t\r\n\"'`.,;:!*")
	t := NoteType(s)
	if !t.Valid() {
		return "", false
	}
	return t, true
}

// Note is the structured result of one classified message (or one extracted action).
type Note struct {
	ID                int64        `json:"id" db:"id"`
	UserID            int64        `json:"user_id" db:"user_id"`
	IncomingMessageID *int64       `json:"incoming_message_id,omitempty" db:"incoming_message_id"`
	Type              NoteType     `json:"note_type" db:"note_type"`
	Title             string       `json:"title" db:"title"`
	Content           string       `json:"content" db:"content"`
	Metadata          NoteMetadata `json:"metadata" db:"-"`
	IsCompleted       bool         `json:"is_completed" db:"is_completed"`
	IsFavorite        bool         `json:"is_favorite" db:"is_favorite"`
	Priority          int          `json:"priority" db:"priority"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// Validate checks the note type and that metadata, when present, belongs to it.
func (n *Note) Validate() error {
	if !n.Type.Valid() {
		return fmt.Errorf("invalid note type %q", n.Type)
	}
	if n.Metadata != nil && n.Metadata.NoteType() != n.Type {
		return fmt.Errorf("metadata of type %q does not match note type %q", n.Metadata.NoteType(), n.Type)
	}
	return nil
}
