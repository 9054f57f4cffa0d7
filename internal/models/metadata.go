package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NoteMetadata is the typed payload attached to a note. The set of
// implementations is closed; each one belongs to exactly one NoteType.
type NoteMetadata interface {
	NoteType() NoteType
	isNoteMetadata()
}

// ShoppingItem is one product line of a shopping list.
type ShoppingItem struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type ShoppingListMetadata struct {
	Items []ShoppingItem `json:"items"`
}

type ReminderMetadata struct {
	Message  string    `json:"message"`
	RemindAt time.Time `json:"remind_at"`
}

type TaskMetadata struct {
	DueAt    *time.Time `json:"due_at,omitempty"`
	Priority string     `json:"priority,omitempty"`
}

type EventMetadata struct {
	Title    string     `json:"title"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	Location string     `json:"location,omitempty"`
}

type ContactMetadata struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type RecipeMetadata struct {
	Name        string   `json:"name"`
	Ingredients []string `json:"ingredients,omitempty"`
}

type BookmarkMetadata struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

type MeasurementMetadata struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

func (ShoppingListMetadata) NoteType() NoteType { return NoteShoppingList }
func (ReminderMetadata) NoteType() NoteType     { return NoteReminder }
func (TaskMetadata) NoteType() NoteType         { return NoteTask }
func (EventMetadata) NoteType() NoteType        { return NoteEvent }
func (ContactMetadata) NoteType() NoteType      { return NoteContact }
func (RecipeMetadata) NoteType() NoteType       { return NoteRecipe }
func (BookmarkMetadata) NoteType() NoteType     { return NoteBookmark }
func (MeasurementMetadata) NoteType() NoteType  { return NoteMeasurement }

func (ShoppingListMetadata) isNoteMetadata() {}
func (ReminderMetadata) isNoteMetadata()     {}
func (TaskMetadata) isNoteMetadata()         {}
func (EventMetadata) isNoteMetadata()        {}
func (ContactMetadata) isNoteMetadata()      {}
func (RecipeMetadata) isNoteMetadata()       {}
func (BookmarkMetadata) isNoteMetadata()     {}
func (MeasurementMetadata) isNoteMetadata()  {}

// MarshalMetadata encodes metadata for a JSON column. Nil metadata encodes to nil.
func MarshalMetadata(m NoteMetadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s metadata: %w", m.NoteType(), err)
	}
	return data, nil
}

// UnmarshalMetadata decodes a JSON column back into the metadata shape owned by t.
// Types without a payload shape (simple, idea) and empty input decode to nil.
func UnmarshalMetadata(t NoteType, data []byte) (NoteMetadata, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var (
		m   NoteMetadata
		err error
	)
	switch t {
	case NoteShoppingList:
		var v ShoppingListMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case NoteReminder:
		var v ReminderMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case NoteTask:
		var v TaskMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case NoteEvent:
		var v EventMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case NoteContact:
		var v ContactMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case NoteRecipe:
		var v RecipeMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case NoteBookmark:
		var v BookmarkMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case NoteMeasurement:
		var v MeasurementMetadata
		err = json.Unmarshal(data, &v)
		m = v
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s metadata: %w", t, err)
	}
	return m, nil
}
