// Package replies builds the user-facing confirmation texts. They depend only
// on note types, never on message content.
package replies

import (
	"fmt"
	"strings"

	"github.com/xaenox/micronote/internal/models"
)

var confirmations = map[models.NoteType]string{
	models.NoteSimple:       "📝 Notă salvată.",
	models.NoteTask:         "✅ Sarcină adăugată.",
	models.NoteIdea:         "💡 Idee salvată.",
	models.NoteShoppingList: "🛒 Listă de cumpărături salvată.",
	models.NoteReminder:     "⏰ Memento setat.",
	models.NoteEvent:        "📅 Eveniment salvat.",
	models.NoteContact:      "👤 Contact salvat.",
	models.NoteRecipe:       "🍳 Rețetă salvată.",
	models.NoteBookmark:     "🔖 Link salvat.",
	models.NoteMeasurement:  "📏 Măsurătoare înregistrată.",
}

const (
	UnknownUser = "Contul tău nu este conectat la MicroNote. Folosește /start pentru a afla ID-ul de conectare."
	Failure     = "Nu am putut salva mesajul. Te rog încearcă din nou."
)

// Confirmation returns the text sent after a message was saved as notes of the given types.
func Confirmation(types ...models.NoteType) string {
	switch len(types) {
	case 0:
		return confirmations[models.NoteSimple]
	case 1:
		return confirmationFor(types[0])
	}

	lines := make([]string, 0, len(types)+1)
	lines = append(lines, fmt.Sprintf("Am creat %d notițe:", len(types)))
	for _, t := range types {
		lines = append(lines, "• "+confirmationFor(t))
	}
	return strings.Join(lines, "\n")
}

func confirmationFor(t models.NoteType) string {
	if text, ok := confirmations[t]; ok {
		return text
	}
	return confirmations[models.NoteSimple]
}

// Reminder is the text delivered when a reminder fires.
func Reminder(message string) string {
	return "⏰ Memento: " + message
}
