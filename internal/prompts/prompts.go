// Package prompts renders the LLM prompts used for classification and extraction.
//
// The templates live in templates/*.tmpl. Their category list, JSON field names
// and default reminder times are what the response parsers in package llm
// expect, so a change to a template must keep those in step.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"

	"github.com/xaenox/micronote/internal/models"
)

// Version identifies the template set; it is logged with every gateway call.
const Version = "2025.03"

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"

	// DefaultReminderTime applies when a single reminder states no time.
	DefaultReminderTime = "09:00:00"
	// DefaultMultiActionReminderTime applies to reminders found by multi-action extraction.
	DefaultMultiActionReminderTime = "07:00:00"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

var typeHints = map[models.NoteType]string{
	models.NoteSimple:       "Notița este o notă generală.",
	models.NoteTask:         "Notița este o sarcină; titlul începe cu acțiunea de făcut.",
	models.NoteIdea:         "Notița este o idee; titlul surprinde esența ideii.",
	models.NoteShoppingList: "Notița este o listă de cumpărături; titlul rezumă ce se cumpără.",
	models.NoteReminder:     "Notița este un reminder; titlul spune ce trebuie amintit, fără dată.",
	models.NoteEvent:        "Notița este un eveniment; titlul numește evenimentul.",
	models.NoteContact:      "Notița conține date de contact; titlul numește persoana.",
	models.NoteRecipe:       "Notița este o rețetă; titlul numește preparatul.",
	models.NoteBookmark:     "Notița este un link salvat; titlul descrie resursa.",
	models.NoteMeasurement:  "Notița este o măsurătoare; titlul numește ce s-a măsurat.",
}

const genericTypeHint = "Titlul rezumă conținutul notiței."

// Builder renders prompts against a clock, so date anchors are testable.
type Builder struct {
	loc *time.Location
	now func() time.Time
}

// NewBuilder returns a Builder. A nil location means UTC, a nil clock means time.Now.
func NewBuilder(loc *time.Location, now func() time.Time) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{loc: loc, now: now}
}

// Location is the time zone date anchors and parsed reminder times use.
func (b *Builder) Location() *time.Location {
	return b.loc
}

type textData struct {
	Text string
}

type dateData struct {
	Text        string
	Now         string
	Today       string
	Tomorrow    string
	NextTuesday string
	DefaultTime string
}

type titleData struct {
	Text     string
	TypeHint string
}

func (b *Builder) Classification(text string) (string, error) {
	return render("classification.tmpl", textData{Text: text})
}

func (b *Builder) ShoppingList(text string) (string, error) {
	return render("shopping_list.tmpl", textData{Text: text})
}

func (b *Builder) ReminderExtraction(text string) (string, error) {
	return render("reminder.tmpl", b.dates(text, DefaultReminderTime))
}

func (b *Builder) TitleGeneration(text string, noteType models.NoteType) (string, error) {
	hint, ok := typeHints[noteType]
	if !ok {
		hint = genericTypeHint
	}
	return render("title.tmpl", titleData{Text: text, TypeHint: hint})
}

func (b *Builder) MultipleActions(text string) (string, error) {
	return render("multiple_actions.tmpl", b.dates(text, DefaultMultiActionReminderTime))
}

func (b *Builder) Triage(text string) (string, error) {
	return render("triage.tmpl", textData{Text: text})
}

func (b *Builder) dates(text, defaultTime string) dateData {
	now := b.now().In(b.loc)
	return dateData{
		Text:        text,
		Now:         now.Format(DateTimeLayout),
		Today:       now.Format(DateLayout),
		Tomorrow:    now.AddDate(0, 0, 1).Format(DateLayout),
		NextTuesday: nextWeekday(now, time.Tuesday).Format(DateLayout),
		DefaultTime: defaultTime,
	}
}

// nextWeekday returns the first day after now that falls on wd.
func nextWeekday(now time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}
