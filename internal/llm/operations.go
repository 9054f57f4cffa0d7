package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/xaenox/micronote/internal/models"
	"github.com/xaenox/micronote/internal/prompts"
)

const (
	opClassify        = "classify"
	opShoppingList    = "shopping_list"
	opReminder        = "reminder"
	opTitle           = "title"
	opMultipleActions = "multiple_actions"
	opTriage          = "triage"

	// MaxTitleLength bounds generated titles, in characters.
	MaxTitleLength = 50
)

var multiActionKeys = []string{
	"reminders", "tasks", "ideas", "events", "contacts",
	"recipes", "bookmarks", "measurements", "shopping_list",
}

// Classify asks the model for one of the ten note types.
func (g *Gateway) Classify(ctx context.Context, text string) (models.NoteType, error) {
	prompt, err := g.prompts.Classification(text)
	if err != nil {
		return "", err
	}
	raw, err := g.call(ctx, opClassify, prompt, CallOptions{})
	if err != nil {
		return "", err
	}

	line := firstLine(raw)
	t, ok := models.ParseNoteType(line)
	if !ok {
		return "", g.malformed(opClassify, raw, "unknown category")
	}
	g.ok(opClassify)
	return t, nil
}

// ExtractShoppingListItems returns the products named in text.
func (g *Gateway) ExtractShoppingListItems(ctx context.Context, text string) ([]models.ShoppingItem, error) {
	prompt, err := g.prompts.ShoppingList(text)
	if err != nil {
		return nil, err
	}
	raw, err := g.call(ctx, opShoppingList, prompt, CallOptions{JSONMode: true})
	if err != nil {
		return nil, err
	}

	body := cleanJSON(raw)
	if !gjson.Valid(body) || !gjson.Get(body, "items").IsArray() {
		return nil, g.malformed(opShoppingList, raw, "missing items array")
	}

	var decoded models.ShoppingListMetadata
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return nil, g.malformed(opShoppingList, raw, err.Error())
	}
	if len(decoded.Items) == 0 {
		return nil, g.malformed(opShoppingList, raw, "no items")
	}
	for i := range decoded.Items {
		decoded.Items[i].Text = strings.TrimSpace(decoded.Items[i].Text)
		if decoded.Items[i].Text == "" {
			return nil, g.malformed(opShoppingList, raw, "item without text")
		}
	}

	g.ok(opShoppingList)
	return decoded.Items, nil
}

// ExtractReminderDetails returns the cleaned reminder text and when it should fire.
func (g *Gateway) ExtractReminderDetails(ctx context.Context, text string) (models.ReminderMetadata, error) {
	prompt, err := g.prompts.ReminderExtraction(text)
	if err != nil {
		return models.ReminderMetadata{}, err
	}
	raw, err := g.call(ctx, opReminder, prompt, CallOptions{JSONMode: true})
	if err != nil {
		return models.ReminderMetadata{}, err
	}

	body := cleanJSON(raw)
	if !gjson.Valid(body) {
		return models.ReminderMetadata{}, g.malformed(opReminder, raw, "invalid JSON")
	}
	message := gjson.Get(body, "message")
	remindAt := gjson.Get(body, "remind_at")
	if !message.Exists() || !remindAt.Exists() {
		return models.ReminderMetadata{}, g.malformed(opReminder, raw, "missing message or remind_at")
	}

	msg := strings.TrimSpace(message.String())
	if msg == "" {
		return models.ReminderMetadata{}, g.malformed(opReminder, raw, "empty message")
	}
	at, err := g.parseTime(remindAt.String())
	if err != nil {
		return models.ReminderMetadata{}, g.malformed(opReminder, raw, err.Error())
	}

	g.ok(opReminder)
	return models.ReminderMetadata{Message: msg, RemindAt: at}, nil
}

// GenerateNoteTitle returns a short title, at most MaxTitleLength characters.
func (g *Gateway) GenerateNoteTitle(ctx context.Context, text string, noteType models.NoteType) (string, error) {
	prompt, err := g.prompts.TitleGeneration(text, noteType)
	if err != nil {
		return "", err
	}
	raw, err := g.call(ctx, opTitle, prompt, CallOptions{})
	if err != nil {
		return "", err
	}

	title := CleanTitle(raw)
	if title == "" {
		return "", g.malformed(opTitle, raw, "empty title")
	}
	g.ok(opTitle)
	return title, nil
}

type wireReminder struct {
	Message  string `json:"message"`
	RemindAt string `json:"remind_at"`
}

type wireTask struct {
	Text     string `json:"text"`
	DueAt    string `json:"due_at"`
	Priority string `json:"priority"`
}

type wireEvent struct {
	Title    string `json:"title"`
	StartsAt string `json:"starts_at"`
	Location string `json:"location"`
}

type wireMultiAction struct {
	Reminders    []wireReminder               `json:"reminders"`
	Tasks        []wireTask                   `json:"tasks"`
	Ideas        []models.ExtractedText       `json:"ideas"`
	Events       []wireEvent                  `json:"events"`
	Contacts     []models.ContactMetadata     `json:"contacts"`
	Recipes      []models.RecipeMetadata      `json:"recipes"`
	Bookmarks    []models.BookmarkMetadata    `json:"bookmarks"`
	Measurements []models.MeasurementMetadata `json:"measurements"`
	ShoppingList *models.ShoppingListMetadata `json:"shopping_list"`
}

// ExtractMultipleActions splits a multi-intent message into typed actions in one call.
func (g *Gateway) ExtractMultipleActions(ctx context.Context, text string) (*models.MultiAction, error) {
	prompt, err := g.prompts.MultipleActions(text)
	if err != nil {
		return nil, err
	}
	raw, err := g.call(ctx, opMultipleActions, prompt, CallOptions{JSONMode: true})
	if err != nil {
		return nil, err
	}

	body := cleanJSON(raw)
	parsed := gjson.Parse(body)
	if !gjson.Valid(body) || !parsed.IsObject() {
		return nil, g.malformed(opMultipleActions, raw, "not a JSON object")
	}
	known := false
	for _, key := range multiActionKeys {
		if parsed.Get(key).Exists() {
			known = true
			break
		}
	}
	if !known {
		return nil, g.malformed(opMultipleActions, raw, "no known action keys")
	}

	var wire wireMultiAction
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, g.malformed(opMultipleActions, raw, err.Error())
	}

	out, err := g.convertMultiAction(wire)
	if err != nil {
		return nil, g.malformed(opMultipleActions, raw, err.Error())
	}

	g.ok(opMultipleActions)
	return out, nil
}

func (g *Gateway) convertMultiAction(wire wireMultiAction) (*models.MultiAction, error) {
	out := &models.MultiAction{
		Contacts:     wire.Contacts,
		Recipes:      wire.Recipes,
		Bookmarks:    wire.Bookmarks,
		Measurements: wire.Measurements,
		ShoppingList: wire.ShoppingList,
	}

	for _, r := range wire.Reminders {
		msg := strings.TrimSpace(r.Message)
		if msg == "" {
			return nil, fmt.Errorf("reminder without message")
		}
		at, err := g.parseTime(r.RemindAt)
		if err != nil {
			return nil, fmt.Errorf("reminder %q: %w", msg, err)
		}
		out.Reminders = append(out.Reminders, models.ExtractedReminder{Message: msg, RemindAt: at})
	}

	for _, t := range wire.Tasks {
		task := models.ExtractedTask{Text: strings.TrimSpace(t.Text)}
		if task.Text == "" {
			return nil, fmt.Errorf("action without text")
		}
		if s := strings.TrimSpace(t.DueAt); s != "" {
			at, err := g.parseTime(s)
			if err != nil {
				return nil, fmt.Errorf("task %q: %w", task.Text, err)
			}
			task.DueAt = &at
		}
		switch p := strings.ToLower(strings.TrimSpace(t.Priority)); p {
		case "low", "medium", "high":
			task.Priority = p
		}
		out.Tasks = append(out.Tasks, task)
	}

	for _, item := range wire.Ideas {
		item.Text = strings.TrimSpace(item.Text)
		if item.Text == "" {
			return nil, fmt.Errorf("action without text")
		}
		out.Ideas = append(out.Ideas, item)
	}

	for _, e := range wire.Events {
		ev := models.EventMetadata{Title: strings.TrimSpace(e.Title), Location: e.Location}
		if ev.Title == "" {
			return nil, fmt.Errorf("event without title")
		}
		if s := strings.TrimSpace(e.StartsAt); s != "" {
			at, err := g.parseTime(s)
			if err != nil {
				return nil, fmt.Errorf("event %q: %w", ev.Title, err)
			}
			ev.StartsAt = &at
		}
		out.Events = append(out.Events, ev)
	}

	for _, b := range out.Bookmarks {
		if strings.TrimSpace(b.URL) == "" {
			return nil, fmt.Errorf("bookmark without url")
		}
	}
	if out.ShoppingList != nil {
		for _, item := range out.ShoppingList.Items {
			if strings.TrimSpace(item.Text) == "" {
				return nil, fmt.Errorf("shopping item without text")
			}
		}
	}

	return out, nil
}

// TriageMultipleActions segments text into typed spans without extracting details.
func (g *Gateway) TriageMultipleActions(ctx context.Context, text string) ([]models.TriageSegment, error) {
	prompt, err := g.prompts.Triage(text)
	if err != nil {
		return nil, err
	}
	raw, err := g.call(ctx, opTriage, prompt, CallOptions{JSONMode: true})
	if err != nil {
		return nil, err
	}

	body := cleanJSON(raw)
	segments := gjson.Get(body, "segments")
	if !gjson.Valid(body) || !segments.IsArray() {
		return nil, g.malformed(opTriage, raw, "missing segments array")
	}

	var out []models.TriageSegment
	for _, s := range segments.Array() {
		if !s.Get("type").Exists() || !s.Get("text").Exists() {
			return nil, g.malformed(opTriage, raw, "segment without type or text")
		}
		segText := strings.TrimSpace(s.Get("text").String())
		if segText == "" {
			continue
		}
		t, ok := models.ParseNoteType(s.Get("type").String())
		if !ok {
			t = models.NoteSimple
		}
		out = append(out, models.TriageSegment{Type: t, Text: segText})
	}
	if len(out) == 0 {
		return nil, g.malformed(opTriage, raw, "no segments")
	}

	g.ok(opTriage)
	return out, nil
}

func (g *Gateway) parseTime(s string) (time.Time, error) {
	at, err := time.ParseInLocation(prompts.DateTimeLayout, strings.TrimSpace(s), g.prompts.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return at, nil
}

// cleanJSON strips Markdown code fences models sometimes wrap JSON in.
func cleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// CleanTitle trims model output to a single unquoted line of at most MaxTitleLength characters.
func CleanTitle(raw string) string {
	title := firstLine(raw)
	title = strings.Trim(title, " \t\"'`„”“«»*")
	title = strings.TrimSuffix(title, ".")
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > MaxTitleLength {
		title = strings.TrimSpace(string([]rune(title)[:MaxTitleLength]))
	}
	return title
}
