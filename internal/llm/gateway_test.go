package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/micronote/internal/models"
	"github.com/xaenox/micronote/internal/prompts"
	"github.com/xaenox/micronote/internal/ratelimit"
)

var fixedNow = time.Date(2025, 3, 6, 15, 4, 5, 0, time.UTC)

type fakeProvider struct {
	mu         sync.Mutex
	configured bool
	responses  []string
	err        error
	prompts    []string
	opts       []CallOptions
}

func (f *fakeProvider) Name() string     { return "fake" }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) Generate(_ context.Context, prompt string, opts CallOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newTestGateway(p Provider, limiter ratelimit.Limiter, limits Limits) *Gateway {
	builder := prompts.NewBuilder(time.UTC, func() time.Time { return fixedNow })
	return NewGateway(p, limiter, limits, builder, nil, nil)
}

func TestGateway_UnavailableMakesNoCall(t *testing.T) {
	p := &fakeProvider{configured: false, responses: []string{"task"}}
	limiter := ratelimit.NewMemoryLimiter()
	g := newTestGateway(p, limiter, Limits{PerMinute: 10, PerDay: 100})

	assert.False(t, g.Available())
	_, err := g.Classify(context.Background(), "cumpara lapte")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, p.calls())
	assert.Zero(t, limiter.Attempts(minuteKey))
}

func TestGateway_NilIsUnavailable(t *testing.T) {
	var g *Gateway
	assert.False(t, g.Available())
}

func TestGateway_RateLimitedMakesNoCall(t *testing.T) {
	p := &fakeProvider{configured: true, responses: []string{"task"}}
	limiter := ratelimit.NewMemoryLimiter()
	g := newTestGateway(p, limiter, Limits{PerMinute: 2, PerDay: 100})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := g.Classify(ctx, "de facut raportul")
		require.NoError(t, err)
		assert.Equal(t, models.NoteTask, got)
	}

	_, err := g.Classify(ctx, "de facut raportul")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 2, p.calls())
	assert.Equal(t, 2, limiter.Attempts(minuteKey))
	assert.Equal(t, 2, limiter.Attempts(dayKey))
}

func TestGateway_DayQuota(t *testing.T) {
	p := &fakeProvider{configured: true, responses: []string{"idea"}}
	limiter := ratelimit.NewMemoryLimiter()
	g := newTestGateway(p, limiter, Limits{PerMinute: 100, PerDay: 1})

	_, err := g.Classify(context.Background(), "idee")
	require.NoError(t, err)
	_, err = g.Classify(context.Background(), "idee")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, p.calls())
}

type brokenLimiter struct{}

func (brokenLimiter) TooManyAttempts(context.Context, string, int) (bool, error) {
	return false, errors.New("store down")
}

func (brokenLimiter) Hit(context.Context, string, time.Duration) error { return nil }

func TestGateway_LimiterErrorFailsClosed(t *testing.T) {
	p := &fakeProvider{configured: true, responses: []string{"task"}}
	g := newTestGateway(p, brokenLimiter{}, Limits{PerMinute: 10, PerDay: 10})

	_, err := g.Classify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Zero(t, p.calls())
}

func TestGateway_FailedCallsConsumeNoQuota(t *testing.T) {
	p := &fakeProvider{configured: true, err: errors.New("503 unavailable")}
	limiter := ratelimit.NewMemoryLimiter()
	g := newTestGateway(p, limiter, Limits{PerMinute: 10, PerDay: 10})

	_, err := g.Classify(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, 1, p.calls())
	assert.Zero(t, limiter.Attempts(minuteKey))
	assert.Zero(t, limiter.Attempts(dayKey))
}

func TestGateway_Call(t *testing.T) {
	p := &fakeProvider{configured: true, responses: []string{`{"a":1}`}}
	g := newTestGateway(p, nil, Limits{})

	raw, err := g.Call(context.Background(), "prompt", CallOptions{JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, raw)
	assert.True(t, p.opts[0].JSONMode)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     models.NoteType
		wantErr  bool
	}{
		{name: "plain", response: "shopping_list", want: models.NoteShoppingList},
		{name: "decorated", response: "  **Reminder**.\n", want: models.NoteReminder},
		{name: "first line only", response: "event\nbecause it mentions a party", want: models.NoteEvent},
		{name: "unknown", response: "grocery", wantErr: true},
		{name: "empty", response: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{configured: true, responses: []string{tt.response}}
			g := newTestGateway(p, nil, Limits{})

			got, err := g.Classify(context.Background(), "text")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.False(t, p.opts[0].JSONMode)
		})
	}
}

func TestExtractShoppingListItems(t *testing.T) {
	p := &fakeProvider{configured: true, responses: []string{
		"```json\n{\"items\": [{\"text\": \"bere\", \"completed\": false}, {\"text\": \"lapte\", \"completed\": false}, {\"text\": \"oua\", \"completed\": false}]}\n```",
	}}
	g := newTestGateway(p, nil, Limits{})

	items, err := g.ExtractShoppingListItems(context.Background(), "iau bere lapte si pentru mara sa iau oua")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "bere", items[0].Text)
	assert.Equal(t, "lapte", items[1].Text)
	assert.Equal(t, "oua", items[2].Text)
	for _, item := range items {
		assert.False(t, item.Completed)
	}
	assert.True(t, p.opts[0].JSONMode)
	assert.Contains(t, p.prompts[0], "iau bere lapte si pentru mara sa iau oua")
}

func TestExtractShoppingListItems_Malformed(t *testing.T) {
	for _, resp := range []string{
		`{"items": []}`,
		`{"products": ["bere"]}`,
		`{"items": [{"text": ""}]}`,
		`not json`,
	} {
		p := &fakeProvider{configured: true, responses: []string{resp}}
		g := newTestGateway(p, nil, Limits{})

		_, err := g.ExtractShoppingListItems(context.Background(), "x")
		assert.ErrorIs(t, err, ErrMalformedResponse, resp)
	}
}

func TestExtractReminderDetails(t *testing.T) {
	p := &fakeProvider{configured: true, responses: []string{
		`{"message": "să duc cainele la veterinar", "remind_at": "2025-03-07 19:00:00"}`,
	}}
	g := newTestGateway(p, nil, Limits{})

	got, err := g.ExtractReminderDetails(context.Background(), "trebuie sa duc cainele la veterinar maine la 19")
	require.NoError(t, err)
	assert.Equal(t, "să duc cainele la veterinar", got.Message)
	assert.Equal(t, time.Date(2025, 3, 7, 19, 0, 0, 0, time.UTC), got.RemindAt)
	assert.Contains(t, p.prompts[0], "2025-03-07")
}

func TestExtractReminderDetails_Malformed(t *testing.T) {
	for _, resp := range []string{
		`{"message": "x"}`,
		`{"remind_at": "2025-03-07 19:00:00"}`,
		`{"message": "x", "remind_at": "tomorrow"}`,
		`{"message": "", "remind_at": "2025-03-07 19:00:00"}`,
	} {
		p := &fakeProvider{configured: true, responses: []string{resp}}
		g := newTestGateway(p, nil, Limits{})

		_, err := g.ExtractReminderDetails(context.Background(), "x")
		assert.ErrorIs(t, err, ErrMalformedResponse, resp)
	}
}

func TestGenerateNoteTitle(t *testing.T) {
	p := &fakeProvider{configured: true, responses: []string{"\"Cumpărături pentru weekend.\"\nextra"}}
	g := newTestGateway(p, nil, Limits{})

	title, err := g.GenerateNoteTitle(context.Background(), "lapte, oua", models.NoteShoppingList)
	require.NoError(t, err)
	assert.Equal(t, "Cumpărături pentru weekend", title)
}

func TestGenerateNoteTitle_EmptyIsMalformed(t *testing.T) {
	p := &fakeProvider{configured: true, responses: []string{"  \"\"  "}}
	g := newTestGateway(p, nil, Limits{})

	_, err := g.GenerateNoteTitle(context.Background(), "x", models.NoteIdea)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestCleanTitle_CapsLength(t *testing.T) {
	long := "Această notă are un titlu mult prea lung pentru a fi afișat complet"
	got := CleanTitle(long)
	assert.LessOrEqual(t, len([]rune(got)), MaxTitleLength)
}

func TestExtractMultipleActions(t *testing.T) {
	p := &fakeProvider{configured: true, responses: []string{`{
		"reminders": [{"message": "sun la dentist", "remind_at": "2025-03-07 07:00:00"}],
		"tasks": [{"text": "termin raportul", "due_at": "2025-03-10 12:00:00", "priority": "HIGH"}, {"text": "sun la banca", "priority": "urgent"}],
		"ideas": [],
		"events": [{"title": "petrecere", "starts_at": "2025-03-08 20:00:00", "location": "acasa"}],
		"shopping_list": {"items": [{"text": "paine", "completed": false}]}
	}`}}
	g := newTestGateway(p, nil, Limits{})

	got, err := g.ExtractMultipleActions(context.Background(), "mai multe lucruri")
	require.NoError(t, err)
	require.Len(t, got.Reminders, 1)
	assert.Equal(t, time.Date(2025, 3, 7, 7, 0, 0, 0, time.UTC), got.Reminders[0].RemindAt)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, "termin raportul", got.Tasks[0].Text)
	require.NotNil(t, got.Tasks[0].DueAt)
	assert.Equal(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), *got.Tasks[0].DueAt)
	assert.Equal(t, "high", got.Tasks[0].Priority)
	assert.Nil(t, got.Tasks[1].DueAt)
	assert.Empty(t, got.Tasks[1].Priority)
	require.Len(t, got.Events, 1)
	require.NotNil(t, got.Events[0].StartsAt)
	require.NotNil(t, got.ShoppingList)
	assert.Equal(t, 5, got.Count())
}

func TestExtractMultipleActions_Malformed(t *testing.T) {
	for _, resp := range []string{
		`[]`,
		`{"foo": 1}`,
		`{"reminders": [{"message": "x", "remind_at": "soon"}]}`,
		`{"tasks": [{"text": " "}]}`,
		`{"tasks": [{"text": "x", "due_at": "friday"}]}`,
		`{"events": [{"title": "x", "starts_at": "later"}]}`,
	} {
		p := &fakeProvider{configured: true, responses: []string{resp}}
		g := newTestGateway(p, nil, Limits{})

		_, err := g.ExtractMultipleActions(context.Background(), "x")
		assert.ErrorIs(t, err, ErrMalformedResponse, resp)
	}
}

func TestTriageMultipleActions(t *testing.T) {
	p := &fakeProvider{configured: true, responses: []string{`{"segments": [
		{"type": "reminder", "text": "maine la 9 sun la dentist"},
		{"type": "weird", "text": "ceva"},
		{"type": "task", "text": "  "}
	]}`}}
	g := newTestGateway(p, nil, Limits{})

	segs, err := g.TriageMultipleActions(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, models.NoteReminder, segs[0].Type)
	assert.Equal(t, models.NoteSimple, segs[1].Type)
}

func TestTriageMultipleActions_Malformed(t *testing.T) {
	for _, resp := range []string{`{}`, `{"segments": []}`, `{"segments": [{"text": "x"}]}`} {
		p := &fakeProvider{configured: true, responses: []string{resp}}
		g := newTestGateway(p, nil, Limits{})

		_, err := g.TriageMultipleActions(context.Background(), "x")
		assert.ErrorIs(t, err, ErrMalformedResponse, resp)
	}
}
