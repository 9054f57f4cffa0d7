package classifier

import (
	"context"

	"github.com/xaenox/micronote/internal/models"
)

const (
	SourceAI    = "ai"
	SourceRegex = "regex"
)

// Strategy is one tier of the classification fallback order.
// ok=false means the strategy declined and the next one should be tried.
type Strategy interface {
	Name() string
	Classify(ctx context.Context, text string) (t models.NoteType, ok bool)
}

// Chain tries strategies in order; the first one to answer wins.
type Chain []Strategy

// Run returns the winning type and the name of the strategy that produced it.
// An empty or fully declining chain yields simple with an empty source.
func (c Chain) Run(ctx context.Context, text string) (models.NoteType, string) {
	for _, s := range c {
		if t, ok := s.Classify(ctx, text); ok && t.Valid() {
			return t, s.Name()
		}
	}
	return models.NoteSimple, ""
}
