package classifier

import (
	"context"

	"github.com/xaenox/micronote/internal/metrics"
	"github.com/xaenox/micronote/internal/models"
	"go.uber.org/zap"
)

// AIClassifier is the part of the LLM gateway the hybrid classifier needs.
type AIClassifier interface {
	Available() bool
	Classify(ctx context.Context, text string) (models.NoteType, error)
}

// AIStrategy asks the model and declines on any error. By default an answer of
// simple also declines, leaving the decision to the regex tier.
type AIStrategy struct {
	client        AIClassifier
	trustAISimple bool
	logger        *zap.Logger
}

func NewAIStrategy(client AIClassifier, trustAISimple bool, logger *zap.Logger) *AIStrategy {
	return &AIStrategy{client: client, trustAISimple: trustAISimple, logger: logger}
}

func (s *AIStrategy) Name() string { return SourceAI }

func (s *AIStrategy) Classify(ctx context.Context, text string) (models.NoteType, bool) {
	if s.client == nil || !s.client.Available() {
		return "", false
	}
	t, err := s.client.Classify(ctx, text)
	if err != nil {
		s.logger.Debug("AI classification declined, falling back", zap.Error(err))
		return "", false
	}
	if t == models.NoteSimple && !s.trustAISimple {
		return "", false
	}
	return t, true
}

// Hybrid prefers AI classification for eligible users and falls back to regex.
type Hybrid struct {
	ai      *AIStrategy
	regex   *RegexStrategy
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHybrid(regex *RegexClassifier, ai AIClassifier, trustAISimple bool, logger *zap.Logger, m *metrics.Metrics) *Hybrid {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hybrid{
		ai:      NewAIStrategy(ai, trustAISimple, logger),
		regex:   NewRegexStrategy(regex),
		logger:  logger,
		metrics: m,
	}
}

// Chain returns the fallback order used for a caller with the given entitlement.
func (h *Hybrid) Chain(aiEligible bool) Chain {
	if aiEligible {
		return Chain{h.ai, h.regex}
	}
	return Chain{h.regex}
}

// Classify never fails: regex is the authority of last resort.
func (h *Hybrid) Classify(ctx context.Context, text string, aiEligible bool) models.ClassificationResult {
	t, source := h.Chain(aiEligible).Run(ctx, text)
	if source == "" {
		source = SourceRegex
	}

	h.metrics.ObserveClassification(source, string(t))
	h.logger.Debug("Message classified",
		zap.String("note_type", string(t)),
		zap.String("source", source),
		zap.Bool("ai_eligible", aiEligible))

	return models.ClassificationResult{Type: t, Source: source}
}
