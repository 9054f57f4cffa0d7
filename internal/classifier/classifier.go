package classifier

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/xaenox/micronote/internal/models"
	"go.uber.org/zap"
)

type compiledPattern struct {
	noteType models.NoteType
	regex    *regexp.Regexp
}

// RegexClassifier assigns a note type by matching configured patterns.
// It never fails: anything it cannot decide is simple.
type RegexClassifier struct {
	patterns []compiledPattern
	broken   bool
	logger   *zap.Logger
}

// NewRegexClassifier builds a classifier from an optional JSON override of the
// form {"category": "pattern"}. An empty override selects the built-in set; an
// override that does not decode leaves the classifier answering simple.
func NewRegexClassifier(patternsJSON string, logger *zap.Logger) *RegexClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &RegexClassifier{logger: logger}

	source := defaultPatterns
	if strings.TrimSpace(patternsJSON) != "" {
		var raw map[string]string
		if err := json.Unmarshal([]byte(patternsJSON), &raw); err != nil {
			logger.Error("Failed to decode classifier patterns, regex classification disabled", zap.Error(err))
			c.broken = true
			return c
		}

		source = make(map[models.NoteType]string, len(raw))
		for name, pattern := range raw {
			t, ok := models.ParseNoteType(name)
			if !ok || t == models.NoteSimple {
				logger.Warn("Ignoring pattern for unknown category", zap.String("category", name))
				continue
			}
			source[t] = pattern
		}
	}

	for _, t := range matchOrder {
		pattern, ok := source[t]
		if !ok || pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			logger.Error("Failed to compile classifier pattern",
				zap.Error(err),
				zap.String("category", string(t)),
				zap.String("pattern", pattern))
			continue
		}
		c.patterns = append(c.patterns, compiledPattern{noteType: t, regex: re})
	}

	return c
}

// Classify returns the first category whose pattern matches text, or simple.
func (c *RegexClassifier) Classify(text string) models.NoteType {
	if c == nil || c.broken {
		return models.NoteSimple
	}
	for _, p := range c.patterns {
		if p.regex.MatchString(text) {
			return p.noteType
		}
	}
	return models.NoteSimple
}

// RegexStrategy adapts RegexClassifier to the fallback chain. It always answers.
type RegexStrategy struct {
	classifier *RegexClassifier
}

func NewRegexStrategy(c *RegexClassifier) *RegexStrategy {
	return &RegexStrategy{classifier: c}
}

func (s *RegexStrategy) Name() string { return SourceRegex }

func (s *RegexStrategy) Classify(_ context.Context, text string) (models.NoteType, bool) {
	return s.classifier.Classify(text), true
}
