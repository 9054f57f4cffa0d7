package llm

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means no API credential is configured. It lasts until reconfiguration.
	ErrUnavailable = errors.New("llm: gateway unavailable")
	// ErrRateLimited means the shared minute or day quota is used up.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrMalformedResponse means the API answered but the payload could not be used.
	ErrMalformedResponse = errors.New("llm: malformed response")
)

// CallOptions tune a single generation request.
type CallOptions struct {
	// JSONMode asks the model for an application/json response.
	JSONMode bool
}

// Provider sends one prompt to a generative model and returns the raw text of
// its first candidate.
type Provider interface {
	Name() string
	// Configured reports whether a credential is present.
	Configured() bool
	Generate(ctx context.Context, prompt string, opts CallOptions) (string, error)
}
