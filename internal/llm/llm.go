// Package llm wraps the completion providers behind a single call shape:
// one user turn of text plus an optional screenshot, answered with text.
package llm

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/rahul/webpilot/internal/observability"
)

// ErrEmptyResponse is returned when a provider answers without any choice.
var ErrEmptyResponse = errors.New("llm: empty response")

// Request is a single completion call.
type Request struct {
	Purpose observability.EventType
	QueryID string
	Prompt  string
	// Image is a PNG screenshot attached after the prompt, if any.
	Image []byte
	// JSON asks the provider for a single JSON object.
	JSON bool
	Params
}

// Params are the sampling parameters of a call.
type Params struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Completer is the completion service boundary.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// DataURL encodes a PNG as a data URL.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
