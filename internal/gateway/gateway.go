// Package gateway connects chat platforms to the engine: incoming messages
// become queries and query progress is sent back to the chat.
package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Submitter starts a query in the background.
type Submitter interface {
	Submit(ctx context.Context, queryID, query string) error
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, queryID, query string) error

func (f SubmitFunc) Submit(ctx context.Context, queryID, query string) error {
	return f(ctx, queryID, query)
}

// Binder routes a query's progress to a chat.
type Binder interface {
	Bind(queryID, chatID string)
}

// dispatch binds a fresh query id to chatID and submits query. It returns
// the reply for the user.
func dispatch(ctx context.Context, sub Submitter, routes Binder, chatID, query string) (string, string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", "Send me something to do in the browser, e.g. \"go to example.com and read the page title\".", nil
	}
	queryID := uuid.NewString()
	if routes != nil {
		routes.Bind(queryID, chatID)
	}
	if err := sub.Submit(ctx, queryID, query); err != nil {
		return queryID, "I couldn't start that one: " + err.Error(), err
	}
	return queryID, "🔎 On it. Query " + queryID, nil
}
