// Package notify carries progress events from running queries to whoever
// is watching: the SSE stream, the log, chat gateways, the terminal.
// Publication is best effort; a sink never fails the query.
package notify

import (
	"context"
	"time"
)

const (
	// StatusError marks the terminal error event of a query.
	StatusError = "error"
	// StatusComplete marks the last event of a query that succeeded.
	StatusComplete = "complete"
)

// Event is one progress notification. Field names are what the web
// frontend reads.
type Event struct {
	QueryID    string    `json:"query_id"`
	Message    string    `json:"message"`
	Status     string    `json:"status,omitempty"`
	Done       bool      `json:"done,omitempty"`
	Step       int       `json:"step,omitempty"`
	Actions    any       `json:"actions,omitempty"`
	ActionPlan any       `json:"action_plan,omitempty"`
	Image      string    `json:"img,omitempty"`
	Time       time.Time `json:"time"`
}

// IsError reports whether e is an error event.
func (e Event) IsError() bool { return e.Status == StatusError }

// Terminal reports whether e ends its query's stream.
func (e Event) Terminal() bool { return e.Done || e.IsError() }

// Final reports whether nothing more will be published for e's query.
// Executions emit a done event before the lifecycle's own completion, so
// done alone is not final.
func (e Event) Final() bool { return e.IsError() || e.Status == StatusComplete }

// Publisher accepts events. Publish must not block for long and has no
// error to report.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event)

func (f PublisherFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop drops every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) {})

// Multi fans an event out to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}
