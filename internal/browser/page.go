// Package browser drives one private browser session per query and
// annotates its interactive elements for visual grounding.
package browser

import (
	"context"
	"errors"
	"fmt"
)

// ErrSessionFailure marks any failure of a browser primitive: launch,
// navigation, a missing element, a failed click or fill.
var ErrSessionFailure = errors.New("browser session failure")

// SessionError records which primitive failed.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

func (e *SessionError) Is(target error) bool { return target == ErrSessionFailure }

func sessionErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SessionError{Op: op, Err: err}
}

// Page is the browser session boundary. Implementations own one browser
// process and one page; Close releases both.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JavaScript expression and decodes its JSON result into res.
	Evaluate(ctx context.Context, script string, res any) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	// StopLoading halts any navigation or resource loading in progress.
	StopLoading(ctx context.Context) error
	Click(ctx context.Context, selector string) error
	// Fill replaces the value of a text field with text.
	Fill(ctx context.Context, selector, text string) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Close() error
}

// Launcher starts a new private session.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Page, error)

func (f LauncherFunc) Launch(ctx context.Context) (Page, error) { return f(ctx) }
