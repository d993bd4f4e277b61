package agent

import (
	"errors"

	"github.com/rahul/webpilot/internal/browser"
)

var (
	// ErrMalformedPlanResponse means the planner's completion could not be
	// read as a plan. It is never retried.
	ErrMalformedPlanResponse = errors.New("malformed plan response")
	// ErrMalformedActionResponse means a grounding completion could not be
	// read as a list of actions.
	ErrMalformedActionResponse = errors.New("malformed action response")
	// ErrSessionFailure is any failure of the browser session.
	ErrSessionFailure = browser.ErrSessionFailure
	ErrPolicyDenied   = errors.New("denied by policy")
	ErrNoPlan         = errors.New("no plan to execute")
)
