// Package governance decides whether a plan may be executed at all, before
// any browser is launched.
package governance

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rahul/webpilot/pkg/config"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request is a plan about to run.
type Request struct {
	QueryID string
	URL     string
	Steps   []string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates plans against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies destinations by scheme, by URL pattern and by
// CEL rule, in that order.
type DefaultPolicyEngine struct {
	DeniedSchemes map[string]bool
	DeniedRegex   []*regexp.Regexp
	Rules         []*Rule
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedSchemes: make(map[string]bool),
		DeniedRegex:   make([]*regexp.Regexp, 0),
	}
}

// NewPolicyEngine builds an engine from the policy section of the config.
func NewPolicyEngine(cfg config.PolicyConfig) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, s := range cfg.DenySchemes {
		e.DenyScheme(s)
	}
	for _, p := range cfg.DenyPatterns {
		if err := e.DenyURL(p); err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
	}
	for _, expr := range cfg.Rules {
		if err := e.AddRule(expr); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyScheme(scheme string) {
	e.DeniedSchemes[strings.ToLower(strings.TrimSuffix(scheme, ":"))] = true
}

func (e *DefaultPolicyEngine) DenyURL(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

// AddRule compiles a CEL expression that denies the plan when it evaluates
// to true.
func (e *DefaultPolicyEngine) AddRule(expr string) error {
	r, err := CompileRule(expr)
	if err != nil {
		return err
	}
	e.Rules = append(e.Rules, r)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Destination '%s' is not a valid URL", req.URL),
		}, nil
	}
	scheme := strings.ToLower(u.Scheme)

	if e.DeniedSchemes[scheme] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Scheme '%s' is restricted by system policy", scheme),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.URL) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Destination matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	vars := map[string]any{
		"url":    req.URL,
		"host":   u.Hostname(),
		"scheme": scheme,
		"steps":  append([]string{}, req.Steps...),
	}
	for _, r := range e.Rules {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		deny, err := r.Eval(vars)
		if err != nil {
			return Result{}, err
		}
		if deny {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Plan matches policy rule: %s", r.Expr),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
