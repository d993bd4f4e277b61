package agent

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Plan is the structured reading of a request. Steps[0] is the implicit
// navigation to Goto and is never executed.
type Plan struct {
	Goto       string   `json:"goto" yaml:"goto"`
	Steps      []string `json:"action_plan" yaml:"action_plan"`
	VisionOnly []string `json:"vision_only" yaml:"vision_only"`
	Goal       string   `json:"goal" yaml:"goal"`
	QueryID    string   `json:"query_id,omitempty" yaml:"query_id,omitempty"`
	Query      string   `json:"query,omitempty" yaml:"query,omitempty"`
}

// IsVisionOnly reports whether step only extracts information. Membership
// is exact text equality.
func (p *Plan) IsVisionOnly(step string) bool {
	return slices.Contains(p.VisionOnly, step)
}

// ParsePlan reads a completion as a plan.
func ParsePlan(raw []byte) (*Plan, error) {
	raw = trimFence(raw)
	if err := validate(planSchema, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlanResponse, err)
	}
	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlanResponse, err)
	}
	if p.VisionOnly == nil {
		p.VisionOnly = []string{}
	}
	return &p, nil
}
