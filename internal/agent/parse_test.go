package agent

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestParsePlan(t *testing.T) {
	raw := "```json\n" + `{"goto": "https://example.com", "action_plan": ["go to example.com", "read the page title"], "vision_only": ["read the page title"], "goal": "the page title"}` + "\n```"
	plan, err := ParsePlan([]byte(raw))
	require.NoError(t, err)

	want := &Plan{
		Goto:       "https://example.com",
		Steps:      []string{"go to example.com", "read the page title"},
		VisionOnly: []string{"read the page title"},
		Goal:       "the page title",
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("ParsePlan() mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, plan.IsVisionOnly("read the page title"))
	assert.False(t, plan.IsVisionOnly("Read the page title"), "membership is exact")
}

func TestParsePlan_Malformed(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":       "Sure! Here is your plan",
		"missing goto":   `{"action_plan": ["a"]}`,
		"empty goto":     `{"goto": "", "action_plan": ["a"]}`,
		"steps not list": `{"goto": "https://x", "action_plan": "a, b"}`,
		"array":          `[]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedPlanResponse)
		})
	}
}

func TestParsePlan_MissingVisionOnly(t *testing.T) {
	plan, err := ParsePlan([]byte(`{"goto": "https://x", "action_plan": ["a", "b"], "vision_only": null}`))
	require.NoError(t, err)
	assert.NotNil(t, plan.VisionOnly)
	assert.Empty(t, plan.VisionOnly)
}

func TestParseActions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Action
	}{
		{
			name: "bare list",
			raw:  `[{"target_index": 2, "input_text": "hello", "extracted_data": null}]`,
			want: []Action{{TargetIndex: ptr(2), InputText: ptr("hello")}},
		},
		{
			name: "actions wrapper",
			raw:  `{"actions": [{"target_index": 3, "input_text": null, "extracted_data": null}, {"target_index": null, "input_text": null, "extracted_data": "Example Domain"}]}`,
			want: []Action{{TargetIndex: ptr(3)}, {ExtractedData: ptr("Example Domain")}},
		},
		{
			name: "single object",
			raw:  `{"target_index": null, "input_text": null, "extracted_data": "42"}`,
			want: []Action{{ExtractedData: ptr("42")}},
		},
		{
			name: "box_click alias",
			raw:  `{"browser_actions": [{"box_click": 5, "input_text": "q", "extracted_data": ""}]}`,
			want: []Action{{TargetIndex: ptr(5), InputText: ptr("q"), ExtractedData: ptr("")}},
		},
		{
			name: "structured extracted data",
			raw:  `[{"target_index": null, "input_text": null, "extracted_data": {"title": "x"}}]`,
			want: []Action{{ExtractedData: ptr(`{"title": "x"}`)}},
		},
		{
			name: "empty list",
			raw:  `{"actions": []}`,
			want: []Action{},
		},
		{
			name: "empty input is not null",
			raw:  `[{"target_index": 1, "input_text": "", "extracted_data": null}]`,
			want: []Action{{TargetIndex: ptr(1), InputText: ptr("")}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseActions([]byte(tt.raw))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseActions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseActions_Malformed(t *testing.T) {
	for name, raw := range map[string]string{
		"prose":           "I would click the search box",
		"empty":           "",
		"string index":    `[{"target_index": "two"}]`,
		"fraction index":  `[{"target_index": 1.5}]`,
		"numeric input":   `[{"target_index": 1, "input_text": 5}]`,
		"ambiguous":       `{"a": [], "b": []}`,
		"list of strings": `["click 1"]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseActions([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedActionResponse)
		})
	}
}

func TestAction_MarshalKeepsExplicitNulls(t *testing.T) {
	raw, err := json.Marshal([]Action{{ExtractedData: ptr("x")}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"target_index": null, "input_text": null, "extracted_data": "x"}]`, string(raw))
	assert.Equal(t, `{target_index: null, input_text: null, extracted_data: "x"}`, Action{ExtractedData: ptr("x")}.String())
}
