package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Action is one low-level browser action. A nil field does not apply: a
// nil TargetIndex means no click, a nil InputText means nothing to type.
type Action struct {
	TargetIndex   *int    `json:"target_index"`
	InputText     *string `json:"input_text"`
	ExtractedData *string `json:"extracted_data"`
}

// String renders a for logs.
func (a Action) String() string {
	idx, text, data := "null", "null", "null"
	if a.TargetIndex != nil {
		idx = strconv.Itoa(*a.TargetIndex)
	}
	if a.InputText != nil {
		text = strconv.Quote(*a.InputText)
	}
	if a.ExtractedData != nil {
		data = strconv.Quote(*a.ExtractedData)
	}
	return fmt.Sprintf("{target_index: %s, input_text: %s, extracted_data: %s}", idx, text, data)
}

// ExtractedData collects the non-null extracted values of actions.
func ExtractedData(actions []Action) []string {
	var out []string
	for _, a := range actions {
		if a.ExtractedData != nil {
			out = append(out, *a.ExtractedData)
		}
	}
	return out
}

// ParseActions reads a grounding completion. The list may come bare, as a
// single object, or wrapped in an object under one key ("actions" is
// preferred). "box_click" is accepted for target_index. Extracted data that
// is not a string is kept as its JSON text.
func ParseActions(raw []byte) ([]Action, error) {
	items, err := actionItems(trimFence(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedActionResponse, err)
	}

	normalized := make([]map[string]json.RawMessage, 0, len(items))
	for _, item := range items {
		if idx, ok := item["box_click"]; ok {
			if _, has := item["target_index"]; !has {
				item["target_index"] = idx
			}
			delete(item, "box_click")
		}
		normalized = append(normalized, item)
	}
	doc, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedActionResponse, err)
	}
	if err := validate(actionsSchema, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedActionResponse, err)
	}

	actions := make([]Action, 0, len(normalized))
	for _, item := range normalized {
		a, err := decodeAction(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedActionResponse, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func actionItems(raw []byte) ([]map[string]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	switch raw[0] {
	case '[':
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		if isActionObject(obj) {
			return []map[string]json.RawMessage{obj}, nil
		}
		if list, ok := obj["actions"]; ok {
			return actionItems(list)
		}
		// Some models pick their own wrapper key; take the single list.
		keys := make([]string, 0, len(obj))
		for k, v := range obj {
			if v = bytes.TrimSpace(v); len(v) > 0 && v[0] == '[' {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		if len(keys) == 1 {
			return actionItems(obj[keys[0]])
		}
		return nil, fmt.Errorf("no action list in object with keys %v", mapKeys(obj))
	}
	return nil, fmt.Errorf("response is not a JSON object or array")
}

func isActionObject(obj map[string]json.RawMessage) bool {
	for _, k := range []string{"target_index", "box_click", "input_text", "extracted_data"} {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func decodeAction(item map[string]json.RawMessage) (Action, error) {
	var a Action
	if raw, ok := item["target_index"]; ok && !isNull(raw) {
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return a, fmt.Errorf("target_index: %v", err)
		}
		idx := int(f)
		a.TargetIndex = &idx
	}
	if raw, ok := item["input_text"]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return a, fmt.Errorf("input_text: %v", err)
		}
		a.InputText = &s
	}
	if raw, ok := item["extracted_data"]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(bytes.TrimSpace(raw))
		}
		a.ExtractedData = &s
	}
	return a, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func mapKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// trimFence strips a markdown code fence some providers wrap JSON in even
// in JSON mode.
func trimFence(raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if !bytes.HasPrefix(raw, []byte("```")) {
		return raw
	}
	raw = bytes.TrimPrefix(raw, []byte("```"))
	if nl := bytes.IndexByte(raw, '\n'); nl >= 0 {
		raw = raw[nl+1:]
	}
	raw = bytes.TrimSuffix(bytes.TrimSpace(raw), []byte("```"))
	return bytes.TrimSpace(raw)
}
