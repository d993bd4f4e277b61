package browser

import (
	"fmt"
	"strings"
)

// ElementKind says how an indexed element is acted upon. It is decided once
// when the element is indexed.
type ElementKind int

const (
	KindUnknown ElementKind = iota
	KindButton
	KindSubmitInput
	KindTextInput
	KindTextArea
	KindLink
)

func (k ElementKind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindSubmitInput:
		return "submit_input"
	case KindTextInput:
		return "text_input"
	case KindTextArea:
		return "textarea"
	case KindLink:
		return "link"
	}
	return "unknown"
}

// Clickable reports whether the element is activated by a click.
func (k ElementKind) Clickable() bool {
	return k == KindButton || k == KindSubmitInput || k == KindLink
}

// Fillable reports whether the element takes typed text.
func (k ElementKind) Fillable() bool {
	return k == KindTextInput || k == KindTextArea
}

func (k ElementKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindOf resolves tag and input type to an ElementKind. Inputs that only
// trigger an action (submit, button, image, reset) are clicked rather than
// filled.
func KindOf(tag, inputType string) ElementKind {
	switch strings.ToLower(tag) {
	case "button":
		return KindButton
	case "a":
		return KindLink
	case "textarea":
		return KindTextArea
	case "input":
		switch strings.ToLower(inputType) {
		case "submit", "button", "image", "reset":
			return KindSubmitInput
		}
		return KindTextInput
	}
	return KindUnknown
}

// ElementBox is one indexed element of a capture. Index is 1-based and only
// meaningful for the capture it came from.
type ElementBox struct {
	Index  int         `json:"index"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Tag    string      `json:"tag"`
	Type   string      `json:"type,omitempty"`
	Kind   ElementKind `json:"kind"`
}

// IndexSelector addresses the element carrying box index i.
func IndexSelector(i int) string {
	return fmt.Sprintf(`[%s="%d"]`, IndexAttribute, i)
}

func (k *ElementKind) UnmarshalText(b []byte) error {
	for _, c := range []ElementKind{KindButton, KindSubmitInput, KindTextInput, KindTextArea, KindLink} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	*k = KindUnknown
	return nil
}
