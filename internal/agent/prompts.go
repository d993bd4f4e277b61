package agent

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

const (
	plannerPrompt    = "planner.md"
	groundingPrompt  = "grounding.md"
	visionOnlyPrompt = "vision_only.md"
)

// PromptManager renders the completion prompts. Files in Directory named
// like the built-in ones replace them.
type PromptManager struct {
	Directory string
	templates map[string]*template.Template
}

func NewPromptManager(dir string) (*PromptManager, error) {
	pm := &PromptManager{Directory: dir, templates: map[string]*template.Template{}}
	for _, name := range []string{plannerPrompt, groundingPrompt, visionOnlyPrompt} {
		text, err := pm.source(name)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt %s: %w", name, err)
		}
		pm.templates[name] = tmpl
	}
	return pm, nil
}

func (pm *PromptManager) source(name string) (string, error) {
	if pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}
	data, err := fs.ReadFile(defaultPrompts, "prompts/"+name)
	if err != nil {
		return "", fmt.Errorf("failed to read built-in prompt %s: %w", name, err)
	}
	return string(data), nil
}

func (pm *PromptManager) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := pm.templates[name].Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

func (pm *PromptManager) PlannerPrompt(query string) (string, error) {
	return pm.render(plannerPrompt, struct{ Query string }{query})
}

func (pm *PromptManager) GroundingPrompt(step string) (string, error) {
	return pm.render(groundingPrompt, struct{ Step string }{step})
}

// VisionOnlyPrompt renders the extraction prompt. pageText may be empty.
func (pm *PromptManager) VisionOnlyPrompt(step, pageText string) (string, error) {
	return pm.render(visionOnlyPrompt, struct{ Step, PageText string }{step, pageText})
}
