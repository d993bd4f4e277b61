package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptManager_BuiltIn(t *testing.T) {
	pm, err := NewPromptManager("")
	require.NoError(t, err)

	planner, err := pm.PlannerPrompt("find the weather")
	require.NoError(t, err)
	assert.Contains(t, planner, "User query - find the weather")

	grounding, err := pm.GroundingPrompt("click login")
	require.NoError(t, err)
	assert.Contains(t, grounding, "We need to perform this action: click login\n")

	vision, err := pm.VisionOnlyPrompt("read the price", "")
	require.NoError(t, err)
	assert.Contains(t, vision, "target_index must be null")
	assert.NotContains(t, vision, "readable text")

	vision, err = pm.VisionOnlyPrompt("read the price", "PRICE 10")
	require.NoError(t, err)
	assert.Contains(t, vision, "PRICE 10")
}

func TestPromptManager_Override(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "planner.md"), []byte("PLAN {{.Query}}"), 0o644))

	pm, err := NewPromptManager(dir)
	require.NoError(t, err)

	planner, err := pm.PlannerPrompt("q")
	require.NoError(t, err)
	assert.Equal(t, "PLAN q", planner)

	grounding, err := pm.GroundingPrompt("s")
	require.NoError(t, err)
	assert.Contains(t, grounding, "action: s")
}

func TestPromptManager_BadOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grounding.md"), []byte("{{.Step"), 0o644))
	_, err := NewPromptManager(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "grounding.md"), []byte("{{.Missing}}"), 0o644))
	pm, err := NewPromptManager(dir)
	require.NoError(t, err)
	_, err = pm.GroundingPrompt("s")
	assert.Error(t, err)
}
