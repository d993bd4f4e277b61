package browser_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rahul/webpilot/internal/browser"
	"github.com/rahul/webpilot/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var form = map[string]browsertest.Site{
	"https://example.com/form": {Elements: []browsertest.Element{
		{Tag: "a"},
		{Tag: "input", Type: "text"},
		{Tag: "textarea"},
		{Tag: "input", Type: "submit"},
		{Tag: "button"},
	}},
	"https://example.com/next": {Elements: []browsertest.Element{
		{Tag: "button"},
	}},
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		tag, typ string
		want     browser.ElementKind
	}{
		{"button", "", browser.KindButton},
		{"BUTTON", "", browser.KindButton},
		{"a", "", browser.KindLink},
		{"textarea", "", browser.KindTextArea},
		{"input", "text", browser.KindTextInput},
		{"input", "", browser.KindTextInput},
		{"input", "email", browser.KindTextInput},
		{"input", "submit", browser.KindSubmitInput},
		{"input", "IMAGE", browser.KindSubmitInput},
		{"input", "reset", browser.KindSubmitInput},
		{"div", "", browser.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.tag+"/"+tt.typ, func(t *testing.T) {
			got := browser.KindOf(tt.tag, tt.typ)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.Clickable(), tt.want == browser.KindButton || tt.want == browser.KindSubmitInput || tt.want == browser.KindLink)
		})
	}
}

func TestElementKind_TextRoundTrip(t *testing.T) {
	for _, k := range []browser.ElementKind{browser.KindButton, browser.KindSubmitInput, browser.KindTextInput, browser.KindTextArea, browser.KindLink} {
		b, err := k.MarshalText()
		require.NoError(t, err)
		var got browser.ElementKind
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, k, got)
	}
}

func TestIndexer_AnnotateAndCapture(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	page := browsertest.NewPage(form)
	require.NoError(t, page.Navigate(ctx, "https://example.com/form"))

	ix := browser.NewIndexer(dir, false, false, zaptest.NewLogger(t))
	capture, err := ix.AnnotateAndCapture(ctx, page, "q1", 2, true)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "q1_2.png"), capture.Ref)
	data, err := os.ReadFile(capture.Ref)
	require.NoError(t, err)
	assert.Equal(t, capture.Image, data)

	require.Len(t, capture.Boxes, 4, "links are skipped unless enabled")
	for i, b := range capture.Boxes {
		assert.Equal(t, i+1, b.Index)
	}
	assert.Equal(t, browser.KindTextInput, capture.Boxes[0].Kind)
	assert.Equal(t, browser.KindTextArea, capture.Boxes[1].Kind)
	assert.Equal(t, browser.KindSubmitInput, capture.Boxes[2].Kind)
	assert.Equal(t, browser.KindButton, capture.Boxes[3].Kind)
	assert.Equal(t, 1, page.Overlays())

	_, ok := capture.Box(5)
	assert.False(t, ok)
}

func TestIndexer_IncludeLinks(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewPage(form)
	require.NoError(t, page.Navigate(ctx, "https://example.com/form"))

	ix := browser.NewIndexer(t.TempDir(), true, false, zaptest.NewLogger(t))
	assert.Equal(t, "button, input, textarea, a", ix.Selector())

	capture, err := ix.AnnotateAndCapture(ctx, page, "q1", 1, false)
	require.NoError(t, err)
	require.Len(t, capture.Boxes, 5)
	assert.Equal(t, browser.KindLink, capture.Boxes[0].Kind)
	assert.Zero(t, page.Overlays())
}

func TestIndexer_IndicesAreFreshPerPass(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewPage(form)
	ix := browser.NewIndexer(t.TempDir(), false, false, zaptest.NewLogger(t))

	require.NoError(t, page.Navigate(ctx, "https://example.com/form"))
	first, err := ix.AnnotateAndCapture(ctx, page, "q1", 1, false)
	require.NoError(t, err)
	require.Len(t, first.Boxes, 4)

	require.NoError(t, page.Navigate(ctx, "https://example.com/next"))
	assert.Error(t, page.Click(ctx, browser.IndexSelector(4)), "indices do not survive navigation")

	second, err := ix.AnnotateAndCapture(ctx, page, "q1", 2, false)
	require.NoError(t, err)
	require.Len(t, second.Boxes, 1)
	assert.Equal(t, 1, second.Boxes[0].Index)
	assert.NoError(t, page.Click(ctx, browser.IndexSelector(1)))
	assert.Error(t, page.Click(ctx, browser.IndexSelector(2)))
}

func TestIndexer_CaptureHalted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	page := browsertest.NewPage(form)
	require.NoError(t, page.Navigate(ctx, "https://example.com/form"))

	ix := browser.NewIndexer(dir, false, false, zaptest.NewLogger(t))
	capture, err := ix.CaptureHalted(ctx, page, "q9", 3)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "q9_3.png"), capture.Ref)
	assert.Empty(t, capture.Boxes)
	assert.Len(t, page.Calls("stop"), 1)
	assert.Empty(t, page.Calls("evaluate"), "no indexing on extraction steps")
}

func TestIndexer_CaptureHaltedRemovesOverlay(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewPage(form)
	require.NoError(t, page.Navigate(ctx, "https://example.com/form"))

	ix := browser.NewIndexer(t.TempDir(), false, false, zaptest.NewLogger(t))
	_, err := ix.AnnotateAndCapture(ctx, page, "q1", 1, true)
	require.NoError(t, err)
	_, err = ix.CaptureHalted(ctx, page, "q1", 2)
	require.NoError(t, err)

	assert.Equal(t, []browsertest.Call{
		{Op: "screenshot", Text: "overlaid"},
		{Op: "screenshot"},
	}, page.Calls("screenshot"))
	assert.Len(t, page.Calls("clear overlay"), 1)
}

func TestIndexer_CaptureHaltedClearFailure(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewPage(form)
	require.NoError(t, page.Navigate(ctx, "https://example.com/form"))
	page.Fail["clear overlay"] = errors.New("execution context was destroyed")

	ix := browser.NewIndexer(t.TempDir(), false, false, zaptest.NewLogger(t))
	_, err := ix.CaptureHalted(ctx, page, "q1", 1)
	var se *browser.SessionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "clear overlay", se.Op)
	assert.Empty(t, page.Calls("screenshot"))
}

func TestIndexer_SessionFailure(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewPage(form)
	require.NoError(t, page.Navigate(ctx, "https://example.com/form"))
	page.Fail["screenshot"] = errors.New("target closed")

	ix := browser.NewIndexer(t.TempDir(), false, false, zaptest.NewLogger(t))
	_, err := ix.AnnotateAndCapture(ctx, page, "q1", 1, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrSessionFailure)

	var se *browser.SessionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "screenshot", se.Op)
}

func TestPalette(t *testing.T) {
	colors := browser.Palette(64)
	require.Len(t, colors, 64)
	seen := map[string]bool{}
	for _, c := range colors {
		assert.False(t, seen[c], "duplicate colour %s", c)
		seen[c] = true
	}
}

func TestIndexSelector(t *testing.T) {
	assert.Equal(t, `[data-box-number="7"]`, browser.IndexSelector(7))
}

func TestDigest(t *testing.T) {
	html := `<html><head><title>Example Domain</title></head><body>
<div><h1>Example Domain</h1>
<p>This domain is for use in illustrative examples in documents. You may use this
domain in literature without prior coordination or asking for permission.</p>
<p><script>alert(1)</script><a href="https://www.iana.org/domains/example">More information...</a></p></div>
</body></html>`

	text, err := browser.Digest(html, "https://example.com/", 0)
	require.NoError(t, err)
	assert.Contains(t, text, "TITLE: Example Domain")
	assert.Contains(t, text, "illustrative examples")
	assert.NotContains(t, text, "<p>")
	assert.NotContains(t, text, "alert(1)")

	short, err := browser.Digest(html, "https://example.com/", 20)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(short), 24)
}

func TestPageText(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewPage(map[string]browsertest.Site{
		"https://example.com/": {HTML: `<html><head><title>Example Domain</title></head><body><p>This domain is for use in illustrative examples in documents.</p></body></html>`},
	})
	require.NoError(t, page.Navigate(ctx, "https://example.com/"))
	text, err := browser.PageText(ctx, page, 100)
	require.NoError(t, err)
	assert.Contains(t, text, "illustrative examples")
	assert.LessOrEqual(t, len(text), 104)
}
