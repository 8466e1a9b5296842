package ui

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htmlchat/internal/chat"
)

func ptr(s string) *string { return &s }

func sampleSnapshot() chat.Snapshot {
	return chat.Snapshot{
		Messages: []chat.Message{
			{ID: 0, Text: "show <script>alert(1)</script> a card", Sender: chat.SenderUser},
			{ID: 1, Text: "Here is a card component.", Sender: chat.SenderBot, HTMLContent: ptr("<div>card</div>")},
		},
		MessageCounter: 2,
		Version:        7,
	}
}

func TestBuildView(t *testing.T) {
	v := BuildView(sampleSnapshot())

	assert.Equal(t, AppTitle, v.Title)
	require.Len(t, v.Messages, 2)
	assert.True(t, v.Messages[0].IsUser())
	assert.False(t, v.Messages[0].HasHTML)
	assert.Equal(t, RoleBot, v.Messages[1].Role)
	assert.True(t, v.Messages[1].HasHTML)
	assert.False(t, v.Typing)
	assert.False(t, v.Input.Disabled)
	assert.False(t, v.Panel.Open)
	assert.Equal(t, uint64(7), v.Version)
}

func TestRenderEscapesMessageText(t *testing.T) {
	out, err := RenderSnapshot(sampleSnapshot())
	require.NoError(t, err)

	assert.Contains(t, out, AppTitle)
	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, `data-show-message="1"`)
	assert.NotContains(t, out, `data-show-message="0"`)
	assert.Equal(t, 1, strings.Count(out, "Click to view HTML output"))
	assert.NotContains(t, out, "<iframe")
	assert.NotContains(t, out, "typing")
}

func TestRenderProcessingDisablesInput(t *testing.T) {
	snap := sampleSnapshot()
	snap.IsProcessing = true

	out, err := RenderSnapshot(snap)
	require.NoError(t, err)
	assert.Contains(t, out, `aria-label="typing"`)
	assert.Contains(t, out, `placeholder="Type your message..." disabled>`)
	assert.Contains(t, out, `class="send" disabled>`)
}

func TestRenderOpenPanelLoadsIsolatedPreview(t *testing.T) {
	snap := sampleSnapshot()
	snap.ShowSidePanel = true
	snap.SidePanelHTMLContent = `<script>parent.document.title="owned"</script>`

	out, err := RenderSnapshot(snap)
	require.NoError(t, err)
	assert.Contains(t, out, `side-panel open`)
	assert.Contains(t, out, `src="/preview?v=7"`)
	assert.NotContains(t, out, "srcdoc")
	assert.NotContains(t, out, "parent.document")
}

func TestPreviewCSPHasOpaqueOrigin(t *testing.T) {
	assert.True(t, strings.HasPrefix(PreviewCSP, "sandbox "))
	assert.NotContains(t, PreviewCSP, "allow-same-origin")
	assert.Contains(t, PreviewCSP, "allow-scripts")
	assert.Equal(t, "/preview?v=12", PreviewSrc(12))
}

func TestWritePageAndStatic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePage(&buf, chat.Snapshot{}))
	page := buf.String()
	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, `<main id="app">`)
	assert.Contains(t, page, `/static/app.js`)

	for _, name := range []string{"app.js", "app.css"} {
		rec := httptest.NewRecorder()
		Static().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/"+name, nil))
		assert.Equal(t, http.StatusOK, rec.Code, name)
		assert.NotZero(t, rec.Body.Len(), name)
	}
}
