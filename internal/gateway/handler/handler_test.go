package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	artifactcache "htmlchat/internal/cache/artifact"
	"htmlchat/internal/chat"
	"htmlchat/internal/gateway/handler"
	"htmlchat/internal/gateway/repository/artifact"
	"htmlchat/internal/gateway/server"
	"htmlchat/internal/gateway/session"
	"htmlchat/internal/ui"
)

type testEnv struct {
	srv      *httptest.Server
	client   *http.Client
	registry *session.Registry
}

func newTestEnv(t *testing.T, storeOpts []chat.Option, opts ...handler.Option) *testEnv {
	t.Helper()
	if storeOpts == nil {
		storeOpts = []chat.Option{chat.WithReplyDelay(5 * time.Millisecond), chat.WithUploadDelay(5 * time.Millisecond)}
	}
	reg := session.NewRegistry(16, time.Minute, func(string) *chat.Store {
		return chat.NewStore(storeOpts...)
	}, zap.NewNop())
	t.Cleanup(reg.Close)

	opts = append([]handler.Option{handler.WithMaxUploadBytes(1024)}, opts...)
	svc := handler.NewService(reg, opts...)
	srv := httptest.NewServer(server.NewMux(svc, zap.NewNop(), nil))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, registry: reg}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *http.Response {
	return e.do(t, http.MethodPost, path, strings.NewReader(body), "application/json")
}

func (e *testEnv) state(t *testing.T) chat.Snapshot {
	t.Helper()
	resp := e.do(t, http.MethodGet, "/api/state", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap chat.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func (e *testEnv) upload(t *testing.T, name string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, "/api/upload", &buf, mw.FormDataContentType())
}

func (e *testEnv) waitIdle(t *testing.T, messages int) chat.Snapshot {
	t.Helper()
	var snap chat.Snapshot
	require.Eventually(t, func() bool {
		snap = e.state(t)
		return !snap.IsProcessing && len(snap.Messages) == messages
	}, 2*time.Second, 10*time.Millisecond)
	return snap
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Message)
	return body.Code
}

func TestPageSetsSessionCookie(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "HTML Chat Renderer")

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == handler.SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	// The same client keeps its session.
	env.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, 1, env.registry.Len())
}

func TestSendMessageProducesBotReply(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.postJSON(t, "/api/messages", `{"text":"create a blue button"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	snap := env.waitIdle(t, 2)
	assert.Equal(t, chat.SenderUser, snap.Messages[0].Sender)
	assert.Equal(t, "create a blue button", snap.Messages[0].Text)
	assert.Equal(t, "I've created a blue button for you.", snap.Messages[1].Text)
	require.True(t, snap.Messages[1].HasHTML())
	assert.Contains(t, snap.Messages[1].HTML(), "bg-blue-500")
	assert.Equal(t, 2, snap.MessageCounter)
}

func TestSendWhileProcessingIsBusy(t *testing.T) {
	env := newTestEnv(t, []chat.Option{chat.WithReplyDelay(time.Minute)})

	require.Equal(t, http.StatusAccepted, env.postJSON(t, "/api/messages", `{"text":"hello"}`).StatusCode)
	resp := env.postJSON(t, "/api/messages", `{"text":"again"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "busy", decodeError(t, resp))

	snap := env.state(t)
	assert.Len(t, snap.Messages, 1)
	assert.True(t, snap.IsProcessing)
}

func TestSendRejectsBadJSON(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.postJSON(t, "/api/messages", `{"text":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", decodeError(t, resp))
}

func TestUploadIsAcknowledgedAndArchived(t *testing.T) {
	archive := artifact.NewMemoryStore()
	env := newTestEnv(t, nil, handler.WithArtifacts(archive))

	resp := env.upload(t, "page.html", []byte("<h1>hi</h1>"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	snap := env.waitIdle(t, 2)
	assert.Equal(t, "Uploaded: page.html", snap.Messages[0].Text)
	assert.Equal(t, chat.UploadAckText, snap.Messages[1].Text)
	assert.Equal(t, "<h1>hi</h1>", snap.Messages[1].HTML())

	list := env.do(t, http.MethodGet, "/api/artifacts", nil, "")
	require.Equal(t, http.StatusOK, list.StatusCode)
	var paths struct {
		Paths []string `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&paths))
	assert.Equal(t, []string{"uploads/0-page.html"}, paths.Paths)

	got := env.do(t, http.MethodGet, "/api/artifacts/uploads/0-page.html", nil, "")
	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "sandbox", got.Header.Get("Content-Security-Policy"))
	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "<h1>hi</h1>", string(body))

	missing := env.do(t, http.MethodGet, "/api/artifacts/nope.html", nil, "")
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		data   []byte
		status int
		code   string
	}{
		{"latin1", "page.html", []byte("caf\xe9"), http.StatusUnsupportedMediaType, "unsupported_encoding"},
		{"not html", "notes.txt", []byte("hello"), http.StatusUnsupportedMediaType, "unsupported_file_type"},
		{"too large", "big.html", bytes.Repeat([]byte("a"), 2048), http.StatusRequestEntityTooLarge, "too_large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			resp := env.upload(t, tt.file, tt.data)
			require.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, resp))

			snap := env.state(t)
			assert.Empty(t, snap.Messages)
			assert.False(t, snap.IsProcessing)
		})
	}
}

func TestUploadWithoutFileIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "nothing"))
	require.NoError(t, mw.Close())
	resp := env.do(t, http.MethodPost, "/api/upload", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, env.state(t).Messages)
}

func TestPanelShowAndClose(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.postJSON(t, "/api/panel", `{"html":"<p>x</p>"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := env.state(t)
	assert.True(t, snap.ShowSidePanel)
	assert.Equal(t, "<p>x</p>", snap.SidePanelHTMLContent)

	resp = env.do(t, http.MethodDelete, "/api/panel", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap = env.state(t)
	assert.False(t, snap.ShowSidePanel)
	assert.Empty(t, snap.SidePanelHTMLContent)

	resp = env.postJSON(t, "/api/panel", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", decodeError(t, resp))

	resp = env.postJSON(t, "/api/panel", `{"messageId":42}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, resp))
}

func TestPreviewIsServedInOpaqueOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	fragment := `<script>parent.document.title="owned"</script>`

	closed := env.do(t, http.MethodGet, "/preview?v=0", nil, "")
	assert.Equal(t, http.StatusNotFound, closed.StatusCode)

	body, err := json.Marshal(map[string]string{"html": fragment})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, env.postJSON(t, "/api/panel", string(body)).StatusCode)

	resp := env.do(t, http.MethodGet, "/preview?v=1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	csp := resp.Header.Get("Content-Security-Policy")
	assert.Equal(t, ui.PreviewCSP, csp)
	assert.True(t, strings.HasPrefix(csp, "sandbox"))
	assert.NotContains(t, csp, "allow-same-origin")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fragment, string(got))

	// The page itself only references the preview route.
	page := env.do(t, http.MethodGet, "/", nil, "")
	html, err := io.ReadAll(page.Body)
	require.NoError(t, err)
	assert.Contains(t, string(html), `src="/preview?v=`)
	assert.NotContains(t, string(html), "srcdoc")
	assert.NotContains(t, string(html), "parent.document")
}

func TestTranscriptDownloadIsArchived(t *testing.T) {
	archive := artifact.NewMemoryStore()
	env := newTestEnv(t, nil, handler.WithArtifacts(archive))

	require.Equal(t, http.StatusAccepted, env.postJSON(t, "/api/messages", `{"text":"show a form"}`).StatusCode)
	env.waitIdle(t, 2)

	resp := env.do(t, http.MethodGet, "/api/transcript", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "transcript.json")
	var transcript handler.Transcript
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&transcript))
	require.Len(t, transcript.Messages, 2)
	assert.Equal(t, "Here is a simple form structure.", transcript.Messages[1].Text)

	archived, err := archive.Get(t.Context(), transcript.SessionID, "transcript.json")
	require.NoError(t, err)
	assert.Contains(t, string(archived), "Here is a simple form structure.")
}

func TestArtifactsDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/api/artifacts", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "archiveCache")
}

func TestHealthReportsArchiveCache(t *testing.T) {
	cached := artifactcache.NewCachedStore(artifact.NewMemoryStore(), artifactcache.DefaultCacheConfig())
	env := newTestEnv(t, nil, handler.WithArtifacts(cached))

	// First listing misses, second is served from the cache.
	for range 2 {
		resp := env.do(t, http.MethodGet, "/api/artifacts", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status       string                         `json:"status"`
		ArchiveCache *artifactcache.MetricsSnapshot `json:"archiveCache"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	require.NotNil(t, body.ArchiveCache)
	assert.Equal(t, uint64(1), body.ArchiveCache.ListMisses)
	assert.Equal(t, uint64(1), body.ArchiveCache.ListHits)
	assert.Equal(t, uint64(1), body.ArchiveCache.OriginReads)
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/static/app.js", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
