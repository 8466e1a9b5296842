package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	artifactcache "htmlchat/internal/cache/artifact"
	"htmlchat/internal/chat"
	"htmlchat/internal/ui"
)

const maxJSONBody = 2 << 20

const transcriptPath = "transcript.json"

// HandlePage serves the shell page with the current state inlined.
func (s *Service) HandlePage(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := ui.WritePage(w, sess.Store.Snapshot()); err != nil {
		s.logger.Error("render page failed", zap.String("session", sess.ID), zap.Error(err))
	}
}

// HandlePreview serves the open panel's fragment as a standalone document.
// PreviewCSP puts it in an opaque origin, so its scripts cannot reach the
// app page, the session cookie or the websocket.
func (s *Service) HandlePreview(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	snap := sess.Store.Snapshot()
	w.Header().Set("Cache-Control", "no-store")
	if !snap.ShowSidePanel {
		http.Error(w, "no preview open", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", ui.PreviewCSP)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = io.WriteString(w, snap.SidePanelHTMLContent)
}

func (s *Service) HandleState(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	writeJSON(w, http.StatusOK, sess.Store.Snapshot())
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (s *Service) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sess.Store.SendMessage(req.Text); err != nil {
		s.logger.Info("send rejected", zap.String("session", sess.ID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Store.Snapshot())
}

type showPanelRequest struct {
	HTML      string `json:"html"`
	MessageID *int   `json:"messageId,omitempty"`
}

func (s *Service) HandleShowPanel(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	var req showPanelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := showPanel(sess.Store, req.HTML, req.MessageID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Store.Snapshot())
}

func (s *Service) HandleClosePanel(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	sess.Store.CloseSidePanel()
	writeJSON(w, http.StatusOK, sess.Store.Snapshot())
}

// Transcript is the downloadable export of one session.
type Transcript struct {
	SessionID  string         `json:"sessionId"`
	ExportedAt time.Time      `json:"exportedAt"`
	Messages   []chat.Message `json:"messages"`
}

func (s *Service) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	body, err := json.MarshalIndent(Transcript{
		SessionID:  sess.ID,
		ExportedAt: time.Now().UTC(),
		Messages:   sess.Store.Snapshot().Messages,
	}, "", "  ")
	if err != nil {
		writeError(w, err)
		return
	}
	s.archive(r.Context(), sess.ID, transcriptPath, body)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+transcriptPath+`"`)
	_, _ = w.Write(body)
}

func (s *Service) HandleListArtifacts(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if s.artifacts == nil {
		writeJSON(w, http.StatusNotFound, apiError{Code: "not_found", Message: "Archiving is disabled."})
		return
	}
	paths, err := s.artifacts.List(r.Context(), sess.ID)
	if err != nil {
		s.logger.Warn("list artifacts failed", zap.String("session", sess.ID), zap.Error(err))
		writeError(w, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"paths": paths})
}

// HandleGetArtifact downloads one archived file. Archived HTML is served
// under a sandbox policy so it cannot run with this origin's privileges.
func (s *Service) HandleGetArtifact(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if s.artifacts == nil {
		writeJSON(w, http.StatusNotFound, apiError{Code: "not_found", Message: "Archiving is disabled."})
		return
	}
	p := strings.TrimSpace(r.PathValue("path"))
	if p == "" {
		writeBadRequest(w, "path is required")
		return
	}
	content, err := s.artifacts.Get(r.Context(), sess.ID, p)
	if err != nil {
		writeError(w, err)
		return
	}
	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Security-Policy", "sandbox")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(content)
}

// cacheMetrics is implemented by archives that sit behind a cache.
type cacheMetrics interface {
	Metrics() artifactcache.MetricsSnapshot
}

func (s *Service) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	}
	if m, ok := s.artifacts.(cacheMetrics); ok {
		body["archiveCache"] = m.Metrics()
	}
	writeJSON(w, http.StatusOK, body)
}

func showPanel(store *chat.Store, html string, messageID *int) error {
	if messageID != nil {
		return store.ShowMessageInPanel(*messageID)
	}
	if strings.TrimSpace(html) == "" {
		return errMissingPanelContent
	}
	store.ShowHTMLInPanel(html)
	return nil
}

var errMissingPanelContent = errors.New("html or messageId is required")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
