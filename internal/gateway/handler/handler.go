package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"htmlchat/internal/chat"
	"htmlchat/internal/gateway/repository/artifact"
	"htmlchat/internal/gateway/session"
)

// SessionCookie carries the session id between the page, the websocket
// and the upload endpoint.
const SessionCookie = "htmlchat_session"

const archiveTimeout = 5 * time.Second

// Service serves every chat surface. All of them resolve the caller's
// session from the cookie and act on that session's store.
type Service struct {
	sessions       *session.Registry
	artifacts      artifact.Store
	logger         *zap.Logger
	maxUploadBytes int64
}

type Option func(*Service)

// WithArtifacts enables archiving of uploads and transcripts.
func WithArtifacts(store artifact.Store) Option {
	return func(s *Service) { s.artifacts = store }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func NewService(sessions *session.Registry, opts ...Option) *Service {
	s := &Service{
		sessions:       sessions,
		logger:         zap.NewNop(),
		maxUploadBytes: chat.DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveSession returns the caller's session. The returned cookie is
// non-nil when the client must be told about a new session id.
func (s *Service) resolveSession(r *http.Request) (*session.Session, *http.Cookie) {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, created := s.sessions.GetOrCreate(id)
	if !created && sess.ID == id {
		return sess, nil
	}
	return sess, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	}
}

func (s *Service) session(w http.ResponseWriter, r *http.Request) *session.Session {
	sess, cookie := s.resolveSession(r)
	if cookie != nil {
		http.SetCookie(w, cookie)
	}
	return sess
}

// archive stores an export when a backend is configured. Failures are
// logged and never reach the user.
func (s *Service) archive(ctx context.Context, sessionID, p string, content []byte) {
	if s.artifacts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := s.artifacts.Put(ctx, sessionID, p, content); err != nil {
		s.logger.Warn("archive failed", zap.String("session", sessionID), zap.String("path", p), zap.Error(err))
		return
	}
	s.logger.Debug("archived", zap.String("session", sessionID), zap.String("path", p), zap.Int("bytes", len(content)))
}
