package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"htmlchat/internal/chat"
	"htmlchat/internal/gateway/config"
	"htmlchat/internal/gateway/handler"
	"htmlchat/internal/gateway/server"
	"htmlchat/internal/gateway/session"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	logger   *zap.Logger
	handler  http.Handler
	server   *server.Server
	sessions *session.Registry
	closers  []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Dependencies
	artifacts, closeArtifacts, err := initArtifacts(ctx, cfg, logger.Named("artifact"))
	if err != nil {
		return nil, err
	}
	responder, err := initResponder(ctx, cfg, logger)
	if err != nil {
		_ = closeArtifacts()
		return nil, fmt.Errorf("failed to initialize responder: %w", err)
	}

	chatLogger := logger.Named("chat")
	sessions := session.NewRegistry(cfg.Session.MaxSessions, cfg.Session.TTL, func(id string) *chat.Store {
		return chat.NewStore(
			chat.WithResponder(responder),
			chat.WithReplyDelay(cfg.Chat.ReplyDelay),
			chat.WithUploadDelay(cfg.Chat.UploadDelay),
			chat.WithMaxUploadBytes(cfg.Chat.MaxUploadBytes),
			chat.WithRateLimit(cfg.Chat.RatePerSecond, cfg.Chat.RateBurst),
			chat.WithLogger(chatLogger.With(zap.String("session", id))),
		)
	}, logger.Named("session"))

	opts := []handler.Option{
		handler.WithLogger(logger.Named("gateway")),
		handler.WithMaxUploadBytes(cfg.Chat.MaxUploadBytes),
	}
	if artifacts != nil {
		opts = append(opts, handler.WithArtifacts(artifacts))
	}
	svc := handler.NewService(sessions, opts...)

	// Routing & Server
	mux := server.NewMux(svc, logger.Named("http"), cfg.CORSOrigins)
	srv := server.New(cfg.Port, mux, logger)

	return &App{
		logger:   logger,
		handler:  mux,
		server:   srv,
		sessions: sessions,
		closers:  []func() error{closeArtifacts},
	}, nil
}

// Handler exposes the routed handler without the listener.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves until ctx ends, then shuts the server down and closes every
// session.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := a.server.Shutdown(shutdownCtx)
		return errors.Join(err, a.Close())
	})
	return g.Wait()
}

// Close ends every session and releases the archive backend.
func (a *App) Close() error {
	a.sessions.Close()
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
