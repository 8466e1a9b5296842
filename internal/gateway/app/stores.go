package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	artifactcache "htmlchat/internal/cache/artifact"
	"htmlchat/internal/chat"
	"htmlchat/internal/gateway/config"
	artifactrepo "htmlchat/internal/gateway/repository/artifact"
	"htmlchat/internal/llm"
)

// initArtifacts picks the archive backend. Remote backends get a
// read-through cache in front. A nil store means archiving is off.
func initArtifacts(ctx context.Context, cfg *config.Config, logger *zap.Logger) (artifactrepo.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Artifact.Backend {
	case config.ArtifactBackendNone:
		logger.Info("artifact store: disabled")
		return nil, noop, nil
	case config.ArtifactBackendMemory:
		logger.Info("artifact store: in-memory")
		return artifactrepo.NewMemoryStore(), noop, nil
	case config.ArtifactBackendPostgres:
		pg, err := artifactrepo.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize artifact postgres store: %w", err)
		}
		logger.Info("artifact store: postgres")
		return artifactcache.NewCachedStore(pg, artifactcache.DefaultCacheConfig()), pg.Close, nil
	case config.ArtifactBackendS3:
		s3Cfg := artifactrepo.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
			Prefix:    cfg.Artifact.Prefix,
		}
		s3Store, err := artifactrepo.NewS3Store(s3Cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize artifact s3 store: %w", err)
		}
		logger.Info("artifact store: s3", zap.String("bucket", s3Cfg.Bucket), zap.String("endpoint", s3Cfg.Endpoint))
		return artifactcache.NewCachedStore(s3Store, artifactcache.DefaultCacheConfig()), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown artifact backend %q", cfg.Artifact.Backend)
	}
}

// initResponder builds the rule responder from the intents file (or the
// built-in rules) and optionally puts Gemini in front of it.
func initResponder(ctx context.Context, cfg *config.Config, logger *zap.Logger) (chat.Responder, error) {
	rules := chat.DefaultRules()
	if path := cfg.Chat.IntentsFile; path != "" {
		loaded, err := chat.LoadRules(path)
		if err != nil {
			return nil, err
		}
		rules = loaded
		logger.Info("loaded intent rules", zap.String("file", path), zap.Int("rules", len(rules.Rules)))
	}
	scripted := chat.NewRuleResponder(rules)

	switch cfg.Responder.Provider {
	case config.ResponderGemini:
		gemini, err := llm.NewGeminiResponder(ctx, cfg.Responder.GeminiAPIKey, cfg.Responder.GeminiModel)
		if err != nil {
			return nil, err
		}
		logger.Info("responder: gemini", zap.String("model", cfg.Responder.GeminiModel))
		return llm.Wrap(gemini,
			llm.Fallback(scripted, logger.Named("llm")),
			llm.Timeout(cfg.Responder.Timeout),
			llm.Retry(cfg.Responder.Attempts, 300*time.Millisecond),
			llm.RateLimit(cfg.Responder.RPS, cfg.Responder.Burst),
		), nil
	default:
		logger.Info("responder: scripted")
		return scripted, nil
	}
}
