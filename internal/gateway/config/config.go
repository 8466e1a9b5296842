package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ArtifactBackendNone     = "none"
	ArtifactBackendMemory   = "memory"
	ArtifactBackendPostgres = "postgres"
	ArtifactBackendS3       = "s3"

	ResponderScripted = "scripted"
	ResponderGemini   = "gemini"
)

type Config struct {
	Port        string `env:"PORT" envDefault:":8081"`
	Env         string `env:"APP_ENV" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL"`

	// CORSOrigins lists the exact origins allowed to call the API with the
	// session cookie. Empty disables cross-origin access.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	Chat      ChatConfig
	Session   SessionConfig
	Responder ResponderConfig
	Artifact  ArtifactConfig
}

type ChatConfig struct {
	ReplyDelay     time.Duration `env:"CHAT_REPLY_DELAY" envDefault:"1500ms"`
	UploadDelay    time.Duration `env:"CHAT_UPLOAD_DELAY" envDefault:"1s"`
	MaxUploadBytes int64         `env:"CHAT_MAX_UPLOAD_BYTES" envDefault:"1048576"`
	RatePerSecond  float64       `env:"CHAT_RATE_PER_SECOND" envDefault:"5"`
	RateBurst      int           `env:"CHAT_RATE_BURST" envDefault:"10"`
	IntentsFile    string        `env:"CHAT_INTENTS_FILE"`
}

type SessionConfig struct {
	TTL         time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	MaxSessions int           `env:"SESSION_MAX" envDefault:"1024"`
}

type ResponderConfig struct {
	Provider     string `env:"RESPONDER" envDefault:"scripted"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	Timeout  time.Duration `env:"RESPONDER_TIMEOUT" envDefault:"20s"`
	Attempts int           `env:"RESPONDER_ATTEMPTS" envDefault:"3"`
	RPS      float64       `env:"GEMINI_RPS" envDefault:"1"`
	Burst    int           `env:"GEMINI_BURST" envDefault:"2"`
}

type ArtifactConfig struct {
	Backend   string `env:"ARTIFACT_BACKEND"`
	Endpoint  string `env:"ARTIFACT_S3_ENDPOINT"`
	Region    string `env:"ARTIFACT_S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"ARTIFACT_S3_ACCESS_KEY"`
	SecretKey string `env:"ARTIFACT_S3_SECRET_KEY"`
	Bucket    string `env:"ARTIFACT_S3_BUCKET" envDefault:"htmlchat-artifacts"`
	UseSSL    bool   `env:"ARTIFACT_S3_USE_SSL" envDefault:"true"`
	Prefix    string `env:"ARTIFACT_S3_PREFIX" envDefault:"chats"`
}

// CanUseS3 reports whether every setting the S3 store needs is present.
func (a ArtifactConfig) CanUseS3() bool {
	return strings.TrimSpace(a.Endpoint) != "" &&
		strings.TrimSpace(a.AccessKey) != "" &&
		strings.TrimSpace(a.SecretKey) != "" &&
		strings.TrimSpace(a.Bucket) != ""
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	applyLocalDefaults(cfg)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overrides carries command-line flags; empty values leave the config alone.
type Overrides struct {
	Port        string
	IntentsFile string
	Verbose     bool
}

func (c *Config) Apply(o Overrides) {
	if v := strings.TrimSpace(o.Port); v != "" {
		c.Port = normalizePort(v)
	}
	if v := strings.TrimSpace(o.IntentsFile); v != "" {
		c.Chat.IntentsFile = v
	}
	if o.Verbose {
		c.LogLevel = "debug"
	}
}

func (c *Config) Validate() error {
	switch c.Artifact.Backend {
	case ArtifactBackendNone, ArtifactBackendMemory:
	case ArtifactBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: ARTIFACT_BACKEND=postgres requires DATABASE_URL")
		}
	case ArtifactBackendS3:
		if !c.Artifact.CanUseS3() {
			return fmt.Errorf("config: ARTIFACT_BACKEND=s3 requires endpoint, access key, secret key and bucket")
		}
	default:
		return fmt.Errorf("config: unknown ARTIFACT_BACKEND %q", c.Artifact.Backend)
	}
	switch c.Responder.Provider {
	case ResponderScripted, ResponderGemini:
	default:
		return fmt.Errorf("config: unknown RESPONDER %q", c.Responder.Provider)
	}
	if c.Chat.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: CHAT_MAX_UPLOAD_BYTES must be positive")
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("config: SESSION_MAX must be positive")
	}
	return nil
}

func (c *Config) normalize() {
	c.Port = normalizePort(c.Port)
	c.Env = strings.TrimSpace(c.Env)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins
	c.Artifact.Backend = strings.ToLower(strings.TrimSpace(c.Artifact.Backend))
	if c.Artifact.Backend == "" {
		c.Artifact.Backend = ArtifactBackendNone
	}
	c.Responder.Provider = strings.ToLower(strings.TrimSpace(c.Responder.Provider))
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" || strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
