// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type BackendConfig struct {
	GraphQLURL string `yaml:"graphql_url"` // request/response endpoint
	WSURL      string `yaml:"ws_url"`      // streaming endpoint; empty disables subscriptions
	// PollInterval drives the refetch fallback used when ws_url is empty.
	PollInterval time.Duration `yaml:"poll_interval"`
}

type AuthConfig struct {
	URL      string `yaml:"url"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	// RefreshMargin is how long before token expiry a refresh is scheduled.
	RefreshMargin time.Duration `yaml:"refresh_margin"`
}

type CacheConfig struct {
	RedisURL      string        `yaml:"redis_url"` // empty disables snapshot persistence
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
	// EncryptionKey, when set (16/24/32 bytes), encrypts snapshots at rest.
	EncryptionKey string `yaml:"encryption_key"`
}

type ResponderConfig struct {
	Mode            string        `yaml:"mode"` // heuristic | openai | gemini | action
	OpenAIKey       string        `yaml:"openai_key"`
	OpenAIModel     string        `yaml:"openai_model"`
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiURL       string        `yaml:"gemini_url"`
	MaxPromptTokens int           `yaml:"max_prompt_tokens"`
	MinDelay        time.Duration `yaml:"min_delay"` // simulated thinking window
	MaxDelay        time.Duration `yaml:"max_delay"`
}

type DevServerConfig struct {
	Port        int           `yaml:"port"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	DatabaseURL string        `yaml:"database_url"` // empty runs the in-memory store
	BotWorkers  int           `yaml:"bot_workers"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Backend   BackendConfig   `yaml:"backend"`
	Auth      AuthConfig      `yaml:"auth"`
	Cache     CacheConfig     `yaml:"cache"`
	Responder ResponderConfig `yaml:"responder"`
	DevServer DevServerConfig `yaml:"devserver"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()

	// Minimal validation
	if cfg.Backend.GraphQLURL == "" {
		return nil, errors.New("backend.graphql_url is required")
	}
	if cfg.Auth.URL == "" {
		return nil, errors.New("auth.url is required")
	}
	switch cfg.Responder.Mode {
	case "heuristic", "action":
	case "openai":
		if cfg.Responder.OpenAIKey == "" {
			return nil, errors.New("responder.openai_key is required for mode=openai")
		}
	case "gemini":
		if cfg.Responder.GeminiKey == "" {
			return nil, errors.New("responder.gemini_key is required for mode=gemini")
		}
	default:
		return nil, fmt.Errorf("unknown responder.mode %q", cfg.Responder.Mode)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// ApplyDefaults fills zero values in place. Exposed so tests and the demo can
// build a Config without a file on disk.
func (cfg *Config) ApplyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Backend.PollInterval <= 0 {
		cfg.Backend.PollInterval = 5 * time.Second
	}
	if cfg.Auth.RefreshMargin <= 0 {
		cfg.Auth.RefreshMargin = 30 * time.Second
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Responder.Mode == "" {
		cfg.Responder.Mode = "heuristic"
	}
	if cfg.Responder.OpenAIModel == "" {
		cfg.Responder.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.Responder.MaxPromptTokens <= 0 {
		cfg.Responder.MaxPromptTokens = 2048
	}
	if cfg.Responder.MinDelay <= 0 {
		cfg.Responder.MinDelay = time.Second
	}
	if cfg.Responder.MaxDelay <= cfg.Responder.MinDelay {
		cfg.Responder.MaxDelay = cfg.Responder.MinDelay + 2*time.Second
	}
	if cfg.DevServer.Port == 0 {
		cfg.DevServer.Port = 8880
	}
	if cfg.DevServer.TokenTTL <= 0 {
		cfg.DevServer.TokenTTL = 15 * time.Minute
	}
	if cfg.DevServer.BotWorkers <= 0 {
		cfg.DevServer.BotWorkers = 4
	}
}
