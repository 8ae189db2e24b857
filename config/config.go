// Package config loads tweetstream runtime settings from YAML and the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coachpo/tweetstream/stream"
)

// Environment identifies the runtime environment where tweetstream operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// Settings is the file-level configuration tree.
type Settings struct {
	Environment Environment        `yaml:"environment"`
	BearerToken string             `yaml:"bearerToken"`
	Log         LogSettings        `yaml:"log"`
	Connection  ConnectionSettings `yaml:"connection"`
	Telemetry   TelemetrySettings  `yaml:"telemetry"`
	Streams     []StreamSettings   `yaml:"streams"`
}

// TelemetrySettings controls OTLP metric export. Empty fields fall back to the
// OTEL_* environment variables.
type TelemetrySettings struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	OTLPInsecure bool   `yaml:"otlpInsecure"`
	ServiceName  string `yaml:"serviceName"`
}

// LogSettings controls the diagnostic logger.
type LogSettings struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ConnectionSettings tunes every session opened from this configuration.
type ConnectionSettings struct {
	UserAgent            string            `yaml:"userAgent"`
	ConnectTimeout       time.Duration     `yaml:"connectTimeout"`
	StallTimeout         time.Duration     `yaml:"stallTimeout"`
	MaxLineBytes         int               `yaml:"maxLineBytes"`
	MaxReconnectAttempts int               `yaml:"maxReconnectAttempts"`
	ConnectBurst         int               `yaml:"connectBurst"`
	ConnectEvery         time.Duration     `yaml:"connectEvery"`
	Backoff              BackoffSettings   `yaml:"backoff"`
	Endpoints            map[string]string `yaml:"endpoints"`
}

// BackoffSettings overrides the reconnect schedules. Zero fields keep the defaults.
type BackoffSettings struct {
	NetworkStep        time.Duration `yaml:"networkStep"`
	NetworkMax         time.Duration `yaml:"networkMax"`
	HTTPInitial        time.Duration `yaml:"httpInitial"`
	HTTPMax            time.Duration `yaml:"httpMax"`
	RateLimitedInitial time.Duration `yaml:"rateLimitedInitial"`
	RateLimitedMax     time.Duration `yaml:"rateLimitedMax"`
}

// Default returns the baseline settings.
func Default() Settings {
	sc := stream.DefaultConfig()
	b := stream.DefaultBackoff()
	return Settings{
		Environment: EnvProd,
		BearerToken: "",
		Log: LogSettings{
			Level: "info",
			JSON:  false,
		},
		Connection: ConnectionSettings{
			UserAgent:            sc.UserAgent,
			ConnectTimeout:       sc.ConnectTimeout,
			StallTimeout:         sc.StallTimeout,
			MaxLineBytes:         sc.MaxLineBytes,
			MaxReconnectAttempts: sc.MaxReconnectAttempts,
			ConnectBurst:         sc.ConnectBurst,
			ConnectEvery:         sc.ConnectEvery,
			Backoff: BackoffSettings{
				NetworkStep:        b.NetworkStep,
				NetworkMax:         b.NetworkMax,
				HTTPInitial:        b.HTTPInitial,
				HTTPMax:            b.HTTPMax,
				RateLimitedInitial: b.RateLimitedInitial,
				RateLimitedMax:     b.RateLimitedMax,
			},
			Endpoints: nil,
		},
		Telemetry: TelemetrySettings{
			Enabled:      false,
			OTLPEndpoint: "",
			OTLPInsecure: false,
			ServiceName:  "",
		},
		Streams: nil,
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	return applyEnv(Default())
}

func applyEnv(cfg Settings) Settings {
	if env := strings.TrimSpace(os.Getenv("TWEETSTREAM_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if v := strings.TrimSpace(os.Getenv("TWITTER_BEARER_TOKEN")); v != "" {
		cfg.BearerToken = v
	}
	if v := strings.TrimSpace(os.Getenv("TWEETSTREAM_LOG_LEVEL")); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TWEETSTREAM_LOG_JSON")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Log.JSON = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("TWEETSTREAM_METRICS")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.Enabled = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("TWEETSTREAM_USER_AGENT")); v != "" {
		cfg.Connection.UserAgent = v
	}
	if v := strings.TrimSpace(os.Getenv("TWEETSTREAM_CONNECT_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Connection.ConnectTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("TWEETSTREAM_STALL_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Connection.StallTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("TWEETSTREAM_MAX_RECONNECT_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Connection.MaxReconnectAttempts = n
		}
	}
	return cfg
}

// Option mutates Settings when applying overrides.
type Option func(*Settings)

// Apply applies options to a base settings value, returning the modified copy.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithBearerToken sets the application-only bearer token.
func WithBearerToken(token string) Option {
	return func(s *Settings) {
		if token = strings.TrimSpace(token); token != "" {
			s.BearerToken = token
		}
	}
}

// WithLogLevel sets the diagnostic log level.
func WithLogLevel(level string) Option {
	return func(s *Settings) {
		if level = strings.TrimSpace(level); level != "" {
			s.Log.Level = strings.ToLower(level)
		}
	}
}

// WithLogJSON switches diagnostics between console and JSON output.
func WithLogJSON(enabled bool) Option {
	return func(s *Settings) {
		s.Log.JSON = enabled
	}
}

// WithMetrics toggles OTLP metric export.
func WithMetrics(enabled bool) Option {
	return func(s *Settings) {
		s.Telemetry.Enabled = enabled
	}
}

// WithEndpoint overrides the URL for one stream kind.
func WithEndpoint(kind stream.Kind, url string) Option {
	return func(s *Settings) {
		if url = strings.TrimSpace(url); url == "" {
			return
		}
		if s.Connection.Endpoints == nil {
			s.Connection.Endpoints = make(map[string]string)
		}
		s.Connection.Endpoints[kind.String()] = url
	}
}

// WithStreams replaces the configured stream list.
func WithStreams(streams ...StreamSettings) Option {
	return func(s *Settings) {
		s.Streams = append([]StreamSettings(nil), streams...)
	}
}

func (s Settings) clone() Settings {
	out := s
	if s.Connection.Endpoints != nil {
		out.Connection.Endpoints = make(map[string]string, len(s.Connection.Endpoints))
		for k, v := range s.Connection.Endpoints {
			out.Connection.Endpoints[k] = v
		}
	}
	if s.Streams != nil {
		out.Streams = make([]StreamSettings, len(s.Streams))
		for i, st := range s.Streams {
			out.Streams[i] = st.clone()
		}
	}
	return out
}
