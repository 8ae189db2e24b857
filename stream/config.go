package stream

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/tweetstream/internal/observability"
)

// Config controls how sessions connect and reconnect.
type Config struct {
	Transport Transport
	// Endpoints overrides the default URL per kind.
	Endpoints map[Kind]string
	UserAgent string
	// ConnectTimeout bounds the wait for the first body byte of an attempt.
	ConnectTimeout time.Duration
	// StallTimeout closes a connection that has been silent this long.
	StallTimeout time.Duration
	// MaxLineBytes caps a single frame; zero means unlimited.
	MaxLineBytes int
	// MaxReconnectAttempts fails the session after this many consecutive
	// failures; zero retries forever.
	MaxReconnectAttempts int
	Backoff              BackoffConfig
	// ConnectBurst and ConnectEvery bound connection attempts across all
	// failure classes. ConnectEvery <= 0 disables the limit.
	ConnectBurst int
	ConnectEvery time.Duration
	Hooks        Hooks
	Logger       observability.Logger
	Meter        metric.Meter
}

// Defaults.
const (
	DefaultUserAgent      = "tweetstream/1.0"
	DefaultConnectTimeout = 30 * time.Second
	DefaultStallTimeout   = 90 * time.Second
	DefaultConnectBurst   = 10
	DefaultConnectEvery   = 6 * time.Second
)

// DefaultConfig returns the configuration used by NewClient before options apply.
func DefaultConfig() Config {
	return Config{
		Transport:            &http.Client{Transport: http.DefaultTransport},
		Endpoints:            nil,
		UserAgent:            DefaultUserAgent,
		ConnectTimeout:       DefaultConnectTimeout,
		StallTimeout:         DefaultStallTimeout,
		MaxLineBytes:         0,
		MaxReconnectAttempts: 0,
		Backoff:              DefaultBackoff(),
		ConnectBurst:         DefaultConnectBurst,
		ConnectEvery:         DefaultConnectEvery,
		Hooks:                Hooks{},
		Logger:               nil,
		Meter:                nil,
	}
}

// Option mutates Config when applied via Apply.
type Option func(*Config)

// Apply applies opts to a copy of base.
func Apply(base Config, opts ...Option) Config {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (c Config) clone() Config {
	out := c
	if c.Endpoints != nil {
		out.Endpoints = make(map[Kind]string, len(c.Endpoints))
		for k, v := range c.Endpoints {
			out.Endpoints[k] = v
		}
	}
	return out
}

// endpoint resolves the URL for kind.
func (c Config) endpoint(kind Kind) string {
	if u := strings.TrimSpace(c.Endpoints[kind]); u != "" {
		return u
	}
	return kind.Endpoint()
}

func WithTransport(t Transport) Option {
	return func(c *Config) {
		if t != nil {
			c.Transport = t
		}
	}
}

// WithEndpoint overrides the URL used for kind.
func WithEndpoint(kind Kind, url string) Option {
	url = strings.TrimSpace(url)
	return func(c *Config) {
		if url == "" {
			return
		}
		if c.Endpoints == nil {
			c.Endpoints = make(map[Kind]string)
		}
		c.Endpoints[kind] = url
	}
}

func WithUserAgent(ua string) Option {
	ua = strings.TrimSpace(ua)
	return func(c *Config) {
		if ua != "" {
			c.UserAgent = ua
		}
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ConnectTimeout = d
		}
	}
}

func WithStallTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.StallTimeout = d
		}
	}
}

func WithMaxLineBytes(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxLineBytes = n
		}
	}
}

func WithMaxReconnectAttempts(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxReconnectAttempts = n
		}
	}
}

// WithBackoff replaces the reconnect schedules; zero fields keep their defaults.
func WithBackoff(b BackoffConfig) Option {
	return func(c *Config) {
		c.Backoff = b.withDefaults()
	}
}

// WithConnectRate bounds connection attempts to burst, refilling one every interval.
func WithConnectRate(burst int, every time.Duration) Option {
	return func(c *Config) {
		if burst > 0 {
			c.ConnectBurst = burst
		}
		c.ConnectEvery = every
	}
}

func WithHooks(h Hooks) Option {
	return func(c *Config) {
		c.Hooks = h
	}
}

func WithLogger(l observability.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMeter records session metrics on m instead of the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(c *Config) {
		c.Meter = m
	}
}
