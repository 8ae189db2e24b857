package config

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/tweetstream/stream"
)

// DefaultPath is read when neither an explicit path nor TWEETSTREAM_CONFIG is set.
const DefaultPath = "config/streams.yaml"

// StreamSettings declares one stream to open.
type StreamSettings struct {
	Name          string      `yaml:"name"`
	Kind          string      `yaml:"kind"`
	Track         []string    `yaml:"track"`
	Follow        []int64     `yaml:"follow"`
	Locations     [][]float64 `yaml:"locations"`
	Language      []string    `yaml:"language"`
	StallWarnings bool        `yaml:"stallWarnings"`
	With          string      `yaml:"with"`
	Replies       string      `yaml:"replies"`
	Count         int         `yaml:"count"`
}

func (s StreamSettings) clone() StreamSettings {
	out := s
	out.Track = append([]string(nil), s.Track...)
	out.Follow = append([]int64(nil), s.Follow...)
	out.Language = append([]string(nil), s.Language...)
	if s.Locations != nil {
		out.Locations = make([][]float64, len(s.Locations))
		for i, box := range s.Locations {
			out.Locations[i] = append([]float64(nil), box...)
		}
	}
	return out
}

// Parameters builds the stream parameters described by s. Limits are checked
// when the parameters are encoded.
func (s StreamSettings) Parameters() (stream.Parameters, error) {
	kind, err := stream.ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	for i, box := range s.Locations {
		if len(box) != 4 {
			return nil, fmt.Errorf("locations[%d]: want 4 coordinates (swLon,swLat,neLon,neLat), got %d", i, len(box))
		}
	}
	replies := strings.ToLower(strings.TrimSpace(s.Replies))
	if replies != "" && replies != "all" {
		return nil, fmt.Errorf("replies must be empty or all, got %q", s.Replies)
	}
	if kind != stream.KindUser && (s.With != "" || replies != "") {
		return nil, fmt.Errorf("with/replies only apply to user streams")
	}
	if kind != stream.KindFirehose && s.Count != 0 {
		return nil, fmt.Errorf("count only applies to firehose streams")
	}

	switch kind {
	case stream.KindFilter:
		p := stream.NewFilterParameters().
			Track(s.Track...).
			Follow(s.Follow...).
			Language(s.Language...).
			StallWarnings(s.StallWarnings)
		for _, box := range s.Locations {
			p.AddLocation(box[0], box[1], box[2], box[3])
		}
		return p, nil
	case stream.KindUser:
		if len(s.Follow) > 0 || len(s.Language) > 0 {
			return nil, fmt.Errorf("follow/language do not apply to user streams")
		}
		p := stream.NewUserParameters().
			Track(s.Track...).
			AllReplies(replies == "all").
			StallWarnings(s.StallWarnings)
		if s.With != "" {
			p.With(stream.WithScope(strings.ToLower(strings.TrimSpace(s.With))))
		}
		for _, box := range s.Locations {
			p.AddLocation(box[0], box[1], box[2], box[3])
		}
		return p, nil
	case stream.KindSample, stream.KindFirehose:
		if len(s.Track) > 0 || len(s.Follow) > 0 || len(s.Locations) > 0 {
			return nil, fmt.Errorf("%s streams take no track/follow/locations predicates", kind)
		}
		if kind == stream.KindFirehose {
			if len(s.Language) > 0 {
				return nil, fmt.Errorf("language does not apply to firehose streams")
			}
			return stream.NewFirehoseParameters().Count(s.Count).StallWarnings(s.StallWarnings), nil
		}
		return stream.NewSampleParameters().Language(s.Language...).StallWarnings(s.StallWarnings), nil
	default:
		return nil, fmt.Errorf("unsupported stream kind %s", kind)
	}
}

// Load reads a YAML settings document over the defaults, applies environment
// overrides and validates the result.
func Load(ctx context.Context, path string) (Settings, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("TWEETSTREAM_CONFIG"))
	}
	if path == "" {
		path = DefaultPath
	}

	file, err := os.Open(filepath.Clean(path)) // #nosec G304 -- configuration paths are controlled by operators.
	if err != nil {
		return Settings{}, fmt.Errorf("open config %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	return decode(ctx, file)
}

// LoadOrDefault behaves like Load but falls back to environment-only settings
// when no file is named and the default file does not exist.
func LoadOrDefault(ctx context.Context, path string) (Settings, error) {
	if strings.TrimSpace(path) == "" && strings.TrimSpace(os.Getenv("TWEETSTREAM_CONFIG")) == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg := FromEnv()
			if err := cfg.Validate(ctx); err != nil {
				return Settings{}, err
			}
			return cfg, nil
		}
	}
	return Load(ctx, path)
}

func decode(ctx context.Context, r io.Reader) (Settings, error) {
	bytes, err := io.ReadAll(r)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(ctx); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate performs semantic validation on the settings.
func (s Settings) Validate(ctx context.Context) error {
	_ = ctx
	switch s.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be dev|staging|prod, got %q", s.Environment)
	}
	switch s.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be trace|debug|info|warn|error, got %q", s.Log.Level)
	}

	conn := s.Connection
	if conn.ConnectTimeout <= 0 {
		return fmt.Errorf("connection.connectTimeout must be >0")
	}
	if conn.StallTimeout <= 0 {
		return fmt.Errorf("connection.stallTimeout must be >0")
	}
	if conn.MaxLineBytes < 0 {
		return fmt.Errorf("connection.maxLineBytes must be >=0")
	}
	if conn.MaxReconnectAttempts < 0 {
		return fmt.Errorf("connection.maxReconnectAttempts must be >=0")
	}
	if conn.ConnectBurst <= 0 {
		return fmt.Errorf("connection.connectBurst must be >0")
	}
	b := conn.Backoff
	if b.NetworkStep < 0 || b.NetworkMax < 0 || b.HTTPInitial < 0 || b.HTTPMax < 0 ||
		b.RateLimitedInitial < 0 || b.RateLimitedMax < 0 {
		return fmt.Errorf("connection.backoff durations must be >=0")
	}
	for name, raw := range conn.Endpoints {
		if _, err := stream.ParseKind(name); err != nil {
			return fmt.Errorf("connection.endpoints.%s: %w", name, err)
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("connection.endpoints.%s: %w", name, err)
		}
	}

	seen := make(map[string]struct{}, len(s.Streams))
	for i, st := range s.Streams {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			return fmt.Errorf("streams[%d]: name required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("streams[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		params, err := st.Parameters()
		if err != nil {
			return fmt.Errorf("streams[%d] %s: %w", i, name, err)
		}
		if _, err := params.Encode(); err != nil {
			return fmt.Errorf("streams[%d] %s: %w", i, name, err)
		}
	}
	return nil
}

// StreamOptions converts the connection settings into client options.
// Transport, hooks, logger and meter are left to the caller.
func (s Settings) StreamOptions() []stream.Option {
	conn := s.Connection
	opts := []stream.Option{
		stream.WithUserAgent(conn.UserAgent),
		stream.WithConnectTimeout(conn.ConnectTimeout),
		stream.WithStallTimeout(conn.StallTimeout),
		stream.WithMaxLineBytes(conn.MaxLineBytes),
		stream.WithMaxReconnectAttempts(conn.MaxReconnectAttempts),
		stream.WithConnectRate(conn.ConnectBurst, conn.ConnectEvery),
		stream.WithBackoff(stream.BackoffConfig{
			NetworkStep:        conn.Backoff.NetworkStep,
			NetworkMax:         conn.Backoff.NetworkMax,
			HTTPInitial:        conn.Backoff.HTTPInitial,
			HTTPMax:            conn.Backoff.HTTPMax,
			RateLimitedInitial: conn.Backoff.RateLimitedInitial,
			RateLimitedMax:     conn.Backoff.RateLimitedMax,
		}),
	}
	for name, raw := range conn.Endpoints {
		kind, err := stream.ParseKind(name)
		if err != nil {
			continue
		}
		opts = append(opts, stream.WithEndpoint(kind, raw))
	}
	return opts
}
