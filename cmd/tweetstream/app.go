package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/tweetstream/config"
	"github.com/coachpo/tweetstream/core/dispatcher"
	"github.com/coachpo/tweetstream/core/events"
	"github.com/coachpo/tweetstream/errs"
	"github.com/coachpo/tweetstream/internal/observability"
	"github.com/coachpo/tweetstream/internal/telemetry"
	"github.com/coachpo/tweetstream/lib/async"
	"github.com/coachpo/tweetstream/stream"
)

const (
	telemetryShutdownTimeout = 5 * time.Second
	meterName                = "github.com/coachpo/tweetstream"
)

// runtime holds everything a command needs to run sessions.
type runtime struct {
	settings  config.Settings
	logger    observability.Logger
	telemetry *telemetry.Provider
	client    *stream.Client
	out       *lineWriter
	pool      *async.Pool
}

type runOptions struct {
	rawTweets    bool
	asyncWorkers int
}

func newRuntime(ctx context.Context, settings config.Settings, stdout, stderr io.Writer, opts runOptions) (*runtime, error) {
	if settings.BearerToken == "" {
		return nil, errs.New("", errs.CodeAuth,
			errs.WithMessage("bearer token required"),
			errs.WithRemediation("set TWITTER_BEARER_TOKEN or pass --token"))
	}

	logger := observability.NewConsoleLogger(stderr, settings.Log.Level, settings.Log.JSON)
	observability.SetLogger(logger)

	provider, err := initTelemetry(ctx, logger, settings)
	if err != nil {
		return nil, err
	}

	transport := &http.Client{Transport: &stream.BearerTransport{Token: settings.BearerToken, Base: http.DefaultTransport}}

	rt := &runtime{
		settings:  settings,
		logger:    logger,
		telemetry: provider,
		client:    nil,
		out:       newLineWriter(stdout, opts.rawTweets),
		pool:      nil,
	}
	if opts.asyncWorkers > 0 {
		pool, err := async.NewPool(opts.asyncWorkers, opts.asyncWorkers*64, async.WithErrorHandler(func(err error) {
			logger.Warn("listener failed", observability.F("error", err))
		}))
		if err != nil {
			_ = provider.Shutdown(ctx)
			return nil, err
		}
		rt.pool = pool
	}

	clientOpts := append(settings.StreamOptions(),
		stream.WithTransport(transport),
		stream.WithLogger(logger),
		stream.WithMeter(provider.Meter(meterName)),
		stream.WithHooks(stream.Hooks{
			OnError: func(err error) {
				logger.Warn("stream error", observability.F("code", string(errs.CodeOf(err))), observability.F("error", err))
			},
			OnUnknown: func(msg events.UnknownMessage) {
				logger.Debug("unrecognised message", observability.F("keys", msg.Keys))
			},
			OnReconnect:   nil,
			OnStateChange: nil,
		}),
	)
	rt.client = stream.NewClient(clientOpts...)
	return rt, nil
}

func initTelemetry(ctx context.Context, logger observability.Logger, settings config.Settings) (*telemetry.Provider, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = settings.Telemetry.Enabled
	if settings.Telemetry.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = settings.Telemetry.OTLPEndpoint
	}
	if settings.Telemetry.ServiceName != "" {
		cfg.ServiceName = settings.Telemetry.ServiceName
	}
	if settings.Telemetry.OTLPInsecure {
		cfg.OTLPInsecure = true
	}
	cfg.Environment = string(settings.Environment)

	provider, err := telemetry.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if provider.Enabled() {
		logger.Info("telemetry initialized",
			observability.F("endpoint", cfg.OTLPEndpoint),
			observability.F("service", cfg.ServiceName))
	} else {
		logger.Debug("telemetry disabled")
	}
	return provider, nil
}

func (rt *runtime) listener(name string) dispatcher.Listener {
	l := rt.out.listener(name)
	if rt.pool != nil {
		return dispatcher.Async(l, rt.pool)
	}
	return l
}

type namedSession struct {
	name    string
	session *stream.Session
}

// run opens every stream and blocks until all sessions have ended. Sessions
// end when ctx is cancelled or they fail. The returned error aggregates the
// causes of every failed session.
func (rt *runtime) run(ctx context.Context, streams []config.StreamSettings) error {
	if len(streams) == 0 {
		return errs.New("", errs.CodeInvalid,
			errs.WithMessage("no streams configured"),
			errs.WithRemediation("add entries under streams: or use a stream subcommand"))
	}

	sessions := make([]namedSession, 0, len(streams))
	for _, st := range streams {
		session, err := rt.open(ctx, st)
		if err != nil {
			for _, ns := range sessions {
				_ = ns.session.Close()
			}
			return fmt.Errorf("stream %s: %w", st.Name, err)
		}
		sessions = append(sessions, namedSession{name: st.Name, session: session})
	}

	var wg conc.WaitGroup
	for _, ns := range sessions {
		wg.Go(func() {
			<-ns.session.Done()
			if ns.session.Failed() {
				rt.logger.Error("stream failed",
					observability.F("stream", ns.name),
					observability.F("error", ns.session.Err()))
				return
			}
			rt.logger.Info("stream closed", observability.F("stream", ns.name))
		})
	}
	wg.Wait()

	failures := make([]error, 0, len(sessions))
	for _, ns := range sessions {
		if ns.session.Failed() {
			failures = append(failures, fmt.Errorf("stream %s: %w", ns.name, ns.session.Err()))
		}
	}
	return observability.AggregateErrors("run streams", failures, observability.F("streams", len(sessions)))
}

func (rt *runtime) open(ctx context.Context, st config.StreamSettings) (*stream.Session, error) {
	params, err := st.Parameters()
	if err != nil {
		return nil, err
	}
	session, err := rt.client.Open(ctx, params, rt.listener(st.Name))
	if err != nil {
		return nil, err
	}
	rt.logger.Info("stream started",
		observability.F("stream", st.Name),
		observability.F("kind", session.Kind().String()),
		observability.F("session_id", session.ID()))
	return session, nil
}

// shutdown drains the listener pool and flushes metrics.
func (rt *runtime) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	var errsOut []error
	if rt.pool != nil {
		if err := rt.pool.Shutdown(ctx); err != nil {
			errsOut = append(errsOut, fmt.Errorf("drain listener pool: %w", err))
		}
	}
	if err := rt.telemetry.Shutdown(ctx); err != nil {
		errsOut = append(errsOut, err)
	}
	return errors.Join(errsOut...)
}
