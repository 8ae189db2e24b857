package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/coachpo/tweetstream/core/dispatcher"
	"github.com/coachpo/tweetstream/core/events"
	"github.com/coachpo/tweetstream/errs"
	"github.com/coachpo/tweetstream/internal/classifier"
	"github.com/coachpo/tweetstream/internal/frame"
	"github.com/coachpo/tweetstream/internal/observability"
	"github.com/coachpo/tweetstream/internal/telemetry"
)

var errSessionClosed = errors.New("session closed")

// expiry records why the watchdog closed a body.
type expiry int32

const (
	expiryNone expiry = iota
	expiryConnect
	expiryStall
)

// attemptResult is the outcome of one connect-and-read cycle.
type attemptResult struct {
	opened bool
	ended  bool
	stop   bool
	class  FailureClass
	err    error
}

// connection owns one stream's lifecycle: connect, read, watch liveness and
// reconnect. All state transitions happen on the reader goroutine except the
// initial start.
type connection struct {
	id        string
	kind      Kind
	endpoint  string
	params    Parameters
	cfg       Config
	listeners []dispatcher.Listener

	values   url.Values
	backfill int

	dispatcher *dispatcher.Dispatcher
	classifier classifier.Classifier
	policy     *reconnectPolicy
	limiter    *rate.Limiter
	metrics    *telemetry.StreamMetrics
	logger     observability.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	body  io.Closer
	err   error

	// gate is held for every dispatch so Close can wait out a running callback.
	gate   sync.Mutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
	attempts  atomic.Int64
}

func newConnection(parent context.Context, id string, params Parameters, cfg Config, listeners []dispatcher.Listener) *connection {
	kind := params.Kind()
	logger := cfg.Logger
	if logger == nil {
		logger = observability.Log()
	}
	metrics := telemetry.NewStreamMetrics(cfg.Meter, kind.String())
	limit := rate.Inf
	if cfg.ConnectEvery > 0 {
		limit = rate.Every(cfg.ConnectEvery)
	}
	burst := cfg.ConnectBurst
	if burst <= 0 {
		burst = 1
	}
	ctx, cancel := context.WithCancel(parent)
	snapshot := make([]dispatcher.Listener, len(listeners))
	copy(snapshot, listeners)

	return &connection{
		id:         id,
		kind:       kind,
		endpoint:   cfg.endpoint(kind),
		params:     params,
		cfg:        cfg,
		listeners:  snapshot,
		values:     nil,
		backfill:   0,
		dispatcher: dispatcher.New(kind.String(), cfg.Hooks.dispatcherHooks(), logger, metrics),
		classifier: classifier.New(kind.String()),
		policy:     newReconnectPolicy(cfg.Backoff),
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    metrics,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		mu:         sync.Mutex{},
		state:      StateIdle,
		body:       nil,
		err:        nil,
		gate:       sync.Mutex{},
		closed:     false,
		closeOnce:  sync.Once{},
		done:       make(chan struct{}),
		attempts:   atomic.Int64{},
	}
}

// start validates and snapshots the parameters, then launches the reader
// goroutine. Validation failures move the connection straight to Failed.
func (c *connection) start() error {
	values, err := c.encode()
	if err != nil {
		c.fail(triggerInvalid, err)
		c.cancel()
		close(c.done)
		return err
	}
	c.values = values
	if b, ok := c.params.(backfiller); ok {
		c.backfill = b.backfill()
	}
	if !c.advance(triggerStart) {
		c.cancel()
		close(c.done)
		return c.Err()
	}
	c.metrics.AdjustSessions(c.ctx, 1)
	c.logger.Info("stream session started",
		observability.F("session", c.id),
		observability.F("stream", c.kind.String()),
		observability.F("endpoint", c.endpoint))

	stopAfter := context.AfterFunc(c.ctx, c.closeBody)
	go func() {
		defer close(c.done)
		defer c.cancel()
		defer stopAfter()
		defer c.metrics.AdjustSessions(context.Background(), -1)
		c.run()
	}()
	return nil
}

func (c *connection) encode() (url.Values, error) {
	if !c.kind.Valid() {
		return nil, errs.New(c.kind.String(), errs.CodeInvalid, errs.WithMessage("unknown stream kind"))
	}
	if _, err := url.ParseRequestURI(c.endpoint); err != nil {
		return nil, errs.New(c.kind.String(), errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("invalid endpoint %q", c.endpoint)),
			errs.WithCause(err))
	}
	if c.cfg.Transport == nil {
		return nil, errs.New(c.kind.String(), errs.CodeInvalid, errs.WithMessage("transport is required"))
	}
	values, err := c.params.Encode()
	if err != nil {
		return nil, err
	}
	return values, nil
}

// run is the reconnect loop. It returns once the connection is terminal.
func (c *connection) run() {
	failures := 0
	for {
		if c.ctx.Err() != nil {
			c.finishClosed()
			return
		}
		if err := c.limiter.Wait(c.ctx); err != nil {
			c.finishClosed()
			return
		}

		res := c.attempt()
		if c.ctx.Err() != nil {
			c.finishClosed()
			return
		}
		if res.stop {
			c.advance(triggerClose)
			c.logger.Info("stream session stopped",
				observability.F("session", c.id),
				observability.F("stream", c.kind.String()))
			return
		}

		if res.opened {
			failures = 0
			if !c.advance(triggerStreamEnded) {
				return
			}
			if res.ended && c.backfill < 0 {
				c.advance(triggerBackfillDone)
				c.logger.Info("backfill complete, stream closed",
					observability.F("session", c.id),
					observability.F("stream", c.kind.String()))
				return
			}
		}

		c.dispatcher.Report(res.err)
		if !res.class.Retryable() {
			c.fail(triggerFatal, res.err)
			return
		}
		if res.opened {
			if !c.advance(triggerDrained) {
				return
			}
		} else if !c.advance(triggerConnectFailed) {
			return
		}

		failures++
		if limit := c.cfg.MaxReconnectAttempts; limit > 0 && failures > limit {
			c.fail(triggerFatal, errs.New(c.kind.String(), errs.CodeUnavailable,
				errs.WithFatal(),
				errs.WithMessage(fmt.Sprintf("giving up after %d consecutive failed attempts", limit)),
				errs.WithCause(res.err)))
			return
		}

		delay, _ := c.policy.next(res.class)
		c.metrics.RecordReconnect(c.ctx, res.class.String(), delay)
		fields := []observability.Field{
			observability.F("session", c.id),
			observability.F("stream", c.kind.String()),
			observability.F("class", res.class.String()),
			observability.F("attempt", failures),
			observability.F("delay", delay.String()),
			observability.F("error", res.err),
		}
		if res.class == FailureRateLimited {
			c.logger.Warn("rate limited, backing off", fields...)
		} else {
			c.logger.Warn("reconnecting", fields...)
		}
		c.cfg.Hooks.reconnect(ReconnectInfo{
			SessionID: c.id,
			Kind:      c.kind,
			Attempt:   failures,
			Class:     res.class,
			Delay:     delay,
			Cause:     res.err,
		})

		if !c.sleep(delay) {
			c.finishClosed()
			return
		}
		if !c.advance(triggerRetry) {
			return
		}
	}
}

func (c *connection) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// attempt dials once and reads until the body ends or fails.
func (c *connection) attempt() attemptResult {
	c.attempts.Add(1)
	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	attemptCtx, cancelAttempt := context.WithCancel(c.ctx)
	defer cancelAttempt()

	req, err := c.newRequest(attemptCtx)
	if err != nil {
		return attemptResult{class: FailureInvalid, err: err}
	}
	dialTimer := time.AfterFunc(c.cfg.ConnectTimeout, cancelAttempt)
	resp, err := c.cfg.Transport.Do(req)
	dialTimer.Stop()
	if err != nil {
		c.metrics.RecordConnect(c.ctx, telemetry.ResultError)
		return attemptResult{
			class: FailureNetwork,
			err: errs.New(c.kind.String(), errs.CodeNetwork,
				errs.WithMessage("connect"),
				errs.WithCause(err)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordConnect(c.ctx, telemetry.ResultError)
		class, serr := statusError(c.kind, resp)
		return attemptResult{class: class, err: serr}
	}
	if resp.Body == nil {
		c.metrics.RecordConnect(c.ctx, telemetry.ResultError)
		return attemptResult{class: FailureNetwork, err: errs.New(c.kind.String(), errs.CodeNetwork, errs.WithMessage("response has no body"))}
	}

	c.setBody(resp.Body)
	defer c.clearBody(resp.Body)
	return c.read(attemptCtx, resp.Body, deadline)
}

func (c *connection) newRequest(ctx context.Context) (*http.Request, error) {
	method := c.kind.Method()
	target := c.endpoint
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(c.values.Encode())
	} else if len(c.values) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return nil, errs.New(c.kind.String(), errs.CodeInvalid, errs.WithFatal(), errs.WithCause(err))
		}
		q := u.Query()
		for k, vs := range c.values {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errs.New(c.kind.String(), errs.CodeInvalid, errs.WithFatal(), errs.WithCause(err))
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	return req, nil
}

// read frames the body, classifies each frame and dispatches it.
func (c *connection) read(ctx context.Context, body io.ReadCloser, deadline time.Time) attemptResult {
	activity := frame.NewActivity(body, time.Now)
	reader := frame.NewReader(activity, frame.Options{
		Stream:       c.kind.String(),
		MaxLineBytes: c.cfg.MaxLineBytes,
		BufferSize:   0,
	})

	var expired atomic.Int32
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go c.watch(watchCtx, activity, body, deadline, &expired)

	res := attemptResult{}
	for {
		line, err := reader.Next()
		if !res.opened && activity.Bytes() > 0 {
			if !c.advance(triggerFirstByte) {
				return attemptResult{stop: true}
			}
			res.opened = true
			c.policy.reset()
			c.metrics.RecordConnect(c.ctx, telemetry.ResultSuccess)
			c.logger.Info("stream open",
				observability.F("session", c.id),
				observability.F("stream", c.kind.String()))
		}
		if err != nil {
			return c.endOfBody(res, err, expiry(expired.Load()))
		}

		c.metrics.RecordFrame(c.ctx, len(line))
		if len(line) == 0 {
			continue
		}
		msg, cerr := c.classifier.Classify(line)
		if cerr != nil {
			c.metrics.RecordDecodeError(c.ctx, false)
			c.logger.Warn("dropping undecodable frame",
				observability.F("session", c.id),
				observability.F("stream", c.kind.String()),
				observability.F("error", cerr))
			c.dispatcher.Report(cerr)
			continue
		}

		if derr := c.deliver(msg); errors.Is(derr, dispatcher.ErrStop) || errors.Is(derr, errSessionClosed) {
			res.stop = true
			return res
		}

		if status, ok := msg.(events.StatusMessage); ok && status.Status == events.StatusDisconnect {
			return c.disconnected(res, status)
		}
	}
}

func (c *connection) endOfBody(res attemptResult, err error, why expiry) attemptResult {
	if !res.opened {
		c.metrics.RecordConnect(c.ctx, telemetry.ResultError)
	}
	res.class = FailureNetwork
	switch {
	case why == expiryConnect:
		res.err = errs.New(c.kind.String(), errs.CodeNetwork,
			errs.WithMessage(fmt.Sprintf("no data within connect timeout %s", c.cfg.ConnectTimeout)))
	case why == expiryStall:
		res.err = errs.New(c.kind.String(), errs.CodeNetwork,
			errs.WithMessage(fmt.Sprintf("stream stalled for %s", c.cfg.StallTimeout)))
	case errors.Is(err, frame.ErrEnd):
		res.ended = true
		res.err = errs.New(c.kind.String(), errs.CodeNetwork, errs.WithMessage("stream ended by server"))
	default:
		if errs.Is(err, errs.CodeDecode) {
			c.metrics.RecordDecodeError(c.ctx, true)
		}
		res.err = err
	}
	return res
}

// disconnected handles a server disconnect notice. Revoked credentials are not retried.
func (c *connection) disconnected(res attemptResult, status events.StatusMessage) attemptResult {
	res.class = FailureNetwork
	code := errs.CodeNetwork
	opts := []errs.Option{
		errs.WithMessage(fmt.Sprintf("server disconnect %d: %s", status.DisconnectCode, status.Reason)),
		errs.WithField("disconnect_code", fmt.Sprint(status.DisconnectCode)),
	}
	if status.AuthRevoked() {
		res.class = FailureAuth
		code = errs.CodeAuth
		opts = append(opts, errs.WithFatal(), errs.WithRemediation(remediationFor(FailureAuth)))
	}
	res.err = errs.New(c.kind.String(), code, opts...)
	return res
}

// watch closes body when the first byte misses the connect deadline or the
// stream goes silent for StallTimeout.
func (c *connection) watch(ctx context.Context, activity *frame.Activity, body io.Closer, deadline time.Time, expired *atomic.Int32) {
	connectTimer := time.NewTimer(time.Until(deadline))
	defer connectTimer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-activity.FirstByte():
	case <-connectTimer.C:
		expired.Store(int32(expiryConnect))
		_ = body.Close()
		return
	}

	interval := c.cfg.StallTimeout / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(activity.LastRead()) >= c.cfg.StallTimeout {
				expired.Store(int32(expiryStall))
				_ = body.Close()
				return
			}
		}
	}
}

func (c *connection) deliver(msg events.Message) error {
	c.gate.Lock()
	defer c.gate.Unlock()
	if c.closed {
		return errSessionClosed
	}
	return c.dispatcher.Dispatch(c.ctx, msg, c.listeners)
}

// advance applies a trigger through the transition table. Rejected triggers
// are reported and leave the state untouched.
func (c *connection) advance(t trigger) bool {
	c.mu.Lock()
	from := c.state
	to, err := transition(from, t)
	if err == nil {
		c.state = to
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("state transition rejected",
			observability.F("session", c.id),
			observability.F("stream", c.kind.String()),
			observability.F("error", err))
		c.dispatcher.Report(errs.New(c.kind.String(), errs.CodeUnavailable,
			errs.WithMessage("state transition rejected"),
			errs.WithCause(err)))
		return false
	}
	c.metrics.RecordTransition(context.Background(), to.String())
	c.cfg.Hooks.stateChange(from, to)
	return true
}

func (c *connection) fail(t trigger, cause error) {
	c.mu.Lock()
	c.err = cause
	c.mu.Unlock()
	if c.advance(t) {
		c.logger.Error("stream session failed",
			observability.F("session", c.id),
			observability.F("stream", c.kind.String()),
			observability.F("error", cause))
	}
}

func (c *connection) finishClosed() {
	if c.State().Terminal() {
		return
	}
	c.advance(triggerClose)
	c.logger.Info("stream session closed",
		observability.F("session", c.id),
		observability.F("stream", c.kind.String()))
}

// close cancels the session, interrupts a blocked read, waits out any
// running callback and then waits for the reader goroutine to exit.
// It must not be called from a listener callback.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeBody()
		c.gate.Lock()
		c.closed = true
		c.gate.Unlock()
	})
	<-c.done
}

func (c *connection) setBody(body io.Closer) {
	c.mu.Lock()
	c.body = body
	c.mu.Unlock()
	if c.ctx.Err() != nil {
		_ = body.Close()
	}
}

func (c *connection) clearBody(body io.Closer) {
	_ = body.Close()
	c.mu.Lock()
	if c.body == body {
		c.body = nil
	}
	c.mu.Unlock()
}

func (c *connection) closeBody() {
	c.mu.Lock()
	body := c.body
	c.mu.Unlock()
	if body != nil {
		_ = body.Close()
	}
}

// State returns the current lifecycle state.
func (c *connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal cause of a failed connection.
func (c *connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
