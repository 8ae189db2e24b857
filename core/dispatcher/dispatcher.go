// Package dispatcher delivers classified stream messages to application listeners.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/coachpo/tweetstream/core/events"
	"github.com/coachpo/tweetstream/errs"
	"github.com/coachpo/tweetstream/internal/observability"
	"github.com/coachpo/tweetstream/internal/telemetry"
)

// Hooks receives diagnostics that are not addressed to a listener.
type Hooks struct {
	OnError   func(error)
	OnUnknown func(events.UnknownMessage)
}

// Dispatcher invokes listeners in registration order and isolates their failures.
type Dispatcher struct {
	stream  string
	hooks   Hooks
	logger  observability.Logger
	metrics *telemetry.StreamMetrics
}

// New constructs a dispatcher for the named stream.
func New(stream string, hooks Hooks, logger observability.Logger, metrics *telemetry.StreamMetrics) *Dispatcher {
	if logger == nil {
		logger = observability.Log()
	}
	return &Dispatcher{
		stream:  stream,
		hooks:   hooks,
		logger:  logger,
		metrics: metrics,
	}
}

// Dispatch delivers msg to every listener on the caller's goroutine.
// Listener errors and panics are reported and never stop delivery to the rest.
// ErrStop is returned once all listeners have run if any of them asked for it.
func (d *Dispatcher) Dispatch(ctx context.Context, msg events.Message, listeners []Listener) error {
	if msg == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return nil
	}
	kind := msg.Kind()
	d.metrics.RecordMessage(ctx, kind.String())

	if unknown, ok := msg.(events.UnknownMessage); ok {
		d.unknown(unknown)
		return nil
	}

	stop := false
	for idx, listener := range listeners {
		if listener == nil {
			continue
		}
		err := d.invoke(ctx, listener, msg)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrStop) {
			stop = true
			continue
		}
		d.reportListener(ctx, idx, kind, err)
	}
	if stop {
		return ErrStop
	}
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, listener Listener, msg events.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	switch m := msg.(type) {
	case events.TweetMessage:
		return listener.OnTweet(ctx, m.Tweet)
	case events.DeleteMessage:
		return listener.OnDelete(ctx, m.Delete)
	case events.LimitMessage:
		return listener.OnLimit(ctx, m)
	case events.WarningMessage:
		return listener.OnWarning(ctx, m.Warning)
	case events.ScrubGeoMessage:
		if sl, ok := listener.(ScrubGeoListener); ok {
			return sl.OnScrubGeo(ctx, m)
		}
	case events.StatusMessage:
		if sl, ok := listener.(StatusListener); ok {
			return sl.OnStatus(ctx, m)
		}
	}
	return nil
}

func (d *Dispatcher) reportListener(ctx context.Context, idx int, kind events.Kind, cause error) {
	err := errs.New(d.stream, errs.CodeListener,
		errs.WithMessage("listener callback failed"),
		errs.WithCause(cause),
		errs.WithField("listener", strconv.Itoa(idx)),
		errs.WithField("message_kind", kind.String()),
	)
	d.metrics.RecordListenerError(ctx, kind.String())
	d.logger.Error("listener failed",
		observability.F("stream", d.stream),
		observability.F("listener", idx),
		observability.F("message_kind", kind.String()),
		observability.F("error", cause),
	)
	d.report(err)
}

func (d *Dispatcher) unknown(msg events.UnknownMessage) {
	d.logger.Debug("unrecognised message",
		observability.F("stream", d.stream),
		observability.F("keys", msg.Keys),
	)
	if d.hooks.OnUnknown == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("unknown hook panic", observability.F("stream", d.stream), observability.F("panic", fmt.Sprint(r)))
		}
	}()
	d.hooks.OnUnknown(msg)
}

// Report forwards err to the OnError hook, recovering from hook panics.
func (d *Dispatcher) Report(err error) {
	d.report(err)
}

func (d *Dispatcher) report(err error) {
	if err == nil || d.hooks.OnError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("error hook panic", observability.F("stream", d.stream), observability.F("panic", fmt.Sprint(r)))
		}
	}()
	d.hooks.OnError(err)
}
