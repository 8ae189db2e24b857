package dispatcher

import (
	"context"
	"errors"

	"github.com/coachpo/tweetstream/core/events"
)

// ErrStop is returned by a listener callback to ask the owning session to close.
// Session.Close must not be called from inside a callback.
var ErrStop = errors.New("dispatcher: stop requested")

// Listener receives the common stream messages. Callbacks run on the session's
// reader goroutine, one at a time, in stream order.
type Listener interface {
	OnTweet(ctx context.Context, tweet events.Tweet) error
	OnDelete(ctx context.Context, del events.DeleteEvent) error
	OnLimit(ctx context.Context, limit events.LimitMessage) error
	OnWarning(ctx context.Context, warning events.WarningEvent) error
}

// ScrubGeoListener is implemented by listeners that honour geo scrub requests.
type ScrubGeoListener interface {
	OnScrubGeo(ctx context.Context, scrub events.ScrubGeoMessage) error
}

// StatusListener is implemented by listeners interested in friends preambles and disconnect notices.
type StatusListener interface {
	OnStatus(ctx context.Context, status events.StatusMessage) error
}

// Funcs adapts plain functions to Listener. Nil fields are skipped.
type Funcs struct {
	Tweet    func(context.Context, events.Tweet) error
	Delete   func(context.Context, events.DeleteEvent) error
	Limit    func(context.Context, events.LimitMessage) error
	Warning  func(context.Context, events.WarningEvent) error
	ScrubGeo func(context.Context, events.ScrubGeoMessage) error
	Status   func(context.Context, events.StatusMessage) error
}

var (
	_ Listener         = Funcs{}
	_ ScrubGeoListener = Funcs{}
	_ StatusListener   = Funcs{}
)

func (f Funcs) OnTweet(ctx context.Context, tweet events.Tweet) error {
	if f.Tweet == nil {
		return nil
	}
	return f.Tweet(ctx, tweet)
}

func (f Funcs) OnDelete(ctx context.Context, del events.DeleteEvent) error {
	if f.Delete == nil {
		return nil
	}
	return f.Delete(ctx, del)
}

func (f Funcs) OnLimit(ctx context.Context, limit events.LimitMessage) error {
	if f.Limit == nil {
		return nil
	}
	return f.Limit(ctx, limit)
}

func (f Funcs) OnWarning(ctx context.Context, warning events.WarningEvent) error {
	if f.Warning == nil {
		return nil
	}
	return f.Warning(ctx, warning)
}

func (f Funcs) OnScrubGeo(ctx context.Context, scrub events.ScrubGeoMessage) error {
	if f.ScrubGeo == nil {
		return nil
	}
	return f.ScrubGeo(ctx, scrub)
}

func (f Funcs) OnStatus(ctx context.Context, status events.StatusMessage) error {
	if f.Status == nil {
		return nil
	}
	return f.Status(ctx, status)
}
