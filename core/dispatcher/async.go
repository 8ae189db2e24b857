package dispatcher

import (
	"context"

	"github.com/coachpo/tweetstream/core/events"
	"github.com/coachpo/tweetstream/lib/async"
)

// Async wraps listener so each callback is submitted to pool instead of running
// on the reader goroutine. Delivery order then depends on the pool; a single
// worker keeps stream order. Submission failures are returned to the dispatcher
// as listener errors, and task failures go to the pool's error handler.
func Async(listener Listener, pool *async.Pool) Listener {
	if listener == nil || pool == nil {
		return listener
	}
	return asyncListener{inner: listener, pool: pool}
}

type asyncListener struct {
	inner Listener
	pool  *async.Pool
}

func (a asyncListener) submit(ctx context.Context, fn async.Task) error {
	// Tasks outlive the dispatch call; the reader's context would cancel them on close.
	return a.pool.Submit(context.WithoutCancel(ctx), fn)
}

func (a asyncListener) OnTweet(ctx context.Context, tweet events.Tweet) error {
	return a.submit(ctx, func(ctx context.Context) error { return a.inner.OnTweet(ctx, tweet) })
}

func (a asyncListener) OnDelete(ctx context.Context, del events.DeleteEvent) error {
	return a.submit(ctx, func(ctx context.Context) error { return a.inner.OnDelete(ctx, del) })
}

func (a asyncListener) OnLimit(ctx context.Context, limit events.LimitMessage) error {
	return a.submit(ctx, func(ctx context.Context) error { return a.inner.OnLimit(ctx, limit) })
}

func (a asyncListener) OnWarning(ctx context.Context, warning events.WarningEvent) error {
	return a.submit(ctx, func(ctx context.Context) error { return a.inner.OnWarning(ctx, warning) })
}

func (a asyncListener) OnScrubGeo(ctx context.Context, scrub events.ScrubGeoMessage) error {
	sl, ok := a.inner.(ScrubGeoListener)
	if !ok {
		return nil
	}
	return a.submit(ctx, func(ctx context.Context) error { return sl.OnScrubGeo(ctx, scrub) })
}

func (a asyncListener) OnStatus(ctx context.Context, status events.StatusMessage) error {
	sl, ok := a.inner.(StatusListener)
	if !ok {
		return nil
	}
	return a.submit(ctx, func(ctx context.Context) error { return sl.OnStatus(ctx, status) })
}
