package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/tweetstream/core/events"
	"github.com/coachpo/tweetstream/errs"
	"github.com/coachpo/tweetstream/lib/async"
)

type errorSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errorSink) add(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errorSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func tweet(id string) events.TweetMessage {
	return events.TweetMessage{Tweet: events.Tweet{ID: id, Text: "hello " + id}}
}

func TestDispatchInvokesListenersInOrder(t *testing.T) {
	var order []string
	record := func(name string) Funcs {
		return Funcs{Tweet: func(_ context.Context, tw events.Tweet) error {
			order = append(order, name+":"+tw.ID)
			return nil
		}}
	}
	d := New("sample", Hooks{}, nil, nil)
	listeners := []Listener{record("a"), record("b"), record("c")}

	for _, id := range []string{"1", "2"} {
		require.NoError(t, d.Dispatch(context.Background(), tweet(id), listeners))
	}
	require.Equal(t, []string{"a:1", "b:1", "c:1", "a:2", "b:2", "c:2"}, order)
}

func TestDispatchIsolatesPanicsAndErrors(t *testing.T) {
	sink := new(errorSink)
	d := New("filter", Hooks{OnError: sink.add}, nil, nil)

	var delivered []string
	good := Funcs{Tweet: func(_ context.Context, tw events.Tweet) error {
		delivered = append(delivered, tw.ID)
		return nil
	}}
	flaky := Funcs{Tweet: func(_ context.Context, tw events.Tweet) error {
		switch tw.ID {
		case "3":
			panic("listener blew up")
		case "4":
			return errors.New("listener refused")
		}
		return nil
	}}

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, d.Dispatch(context.Background(), tweet(id), []Listener{flaky, good}))
	}

	require.Equal(t, []string{"1", "2", "3", "4", "5"}, delivered)
	reported := sink.all()
	require.Len(t, reported, 2)
	for _, err := range reported {
		require.True(t, errs.Is(err, errs.CodeListener))
		var e *errs.E
		require.ErrorAs(t, err, &e)
		require.Equal(t, "0", e.Metadata["listener"])
		require.Equal(t, "tweet", e.Metadata["message_kind"])
		require.Equal(t, "filter", e.Stream)
	}
	require.Contains(t, reported[0].Error(), "listener blew up")
	require.Contains(t, reported[1].Error(), "listener refused")
}

func TestDispatchRoutesEachMessageKind(t *testing.T) {
	var got []string
	mark := func(name string) error {
		got = append(got, name)
		return nil
	}
	full := Funcs{
		Tweet:    func(context.Context, events.Tweet) error { return mark("tweet") },
		Delete:   func(context.Context, events.DeleteEvent) error { return mark("delete") },
		Limit:    func(context.Context, events.LimitMessage) error { return mark("limit") },
		Warning:  func(context.Context, events.WarningEvent) error { return mark("warning") },
		ScrubGeo: func(context.Context, events.ScrubGeoMessage) error { return mark("scrub_geo") },
		Status:   func(context.Context, events.StatusMessage) error { return mark("status") },
	}
	var unknown []events.UnknownMessage
	d := New("user", Hooks{OnUnknown: func(m events.UnknownMessage) { unknown = append(unknown, m) }}, nil, nil)

	msgs := []events.Message{
		tweet("1"),
		events.DeleteMessage{Delete: events.DeleteEvent{TweetID: "1", UserID: "2"}},
		events.LimitMessage{Track: 7},
		events.WarningMessage{Warning: events.WarningEvent{Code: "FALLING_BEHIND", PercentFull: 60}},
		events.ScrubGeoMessage{UserID: "2", UpToStatusID: "9"},
		events.StatusMessage{Status: events.StatusFriends, Friends: []string{"3"}},
		events.UnknownMessage{Keys: []string{"event"}, Raw: []byte(`{"event":"follow"}`)},
	}
	for _, m := range msgs {
		require.NoError(t, d.Dispatch(context.Background(), m, []Listener{full}))
	}

	require.Equal(t, []string{"tweet", "delete", "limit", "warning", "scrub_geo", "status"}, got)
	require.Len(t, unknown, 1)
	require.Equal(t, []string{"event"}, unknown[0].Keys)
}

type basicListener struct{ tweets int }

func (b *basicListener) OnTweet(context.Context, events.Tweet) error {
	b.tweets++
	return nil
}

func (b *basicListener) OnDelete(context.Context, events.DeleteEvent) error   { return nil }
func (b *basicListener) OnLimit(context.Context, events.LimitMessage) error   { return nil }
func (b *basicListener) OnWarning(context.Context, events.WarningEvent) error { return nil }

func TestDispatchSkipsOptionalInterfacesWhenAbsent(t *testing.T) {
	b := new(basicListener)
	d := New("user", Hooks{}, nil, nil)
	require.NoError(t, d.Dispatch(context.Background(), events.ScrubGeoMessage{UserID: "1"}, []Listener{b, nil}))
	require.NoError(t, d.Dispatch(context.Background(), events.StatusMessage{Status: events.StatusDisconnect}, []Listener{b}))
	require.NoError(t, d.Dispatch(context.Background(), tweet("1"), []Listener{b}))
	require.Equal(t, 1, b.tweets)
}

func TestDispatchReturnsStopAfterRemainingListeners(t *testing.T) {
	var after int
	stopper := Funcs{Tweet: func(context.Context, events.Tweet) error { return ErrStop }}
	counter := Funcs{Tweet: func(context.Context, events.Tweet) error {
		after++
		return nil
	}}
	sink := new(errorSink)
	d := New("sample", Hooks{OnError: sink.add}, nil, nil)

	err := d.Dispatch(context.Background(), tweet("1"), []Listener{stopper, counter})
	require.ErrorIs(t, err, ErrStop)
	require.Equal(t, 1, after)
	require.Empty(t, sink.all())
}

func TestDispatchSkipsCancelledContext(t *testing.T) {
	var calls int
	l := Funcs{Tweet: func(context.Context, events.Tweet) error {
		calls++
		return nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, New("sample", Hooks{}, nil, nil).Dispatch(ctx, tweet("1"), []Listener{l}))
	require.Zero(t, calls)
}

func TestHookPanicsAreContained(t *testing.T) {
	d := New("sample", Hooks{
		OnError:   func(error) { panic("error hook") },
		OnUnknown: func(events.UnknownMessage) { panic("unknown hook") },
	}, nil, nil)
	bad := Funcs{Tweet: func(context.Context, events.Tweet) error { return errors.New("nope") }}

	require.NotPanics(t, func() {
		require.NoError(t, d.Dispatch(context.Background(), tweet("1"), []Listener{bad}))
		require.NoError(t, d.Dispatch(context.Background(), events.UnknownMessage{}, nil))
	})
}

func TestAsyncOffloadsToPool(t *testing.T) {
	sink := new(errorSink)
	pool, err := async.NewPool(1, 16, async.WithErrorHandler(sink.add))
	require.NoError(t, err)

	var mu sync.Mutex
	var ids []string
	inner := Funcs{
		Tweet: func(_ context.Context, tw events.Tweet) error {
			mu.Lock()
			ids = append(ids, tw.ID)
			mu.Unlock()
			if tw.ID == "2" {
				return errors.New("slow consumer failed")
			}
			return nil
		},
	}
	d := New("sample", Hooks{}, nil, nil)
	listeners := []Listener{Async(inner, pool)}

	ctx, cancel := context.WithCancel(context.Background())
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, d.Dispatch(ctx, tweet(id), listeners))
	}
	cancel()
	require.NoError(t, d.Dispatch(context.Background(), events.ScrubGeoMessage{UserID: "1"}, listeners))

	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	require.NoError(t, pool.Shutdown(shutdownCtx))

	require.Equal(t, []string{"1", "2", "3"}, ids)
	require.Len(t, sink.all(), 1)
}

func TestAsyncReportsSubmitFailures(t *testing.T) {
	pool, err := async.NewPool(1, 1)
	require.NoError(t, err)
	pool.Close()

	sink := new(errorSink)
	d := New("sample", Hooks{OnError: sink.add}, nil, nil)
	require.NoError(t, d.Dispatch(context.Background(), tweet("1"), []Listener{Async(Funcs{}, pool)}))

	reported := sink.all()
	require.Len(t, reported, 1)
	require.True(t, errs.Is(reported[0], errs.CodeListener))
	require.True(t, errs.Is(errors.Unwrap(reported[0]), errs.CodeUnavailable))
}
