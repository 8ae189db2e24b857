package stream

import (
	"time"

	"github.com/coachpo/tweetstream/core/dispatcher"
	"github.com/coachpo/tweetstream/core/events"
)

// ReconnectInfo describes a scheduled reconnect.
type ReconnectInfo struct {
	SessionID string
	Kind      Kind
	// Attempt counts consecutive failures since the stream was last open.
	Attempt int
	Class   FailureClass
	Delay   time.Duration
	Cause   error
}

// Hooks observe a session without taking part in message delivery.
// Hooks run on the session's reader goroutine and must not block.
type Hooks struct {
	OnError       func(error)
	OnUnknown     func(events.UnknownMessage)
	OnReconnect   func(ReconnectInfo)
	OnStateChange func(from, to State)
}

func (h Hooks) dispatcherHooks() dispatcher.Hooks {
	return dispatcher.Hooks{
		OnError:   h.OnError,
		OnUnknown: h.OnUnknown,
	}
}

func (h Hooks) reconnect(info ReconnectInfo) {
	if h.OnReconnect != nil {
		h.OnReconnect(info)
	}
}

func (h Hooks) stateChange(from, to State) {
	if h.OnStateChange != nil {
		h.OnStateChange(from, to)
	}
}
