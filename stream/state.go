package stream

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a stream connection.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateDraining
	StateReconnecting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Active reports whether the session is still trying to deliver messages.
func (s State) Active() bool {
	switch s {
	case StateConnecting, StateOpen, StateDraining, StateReconnecting:
		return true
	default:
		return false
	}
}

type trigger int

const (
	triggerStart trigger = iota + 1
	triggerInvalid
	triggerFirstByte
	triggerConnectFailed
	triggerStreamEnded
	triggerDrained
	triggerRetry
	triggerBackfillDone
	triggerFatal
	triggerClose
)

func (t trigger) String() string {
	switch t {
	case triggerStart:
		return "start"
	case triggerInvalid:
		return "invalid"
	case triggerFirstByte:
		return "first_byte"
	case triggerConnectFailed:
		return "connect_failed"
	case triggerStreamEnded:
		return "stream_ended"
	case triggerDrained:
		return "drained"
	case triggerRetry:
		return "retry"
	case triggerBackfillDone:
		return "backfill_done"
	case triggerFatal:
		return "fatal"
	case triggerClose:
		return "close"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// ErrIllegalTransition is wrapped by transition when a trigger does not apply to the current state.
var ErrIllegalTransition = errors.New("illegal state transition")

var transitions = map[State]map[trigger]State{
	StateIdle: {
		triggerStart:   StateConnecting,
		triggerInvalid: StateFailed,
		triggerClose:   StateClosed,
	},
	StateConnecting: {
		triggerFirstByte:     StateOpen,
		triggerConnectFailed: StateReconnecting,
		triggerFatal:         StateFailed,
		triggerClose:         StateClosed,
	},
	StateOpen: {
		triggerStreamEnded: StateDraining,
		triggerClose:       StateClosed,
	},
	StateDraining: {
		triggerDrained:      StateReconnecting,
		triggerBackfillDone: StateClosed,
		triggerFatal:        StateFailed,
		triggerClose:        StateClosed,
	},
	StateReconnecting: {
		triggerRetry: StateConnecting,
		triggerFatal: StateFailed,
		triggerClose: StateClosed,
	},
}

// transition is the only place state changes are decided.
func transition(from State, t trigger) (State, error) {
	if next, ok := transitions[from][t]; ok {
		return next, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, t, from)
}
