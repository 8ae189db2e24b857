package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	legal := []struct {
		from State
		on   trigger
		to   State
	}{
		{StateIdle, triggerStart, StateConnecting},
		{StateIdle, triggerInvalid, StateFailed},
		{StateConnecting, triggerFirstByte, StateOpen},
		{StateConnecting, triggerConnectFailed, StateReconnecting},
		{StateConnecting, triggerFatal, StateFailed},
		{StateOpen, triggerStreamEnded, StateDraining},
		{StateOpen, triggerClose, StateClosed},
		{StateDraining, triggerDrained, StateReconnecting},
		{StateDraining, triggerBackfillDone, StateClosed},
		{StateDraining, triggerFatal, StateFailed},
		{StateReconnecting, triggerRetry, StateConnecting},
		{StateReconnecting, triggerFatal, StateFailed},
		{StateReconnecting, triggerClose, StateClosed},
	}
	for _, tc := range legal {
		got, err := transition(tc.from, tc.on)
		require.NoError(t, err, "%s on %s", tc.on, tc.from)
		require.Equal(t, tc.to, got, "%s on %s", tc.on, tc.from)
	}
}

func TestIllegalTransitionsAreRejected(t *testing.T) {
	illegal := []struct {
		from State
		on   trigger
	}{
		{StateIdle, triggerFirstByte},
		{StateOpen, triggerRetry},
		{StateOpen, triggerFatal},
		{StateConnecting, triggerBackfillDone},
		{StateClosed, triggerStart},
		{StateClosed, triggerClose},
		{StateFailed, triggerRetry},
	}
	for _, tc := range illegal {
		got, err := transition(tc.from, tc.on)
		require.ErrorIs(t, err, ErrIllegalTransition)
		require.Equal(t, tc.from, got)
	}
}

func TestStatePredicates(t *testing.T) {
	for _, s := range []State{StateConnecting, StateOpen, StateDraining, StateReconnecting} {
		require.True(t, s.Active(), s.String())
		require.False(t, s.Terminal(), s.String())
	}
	for _, s := range []State{StateClosed, StateFailed} {
		require.True(t, s.Terminal(), s.String())
		require.False(t, s.Active(), s.String())
	}
	require.False(t, StateIdle.Active())
	require.Equal(t, "reconnecting", StateReconnecting.String())
}
