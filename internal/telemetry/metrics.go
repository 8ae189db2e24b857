package telemetry

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "tweetstream.stream"

	metricConnects       = "tweetstream_stream_connects"
	metricReconnects     = "tweetstream_stream_reconnects"
	metricBackoffDelay   = "tweetstream_stream_backoff_delay"
	metricFrames         = "tweetstream_stream_frames"
	metricKeepAlives     = "tweetstream_stream_keepalives"
	metricFrameBytes     = "tweetstream_stream_frame_bytes"
	metricMessages       = "tweetstream_stream_messages"
	metricDecodeErrors   = "tweetstream_stream_decode_errors"
	metricListenerErrors = "tweetstream_stream_listener_errors"
	metricActiveSessions = "tweetstream_stream_active_sessions"
	metricTransitions    = "tweetstream_stream_state_transitions"
)

// StreamMetrics records per-stream instrumentation. A nil *StreamMetrics is valid and records nothing.
type StreamMetrics struct {
	environment string
	kind        string

	connects       metric.Int64Counter
	reconnects     metric.Int64Counter
	backoffDelay   metric.Float64Histogram
	frames         metric.Int64Counter
	keepAlives     metric.Int64Counter
	frameBytes     metric.Int64Histogram
	messages       metric.Int64Counter
	decodeErrors   metric.Int64Counter
	listenerErrors metric.Int64Counter
	activeSessions metric.Int64UpDownCounter
	transitions    metric.Int64Counter
}

// NewStreamMetrics builds instruments on meter, or on the global meter provider when meter is nil.
func NewStreamMetrics(meter metric.Meter, kind string) *StreamMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	sm := &StreamMetrics{
		environment:    Environment(),
		kind:           strings.ToLower(strings.TrimSpace(kind)),
		connects:       nil,
		reconnects:     nil,
		backoffDelay:   nil,
		frames:         nil,
		keepAlives:     nil,
		frameBytes:     nil,
		messages:       nil,
		decodeErrors:   nil,
		listenerErrors: nil,
		activeSessions: nil,
		transitions:    nil,
	}

	sm.connects, _ = meter.Int64Counter(metricConnects,
		metric.WithDescription("Stream connection attempts by result"),
		metric.WithUnit("{attempt}"))

	sm.reconnects, _ = meter.Int64Counter(metricReconnects,
		metric.WithDescription("Reconnects scheduled by failure class"),
		metric.WithUnit("{reconnect}"))

	sm.backoffDelay, _ = meter.Float64Histogram(metricBackoffDelay,
		metric.WithDescription("Delay applied before reconnecting"),
		metric.WithUnit("ms"))

	sm.frames, _ = meter.Int64Counter(metricFrames,
		metric.WithDescription("Frames read from stream bodies"),
		metric.WithUnit("{frame}"))

	sm.keepAlives, _ = meter.Int64Counter(metricKeepAlives,
		metric.WithDescription("Blank keep-alive frames read from stream bodies"),
		metric.WithUnit("{frame}"))

	sm.frameBytes, _ = meter.Int64Histogram(metricFrameBytes,
		metric.WithDescription("Size of non-blank stream frames"),
		metric.WithUnit("By"))

	sm.messages, _ = meter.Int64Counter(metricMessages,
		metric.WithDescription("Classified stream messages by type"),
		metric.WithUnit("{message}"))

	sm.decodeErrors, _ = meter.Int64Counter(metricDecodeErrors,
		metric.WithDescription("Frames dropped or connections ended by decode failures"),
		metric.WithUnit("{error}"))

	sm.listenerErrors, _ = meter.Int64Counter(metricListenerErrors,
		metric.WithDescription("Errors and panics raised by application listeners"),
		metric.WithUnit("{error}"))

	sm.activeSessions, _ = meter.Int64UpDownCounter(metricActiveSessions,
		metric.WithDescription("Stream sessions that have not reached a terminal state"),
		metric.WithUnit("{session}"))

	sm.transitions, _ = meter.Int64Counter(metricTransitions,
		metric.WithDescription("Connection state machine transitions by target state"),
		metric.WithUnit("{transition}"))

	return sm
}

func (sm *StreamMetrics) baseAttrs() []attribute.KeyValue {
	return StreamAttributes(sm.environment, sm.kind)
}

// RecordConnect counts a connection attempt outcome.
func (sm *StreamMetrics) RecordConnect(ctx context.Context, result string) {
	if sm == nil || sm.connects == nil {
		return
	}
	ctx = ensureContext(ctx)
	attrs := sm.baseAttrs()
	if result != "" {
		attrs = append(attrs, AttrResult.String(result))
	}
	sm.connects.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconnect counts a scheduled reconnect and the delay chosen for it.
func (sm *StreamMetrics) RecordReconnect(ctx context.Context, class string, delay time.Duration) {
	if sm == nil || sm.reconnects == nil || sm.backoffDelay == nil {
		return
	}
	ctx = ensureContext(ctx)
	if delay < 0 {
		delay = 0
	}
	attrs := append(sm.baseAttrs(), AttrFailureClass.String(class))
	sm.reconnects.Add(ctx, 1, metric.WithAttributes(attrs...))
	sm.backoffDelay.Record(ctx, float64(delay.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordFrame counts a frame; blank frames count as keep-alives and are excluded from the size histogram.
func (sm *StreamMetrics) RecordFrame(ctx context.Context, size int) {
	if sm == nil || sm.frames == nil {
		return
	}
	ctx = ensureContext(ctx)
	attrs := sm.baseAttrs()
	sm.frames.Add(ctx, 1, metric.WithAttributes(attrs...))
	if size == 0 {
		if sm.keepAlives != nil {
			sm.keepAlives.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		return
	}
	if sm.frameBytes != nil {
		sm.frameBytes.Record(ctx, int64(size), metric.WithAttributes(attrs...))
	}
}

// RecordMessage counts a classified message.
func (sm *StreamMetrics) RecordMessage(ctx context.Context, messageType string) {
	if sm == nil || sm.messages == nil {
		return
	}
	ctx = ensureContext(ctx)
	attrs := append(sm.baseAttrs(), AttrMessageType.String(messageType))
	sm.messages.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDecodeError counts a frame decode failure.
func (sm *StreamMetrics) RecordDecodeError(ctx context.Context, fatal bool) {
	if sm == nil || sm.decodeErrors == nil {
		return
	}
	ctx = ensureContext(ctx)
	result := "dropped"
	if fatal {
		result = "disconnect"
	}
	attrs := append(sm.baseAttrs(), AttrResult.String(result))
	sm.decodeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordListenerError counts a listener failure for the given message type.
func (sm *StreamMetrics) RecordListenerError(ctx context.Context, messageType string) {
	if sm == nil || sm.listenerErrors == nil {
		return
	}
	ctx = ensureContext(ctx)
	attrs := append(sm.baseAttrs(), AttrMessageType.String(messageType))
	sm.listenerErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// AdjustSessions moves the active session gauge by delta.
func (sm *StreamMetrics) AdjustSessions(ctx context.Context, delta int) {
	if sm == nil || sm.activeSessions == nil || delta == 0 {
		return
	}
	ctx = ensureContext(ctx)
	sm.activeSessions.Add(ctx, int64(delta), metric.WithAttributes(sm.baseAttrs()...))
}

// RecordTransition counts a state machine transition into state.
func (sm *StreamMetrics) RecordTransition(ctx context.Context, state string) {
	if sm == nil || sm.transitions == nil {
		return
	}
	ctx = ensureContext(ctx)
	attrs := append(sm.baseAttrs(), AttrConnectionState.String(state))
	sm.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
