// Package errs provides structured error types and helpers for tweetstream sessions.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies a stream failure category.
type Code string

const (
	// CodeInvalid indicates parameters failed pre-flight validation.
	CodeInvalid Code = "invalid_request"
	// CodeAuth indicates the transport credentials were rejected.
	CodeAuth Code = "auth"
	// CodeRateLimited indicates the stream endpoint throttled the client.
	CodeRateLimited Code = "rate_limited"
	// CodeHTTP indicates a non-success HTTP status that is neither auth nor rate limiting.
	CodeHTTP Code = "http_error"
	// CodeNetwork indicates a transport failure: dial, reset, premature close or stall.
	CodeNetwork Code = "network"
	// CodeDecode indicates a frame could not be decoded.
	CodeDecode Code = "decode"
	// CodeListener indicates an application listener failed while handling an event.
	CodeListener Code = "listener"
	// CodeUnavailable indicates the session is closed or its reconnect policy is exhausted.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the stream stack.
type E struct {
	Stream      string
	Code        Code
	HTTP        int
	Message     string
	Remediation string
	Fatal       bool
	Metadata    map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the stream and error code.
func New(stream string, code Code, opts ...Option) *E {
	e := &E{
		Stream:      strings.TrimSpace(stream),
		Code:        code,
		HTTP:        0,
		Message:     "",
		Remediation: "",
		Fatal:       false,
		Metadata:    nil,
		cause:       nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithRemediation attaches remediation guidance to the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) {
		e.Remediation = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithFatal marks the error as terminating the current connection.
func WithFatal() Option {
	return func(e *E) {
		e.Fatal = true
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	stream := strings.TrimSpace(e.Stream)
	if stream == "" {
		stream = "unknown"
	}
	parts = append(parts, "stream="+stream)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Fatal {
		parts = append(parts, "fatal=true")
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Metadata[k]))
		}
		parts = append(parts, "meta="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf returns the code of the first envelope in err's chain, or "" when none is present.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// Is reports whether err's chain carries an envelope with the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsFatal reports whether err's chain carries an envelope marked fatal.
func IsFatal(err error) bool {
	var e *E
	return errors.As(err, &e) && e != nil && e.Fatal
}

// Retryable reports whether a failure of the given code may succeed on reconnect.
func Retryable(code Code) bool {
	switch code {
	case CodeInvalid, CodeAuth, CodeUnavailable:
		return false
	default:
		return true
	}
}
