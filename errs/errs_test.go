package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesMetadataAndCause(t *testing.T) {
	err := New(
		"filter",
		CodeRateLimited,
		WithHTTP(420),
		WithMessage("enhance your calm"),
		WithField("endpoint", "/1.1/statuses/filter.json"),
		WithField("attempt", "3"),
		WithRemediation("reduce reconnect frequency"),
		WithCause(errors.New("http 420")),
	)

	out := err.Error()
	if !strings.Contains(out, "stream=filter") {
		t.Fatalf("expected stream marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=rate_limited") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "http=420") {
		t.Fatalf("expected http status in error string: %s", out)
	}
	expectedMeta := "meta=attempt=\"3\",endpoint=\"/1.1/statuses/filter.json\""
	if !strings.Contains(out, expectedMeta) {
		t.Fatalf("expected metadata %q in error string: %s", expectedMeta, out)
	}
	if !strings.Contains(out, "remediation=\"reduce reconnect frequency\"") {
		t.Fatalf("expected remediation guidance in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"http 420\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestEmptyStreamFormatsAsUnknown(t *testing.T) {
	err := New("  ", CodeNetwork)
	if !strings.Contains(err.Error(), "stream=unknown") {
		t.Fatalf("expected unknown stream marker: %s", err.Error())
	}
	if strings.Contains(err.Error(), "fatal=") {
		t.Fatalf("fatal marker should be omitted by default: %s", err.Error())
	}
}

func TestWithFieldIgnoresBlankKeys(t *testing.T) {
	err := New("sample", CodeDecode, WithField(" ", "x"), WithField("line", " 7 "))
	if len(err.Metadata) != 1 {
		t.Fatalf("expected one metadata entry, got %d", len(err.Metadata))
	}
	if got := err.Metadata["line"]; got != "7" {
		t.Fatalf("expected trimmed metadata value, got %q", got)
	}
}

func TestCodeOfUnwrapsChains(t *testing.T) {
	base := New("user", CodeAuth, WithHTTP(401))
	wrapped := fmt.Errorf("connect: %w", base)

	if got := CodeOf(wrapped); got != CodeAuth {
		t.Fatalf("expected auth code through wrapping, got %q", got)
	}
	if !Is(wrapped, CodeAuth) {
		t.Fatalf("expected Is to match auth code")
	}
	if Is(wrapped, CodeNetwork) {
		t.Fatalf("expected Is to reject mismatched code")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty code for plain error")
	}
	if Is(nil, CodeAuth) {
		t.Fatalf("nil error must not match any code")
	}
}

func TestIsFatalAndUnwrap(t *testing.T) {
	cause := errors.New("invalid utf-8")
	err := fmt.Errorf("frame: %w", New("sample", CodeDecode, WithFatal(), WithCause(cause)))
	if !IsFatal(err) {
		t.Fatalf("expected fatal marker to survive wrapping")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the cause")
	}
	if IsFatal(New("sample", CodeDecode)) {
		t.Fatalf("expected non-fatal by default")
	}
}

func TestRetryable(t *testing.T) {
	for _, code := range []Code{CodeInvalid, CodeAuth, CodeUnavailable} {
		if Retryable(code) {
			t.Fatalf("expected %s to be terminal", code)
		}
	}
	for _, code := range []Code{CodeNetwork, CodeRateLimited, CodeHTTP, CodeDecode} {
		if !Retryable(code) {
			t.Fatalf("expected %s to be retryable", code)
		}
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}
