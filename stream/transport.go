package stream

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coachpo/tweetstream/errs"
)

// Transport sends authenticated requests. *http.Client satisfies it; it must be
// safe for concurrent use because sessions share it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(*http.Request) (*http.Response, error)

func (f TransportFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// BearerTransport is an http.RoundTripper that adds an app-only bearer token.
type BearerTransport struct {
	Token string
	Base  http.RoundTripper
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.Token)
	return base.RoundTrip(clone)
}

const errorBodyLimit = 512

// classifyStatus maps a non-200 response to its reconnect class and error code.
func classifyStatus(status int) (FailureClass, errs.Code) {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return FailureAuth, errs.CodeAuth
	case http.StatusNotFound, http.StatusNotAcceptable, http.StatusRequestEntityTooLarge, http.StatusRequestedRangeNotSatisfiable:
		return FailureInvalid, errs.CodeInvalid
	case 420, http.StatusTooManyRequests:
		return FailureRateLimited, errs.CodeRateLimited
	default:
		return FailureHTTP, errs.CodeHTTP
	}
}

func remediationFor(class FailureClass) string {
	switch class {
	case FailureAuth:
		return "check the credentials supplied by the transport"
	case FailureInvalid:
		return "check the endpoint and request parameters"
	case FailureRateLimited:
		return "reduce the number of concurrent connections"
	default:
		return ""
	}
}

// statusError drains a bounded prefix of the body for the message and closes it.
func statusError(kind Kind, resp *http.Response) (FailureClass, error) {
	class, code := classifyStatus(resp.StatusCode)
	snippet := ""
	if resp.Body != nil {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		_ = resp.Body.Close()
		snippet = strings.TrimSpace(string(data))
	}
	message := fmt.Sprintf("unexpected status %s", resp.Status)
	if snippet != "" {
		message = fmt.Sprintf("%s: %s", message, snippet)
	}
	opts := []errs.Option{
		errs.WithHTTP(resp.StatusCode),
		errs.WithMessage(message),
	}
	if r := remediationFor(class); r != "" {
		opts = append(opts, errs.WithRemediation(r))
	}
	if !class.Retryable() {
		opts = append(opts, errs.WithFatal())
	}
	return class, errs.New(kind.String(), code, opts...)
}
