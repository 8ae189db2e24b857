package stream

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coachpo/tweetstream/core/events"
)

type step func(*http.Request) (*http.Response, error)

// scriptedTransport replays steps in order, repeating the last one.
type scriptedTransport struct {
	mu       sync.Mutex
	steps    []step
	requests []*http.Request
}

func script(steps ...step) *scriptedTransport {
	return &scriptedTransport{steps: steps}
}

func (s *scriptedTransport) Do(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	idx := len(s.requests)
	s.requests = append(s.requests, req)
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	next := s.steps[idx]
	s.mu.Unlock()
	return next(req)
}

func (s *scriptedTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedTransport) request(i int) *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func respond(status int, body io.ReadCloser) *http.Response {
	if body == nil {
		body = http.NoBody
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{},
		Body:       body,
	}
}

// finite serves the given lines and then ends the body.
func finite(lines ...string) step {
	return func(*http.Request) (*http.Response, error) {
		payload := strings.Join(lines, "\r\n") + "\r\n"
		return respond(http.StatusOK, io.NopCloser(strings.NewReader(payload))), nil
	}
}

// open serves the given lines and then holds the body open until the client closes it.
func open(lines ...string) step {
	return func(*http.Request) (*http.Response, error) {
		pr, pw := io.Pipe()
		go func() {
			for _, l := range lines {
				if _, err := io.WriteString(pw, l+"\r\n"); err != nil {
					return
				}
			}
		}()
		return respond(http.StatusOK, pr), nil
	}
}

// silent returns a body that never produces a byte.
func silent() step {
	return func(*http.Request) (*http.Response, error) {
		pr, _ := io.Pipe()
		return respond(http.StatusOK, pr), nil
	}
}

func httpStatus(code int) step {
	return func(*http.Request) (*http.Response, error) {
		return respond(code, io.NopCloser(strings.NewReader(`{"errors":[{"message":"nope"}]}`))), nil
	}
}

func dialError() step {
	return func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}
}

func tweetJSON(id string) string {
	return `{"id":` + id + `,"id_str":"` + id + `","text":"tweet ` + id + `","user":{"id_str":"42","screen_name":"gopher"}}`
}

// fastConfig removes real-world delays so tests run in milliseconds.
func fastConfig(transport Transport, extra ...Option) []Option {
	opts := []Option{
		WithTransport(transport),
		WithBackoff(BackoffConfig{
			NetworkStep:        time.Millisecond,
			NetworkMax:         3 * time.Millisecond,
			HTTPInitial:        time.Millisecond,
			HTTPMax:            4 * time.Millisecond,
			RateLimitedInitial: 2 * time.Millisecond,
			RateLimitedMax:     8 * time.Millisecond,
		}),
		WithConnectRate(1000, 0),
		WithConnectTimeout(2 * time.Second),
	}
	return append(opts, extra...)
}

type tweetRecorder struct {
	mu     sync.Mutex
	tweets []events.Tweet
}

func (r *tweetRecorder) add(tw events.Tweet) {
	r.mu.Lock()
	r.tweets = append(r.tweets, tw)
	r.mu.Unlock()
}

func (r *tweetRecorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.tweets))
	for i, tw := range r.tweets {
		out[i] = tw.ID
	}
	return out
}

func (r *tweetRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tweets)
}

type reconnectRecorder struct {
	mu    sync.Mutex
	infos []ReconnectInfo
}

func (r *reconnectRecorder) add(info ReconnectInfo) {
	r.mu.Lock()
	r.infos = append(r.infos, info)
	r.mu.Unlock()
}

func (r *reconnectRecorder) all() []ReconnectInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReconnectInfo(nil), r.infos...)
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) add(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *errorRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not finish (state %s)", s.ID(), s.conn.State())
	}
}
