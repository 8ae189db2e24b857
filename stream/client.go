package stream

import (
	"context"

	"github.com/google/uuid"

	"github.com/coachpo/tweetstream/core/dispatcher"
	"github.com/coachpo/tweetstream/errs"
)

// Client opens streaming sessions. It holds no connection state of its own
// and may be shared by goroutines.
type Client struct {
	cfg Config
}

// NewClient builds a client from DefaultConfig and opts.
func NewClient(opts ...Option) *Client {
	return &Client{cfg: Apply(DefaultConfig(), opts...)}
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config {
	return c.cfg.clone()
}

// Open validates params and starts a session for params.Kind(). Invalid
// parameters are the only error returned here; everything after validation
// is reported through hooks and Session.Err. Cancelling ctx closes the session.
func (c *Client) Open(ctx context.Context, params Parameters, listeners ...dispatcher.Listener) (*Session, error) {
	if params == nil {
		return nil, errs.New("", errs.CodeInvalid, errs.WithMessage("stream parameters are required"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id := uuid.NewString()
	conn := newConnection(ctx, id, params, c.cfg, listeners)
	if err := conn.start(); err != nil {
		return nil, err
	}
	return &Session{id: id, conn: conn}, nil
}

// Firehose streams all public statuses. A nil params streams without backfill.
func (c *Client) Firehose(ctx context.Context, params *FirehoseParameters, listeners ...dispatcher.Listener) (*Session, error) {
	return c.Open(ctx, params, listeners...)
}

// Sample streams a random sample of public statuses.
func (c *Client) Sample(ctx context.Context, params *SampleParameters, listeners ...dispatcher.Listener) (*Session, error) {
	return c.Open(ctx, params, listeners...)
}

// Filter streams statuses matching params.
func (c *Client) Filter(ctx context.Context, params *FilterParameters, listeners ...dispatcher.Listener) (*Session, error) {
	return c.Open(ctx, params, listeners...)
}

// User streams the authenticated user's timeline.
func (c *Client) User(ctx context.Context, params *UserParameters, listeners ...dispatcher.Listener) (*Session, error) {
	return c.Open(ctx, params, listeners...)
}
