package stream

// Session is the handle returned by every streaming operation. It stays valid
// until Close is called, the parent context is cancelled, or the connection
// fails for good.
type Session struct {
	id   string
	conn *connection
}

// ID returns the session's unique identifier, used in logs and hooks.
func (s *Session) ID() string { return s.id }

// Kind returns the endpoint this session streams from.
func (s *Session) Kind() Kind { return s.conn.kind }

// Close stops the session. It is idempotent and safe to call from any
// goroutine except a listener callback; return dispatcher.ErrStop from the
// callback instead. When Close returns no callback is running and none will run.
func (s *Session) Close() error {
	s.conn.close()
	return nil
}

// IsOpen reports whether the session is still connecting, streaming or
// waiting to reconnect.
func (s *Session) IsOpen() bool {
	return s.conn.State().Active()
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.conn.done
}

// Err returns the cause of a failed session, or nil while running and after a clean close.
func (s *Session) Err() error {
	return s.conn.Err()
}

// Failed reports whether the session ended because it could not continue.
func (s *Session) Failed() bool {
	return s.conn.State() == StateFailed
}
