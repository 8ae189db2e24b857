package frame

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Activity records when bytes last arrived from the wrapped reader.
// Reads happen on the reader goroutine; LastRead and FirstByte may be observed from any goroutine.
type Activity struct {
	r     io.Reader
	now   func() time.Time
	last  atomic.Int64
	total atomic.Int64
	first chan struct{}
	once  sync.Once
}

// NewActivity wraps r. A nil now defaults to time.Now.
func NewActivity(r io.Reader, now func() time.Time) *Activity {
	if now == nil {
		now = time.Now
	}
	a := &Activity{
		r:     r,
		now:   now,
		last:  atomic.Int64{},
		total: atomic.Int64{},
		first: make(chan struct{}),
		once:  sync.Once{},
	}
	a.last.Store(now().UnixNano())
	return a
}

func (a *Activity) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 {
		a.last.Store(a.now().UnixNano())
		a.total.Add(int64(n))
		a.once.Do(func() { close(a.first) })
	}
	return n, err //nolint:wrapcheck // io.Reader contract
}

// LastRead returns the time bytes were last observed, or creation time before the first byte.
func (a *Activity) LastRead() time.Time {
	return time.Unix(0, a.last.Load())
}

// FirstByte is closed when the first byte arrives.
func (a *Activity) FirstByte() <-chan struct{} {
	return a.first
}

// Bytes reports the total bytes read.
func (a *Activity) Bytes() int64 {
	return a.total.Load()
}
