package frame

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/tweetstream/errs"
)

func readAll(t *testing.T, r *Reader) ([]string, error) {
	t.Helper()
	var out []string
	for {
		line, err := r.Next()
		if err != nil {
			return out, err
		}
		out = append(out, string(line))
	}
}

func TestReaderSplitsLinesAndKeepAlives(t *testing.T) {
	body := "{\"a\":1}\r\n\r\n{\"b\":2}\n\n"
	r := NewReader(strings.NewReader(body), Options{Stream: "sample"})

	lines, err := readAll(t, r)
	require.ErrorIs(t, err, ErrEnd)
	require.Equal(t, []string{`{"a":1}`, "", `{"b":2}`, ""}, lines)
	require.Equal(t, 4, r.Frames())
}

func TestReaderReassemblesLinesAcrossReads(t *testing.T) {
	body := `{"text":"hello","id":1}` + "\n" + `{"limit":{"track":42}}` + "\n"
	r := NewReader(iotest.OneByteReader(strings.NewReader(body)), Options{BufferSize: 16})

	lines, err := readAll(t, r)
	require.ErrorIs(t, err, ErrEnd)
	require.Equal(t, []string{`{"text":"hello","id":1}`, `{"limit":{"track":42}}`}, lines)
}

func TestReaderReturnsTrailingPartialLineBeforeEnd(t *testing.T) {
	r := NewReader(strings.NewReader("{\"a\":1}\n{\"b\""), Options{})

	lines, err := readAll(t, r)
	require.ErrorIs(t, err, ErrEnd)
	require.Equal(t, []string{`{"a":1}`, `{"b"`}, lines)

	_, err = r.Next()
	require.ErrorIs(t, err, ErrEnd, "terminal signal must be sticky")
}

func TestReaderFramesDoNotAliasBuffer(t *testing.T) {
	r := NewReader(strings.NewReader("first\nsecond\n"), Options{})
	first, err := r.Next()
	require.NoError(t, err)
	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "first", string(first))
	require.Equal(t, "second", string(second))
}

func TestReaderRejectsInvalidUTF8(t *testing.T) {
	r := NewReader(strings.NewReader("ok\n\xff\xfe\nnever\n"), Options{Stream: "filter"})

	line, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "ok", string(line))

	_, err = r.Next()
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeDecode))
	require.True(t, errs.IsFatal(err))

	_, again := r.Next()
	require.Equal(t, err, again)
}

func TestReaderEnforcesOptionalLineCap(t *testing.T) {
	r := NewReader(strings.NewReader("short\n"+strings.Repeat("x", 64)+"\n"), Options{MaxLineBytes: 32, BufferSize: 16})

	line, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "short", string(line))

	_, err = r.Next()
	require.True(t, errs.Is(err, errs.CodeDecode))
	require.True(t, errs.IsFatal(err))
}

func TestReaderWrapsTransportErrors(t *testing.T) {
	cause := errors.New("connection reset by peer")
	r := NewReader(io.MultiReader(strings.NewReader("a\npartial"), iotest.ErrReader(cause)), Options{Stream: "user"})

	line, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "a", string(line))

	_, err = r.Next()
	require.ErrorIs(t, err, cause)
	require.True(t, errs.Is(err, errs.CodeNetwork))
	require.True(t, errs.IsFatal(err))
}

func TestActivityTracksFirstByteAndLastRead(t *testing.T) {
	now := time.Unix(100, 0)
	clock := func() time.Time { return now }
	pr, pw := io.Pipe()
	a := NewActivity(pr, clock)

	require.Equal(t, time.Unix(100, 0), a.LastRead())
	select {
	case <-a.FirstByte():
		t.Fatal("first byte signalled before any read")
	default:
	}

	go func() {
		_, _ = pw.Write([]byte("\r\n"))
		_ = pw.Close()
	}()

	now = time.Unix(130, 0)
	buf := make([]byte, 8)
	n, err := a.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	select {
	case <-a.FirstByte():
	default:
		t.Fatal("expected first byte signal")
	}
	require.Equal(t, time.Unix(130, 0), a.LastRead())
	require.Equal(t, int64(2), a.Bytes())
}
