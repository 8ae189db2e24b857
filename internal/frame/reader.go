// Package frame splits a streaming HTTP body into newline-delimited frames.
package frame

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/coachpo/tweetstream/errs"
)

const defaultBufferSize = 64 * 1024

// ErrEnd signals that the remote side closed the body cleanly.
var ErrEnd = errors.New("frame: end of stream")

// Options tunes a Reader.
type Options struct {
	// Stream labels errors produced by the reader.
	Stream string
	// MaxLineBytes caps a single frame; zero disables the cap.
	MaxLineBytes int
	// BufferSize sizes the underlying bufio.Reader; zero selects 64KiB.
	BufferSize int
}

// Reader yields one frame per newline from an underlying byte stream.
// It is not safe for concurrent use; one reader goroutine owns it.
type Reader struct {
	br     *bufio.Reader
	opts   Options
	frames int
	err    error
}

// NewReader wraps r for frame-at-a-time reads.
func NewReader(r io.Reader, opts Options) *Reader {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Reader{
		br:     bufio.NewReaderSize(r, size),
		opts:   opts,
		frames: 0,
		err:    nil,
	}
}

// Next returns the next frame with its line terminator removed.
// Blank frames are keep-alives and are returned as zero-length slices.
// Once Next returns an error every later call returns the same error:
// ErrEnd on a clean close, or a fatal *errs.E for transport and decoding failures.
func (r *Reader) Next() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}

	var line []byte
	for {
		chunk, err := r.br.ReadSlice('\n')
		if len(chunk) > 0 {
			if line == nil && err == nil {
				line = make([]byte, len(chunk))
				copy(line, chunk)
			} else {
				line = append(line, chunk...)
			}
			if r.opts.MaxLineBytes > 0 && len(trimEOL(line)) > r.opts.MaxLineBytes {
				r.err = errs.New(r.opts.Stream, errs.CodeDecode,
					errs.WithFatal(),
					errs.WithMessage("frame exceeds line cap"),
					errs.WithField("max_line_bytes", strconv.Itoa(r.opts.MaxLineBytes)))
				return nil, r.err
			}
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			r.err = ErrEnd
			if len(line) == 0 {
				return nil, ErrEnd
			}
			break
		}
		r.err = errs.New(r.opts.Stream, errs.CodeNetwork,
			errs.WithFatal(),
			errs.WithMessage("read stream body"),
			errs.WithCause(err))
		return nil, r.err
	}

	line = trimEOL(line)
	if !utf8.Valid(line) {
		r.err = errs.New(r.opts.Stream, errs.CodeDecode,
			errs.WithFatal(),
			errs.WithMessage("frame is not valid UTF-8"),
			errs.WithField("frame", strconv.Itoa(r.frames+1)))
		return nil, r.err
	}
	r.frames++
	return line, nil
}

// Frames reports how many frames have been returned.
func (r *Reader) Frames() int {
	return r.frames
}

func trimEOL(line []byte) []byte {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return line[:n]
}
