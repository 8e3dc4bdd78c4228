package wscodec

import (
	"errors"
	"fmt"

	"github.com/eapache/queue"
)

// Stream decodes frames out of arbitrarily chunked transport reads.
//
// Bytes written to a Stream are buffered until they form complete frames,
// which are queued in arrival order for Next. A Stream is not safe for
// concurrent use.
type Stream struct {
	buf    []byte
	frames *queue.Queue
	err    error
	limit  int64
}

// DefaultReadLimit is the read limit of a new Stream.
const DefaultReadLimit = 32768

// NewStream returns an empty Stream with a read limit of DefaultReadLimit.
func NewStream() *Stream {
	return &Stream{
		frames: queue.New(),
		limit:  DefaultReadLimit,
	}
}

// SetReadLimit sets the max payload length of a single frame.
// A frame declaring more fails the Stream with ErrMessageTooBig as soon
// as its header is buffered. n <= 0 disables the limit.
func (s *Stream) SetReadLimit(n int64) {
	s.limit = n
}

// Write buffers p and decodes every frame it completes.
// Incomplete trailing bytes are kept for the next Write.
// Any decode error other than ErrTruncated, including ErrMessageTooBig,
// is returned and every later Write returns it as well.
func (s *Stream) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	s.buf = append(s.buf, p...)

	off := 0
	for off < len(s.buf) {
		err := s.checkLimit(s.buf[off:])
		if errors.Is(err, ErrTruncated) {
			break
		}
		if err != nil {
			s.err = err
			s.buf = nil
			return len(p), err
		}

		f, n, err := Decode(s.buf[off:])
		if errors.Is(err, ErrTruncated) {
			break
		}
		if err != nil {
			s.err = err
			s.buf = nil
			return len(p), err
		}
		s.frames.Add(f)
		off += n
	}

	if off > 0 {
		s.buf = s.buf[:copy(s.buf, s.buf[off:])]
	}
	return len(p), nil
}

// checkLimit reports whether the header at the start of b declares a
// payload within the read limit.
func (s *Stream) checkLimit(b []byte) error {
	h, _, err := readHeader(b)
	if err != nil {
		return err
	}
	if s.limit > 0 && h.payloadLength > uint64(s.limit) {
		return fmt.Errorf("%w: %v frame declares %d payload bytes but the limit is %d",
			ErrMessageTooBig, h.opcode, h.payloadLength, s.limit)
	}
	return nil
}

// Next pops the oldest decoded frame.
func (s *Stream) Next() (Frame, bool) {
	if s.frames.Length() == 0 {
		return Frame{}, false
	}
	return s.frames.Remove().(Frame), true
}

// Len returns the number of decoded frames waiting in the queue.
func (s *Stream) Len() int {
	return s.frames.Length()
}

// Buffered returns the number of bytes held for an incomplete frame.
func (s *Stream) Buffered() int {
	return len(s.buf)
}

// Err returns the decode error that stopped the Stream, if any.
func (s *Stream) Err() error {
	return s.err
}
