package wscodec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
	"unicode/utf8"

	"nhooyr.io/wscodec/internal/errd"
)

/*
  0                   1                   2                   3
  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
 +-+-+-+-+-------+-+-------------+-------------------------------+
 |F|R|R|R| opcode|M| Payload len |    Extended payload length    |
 |I|S|S|S|  (4)  |A|     (7)     |             (16/64)           |
 |N|V|V|V|       |S|             |   (if payload len==126/127)   |
 | |1|2|3|       |K|             |                               |
 +-+-+-+-+-------+-+-------------+ - - - - - - - - - - - - - - - +
 |     Extended payload length continued, if payload len == 127  |
 + - - - - - - - - - - - - - - - +-------------------------------+
 |                               |Masking-key, if MASK set to 1  |
 +-------------------------------+-------------------------------+
 | Masking-key (continued)       |          Payload Data         |
 +-------------------------------- - - - - - - - - - - - - - - - +
 :                     Payload Data continued ...                :
 + - - - - - - - - - - - - - - - - - - - - - - - - - - - - - - - +
*/

// Role is the side of the connection a frame is encoded for.
// Clients must mask every frame and servers must never mask.
type Role int

const (
	Client Role = iota
	Server
)

func (r Role) String() string {
	switch r {
	case Client:
		return "client"
	case Server:
		return "server"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Frame is a single decoded WebSocket frame.
// Payload is always unmasked and never aliases the decoded input.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// PayloadLength returns the logical length of the payload, independent
// of the width used to encode it on the wire.
func (f Frame) PayloadLength() int {
	return len(f.Payload)
}

// CheckControl returns an error matching ErrInvalidControlFrame if f is a
// control frame that is fragmented or longer than 125 bytes.
// See https://tools.ietf.org/html/rfc6455#section-5.5
func (f Frame) CheckControl() error {
	if !f.Opcode.Control() {
		return nil
	}
	if !f.Fin {
		return fmt.Errorf("%w: %v frame cannot be fragmented", ErrInvalidControlFrame, f.Opcode)
	}
	if len(f.Payload) > maxControlPayload {
		return fmt.Errorf("%w: %v frame payload of %d bytes exceeds %d", ErrInvalidControlFrame, f.Opcode, len(f.Payload), maxControlPayload)
	}
	return nil
}

// First byte contains fin and the opcode.
// Second byte contains mask flag and payload len.
// Next 8 bytes are the maximum extended payload length.
// Last 4 bytes are the mask key.
// https://tools.ietf.org/html/rfc6455#section-5.2
const maxHeaderSize = 1 + 1 + 8 + 4

// header represents a WebSocket frame header.
type header struct {
	fin    bool
	opcode Opcode

	payloadLength uint64

	masked  bool
	maskKey [4]byte
}

func headerSize(payloadLength uint64, masked bool) int {
	n := 2
	switch {
	case payloadLength > math.MaxUint16:
		n += 8
	case payloadLength > 125:
		n += 2
	}
	if masked {
		n += 4
	}
	return n
}

// appendTo appends the wire bytes of h to b.
func (h header) appendTo(b []byte) []byte {
	var b0 byte
	if h.fin {
		b0 |= 1 << 7
	}
	b0 |= byte(h.opcode) & 0xf

	var b1 byte
	if h.masked {
		b1 |= 1 << 7
	}

	switch {
	case h.payloadLength > math.MaxUint16:
		b = append(b, b0, b1|127)
		b = binary.BigEndian.AppendUint64(b, h.payloadLength)
	case h.payloadLength > 125:
		b = append(b, b0, b1|126)
		b = binary.BigEndian.AppendUint16(b, uint16(h.payloadLength))
	default:
		b = append(b, b0, b1|byte(h.payloadLength))
	}

	if h.masked {
		b = append(b, h.maskKey[:]...)
	}
	return b
}

// readHeader parses the header at the start of b and returns it with
// the number of bytes it occupies.
func readHeader(b []byte) (header, int, error) {
	if len(b) < 2 {
		return header{}, 0, fmt.Errorf("%w: need at least 2 header bytes but got %d", ErrTruncated, len(b))
	}

	var h header
	h.fin = b[0]&(1<<7) != 0
	h.opcode = Opcode(b[0] & 0xf)
	if !h.opcode.valid() {
		return header{}, 0, &UnknownOpcodeError{Opcode: h.opcode}
	}

	h.masked = b[1]&(1<<7) != 0

	n := 2
	payloadLength := b[1] &^ (1 << 7)
	switch {
	case payloadLength <= 125:
		h.payloadLength = uint64(payloadLength)
	case payloadLength == 126:
		if len(b) < n+2 {
			return header{}, 0, fmt.Errorf("%w: need 4 header bytes for 16 bit length but got %d", ErrTruncated, len(b))
		}
		h.payloadLength = uint64(binary.BigEndian.Uint16(b[n:]))
		n += 2
	default:
		if len(b) < n+8 {
			return header{}, 0, fmt.Errorf("%w: need 10 header bytes for 64 bit length but got %d", ErrTruncated, len(b))
		}
		h.payloadLength = binary.BigEndian.Uint64(b[n:])
		n += 8
	}

	if h.masked {
		if len(b) < n+4 {
			return header{}, 0, fmt.Errorf("%w: need %d header bytes for mask key but got %d", ErrTruncated, n+4, len(b))
		}
		copy(h.maskKey[:], b[n:n+4])
		n += 4
	}

	return h, n, nil
}

// CodecOptions represents the options available to NewCodec.
type CodecOptions struct {
	// Rand supplies mask keys for client frames.
	// It must be safe for concurrent use if the Codec is shared.
	//
	// Defaults to crypto/rand.Reader.
	Rand io.Reader
}

// Codec encodes frames. It holds no mutable state and may be used
// from multiple goroutines as long as its random source allows it.
type Codec struct {
	rand io.Reader
}

// NewCodec returns a Codec configured by opts. opts may be nil.
func NewCodec(opts *CodecOptions) *Codec {
	c := &Codec{rand: defaultRand}
	if opts != nil && opts.Rand != nil {
		c.rand = opts.Rand
	}
	return c
}

var defaultCodec = NewCodec(nil)

// Encode encodes payload into a single final frame using a codec
// backed by crypto/rand.Reader.
func Encode(op Opcode, payload []byte, role Role) ([]byte, error) {
	return defaultCodec.Encode(op, payload, role)
}

// Encode encodes payload into a single final frame for role.
// Client frames are masked with a fresh key from the codec's random source.
// payload is never modified.
func (c *Codec) Encode(op Opcode, payload []byte, role Role) ([]byte, error) {
	return c.AppendEncode(nil, op, payload, role)
}

// AppendEncode is like Encode but appends the frame to dst.
// On error dst is returned unchanged.
func (c *Codec) AppendEncode(dst []byte, op Opcode, payload []byte, role Role) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to encode %v frame", op)

	if !op.valid() {
		return dst, &UnknownOpcodeError{Opcode: op}
	}

	h := header{
		fin:           true,
		opcode:        op,
		payloadLength: uint64(len(payload)),
		masked:        role == Client,
	}
	if h.masked {
		err = readRandom(c.rand, h.maskKey[:])
		if err != nil {
			return dst, err
		}
	}

	dst = slices.Grow(dst, headerSize(h.payloadLength, h.masked)+len(payload))
	dst = h.appendTo(dst)

	start := len(dst)
	dst = append(dst, payload...)
	if h.masked {
		maskBytes(h.maskKey, dst[start:])
	}
	return dst, nil
}

// Decode decodes the frame at the start of b. It returns the frame and the
// number of bytes of b that belong to it; the caller advances its read
// cursor by that amount.
//
// b is never modified and may be reused as soon as Decode returns.
// If b does not yet hold the whole frame, the error matches ErrTruncated.
func Decode(b []byte) (_ Frame, _ int, err error) {
	defer errd.Wrap(&err, "failed to decode frame")

	h, n, err := readHeader(b)
	if err != nil {
		return Frame{}, 0, err
	}

	if uint64(len(b)-n) < h.payloadLength {
		return Frame{}, 0, fmt.Errorf("%w: %v frame declares %d payload bytes but only %d are available",
			ErrTruncated, h.opcode, h.payloadLength, len(b)-n)
	}
	end := n + int(h.payloadLength)

	f := Frame{
		Fin:     h.fin,
		Opcode:  h.opcode,
		Masked:  h.masked,
		MaskKey: h.maskKey,
		Payload: make([]byte, h.payloadLength),
	}
	copy(f.Payload, b[n:end])
	if f.Masked {
		maskBytes(f.MaskKey, f.Payload)
	}

	switch f.Opcode {
	case OpContinuation:
		return f, end, nil
	case OpText:
		if !utf8.Valid(f.Payload) {
			return Frame{}, 0, ErrInvalidUTF8
		}
		return f, end, nil
	case OpBinary:
		return f, end, nil
	case OpClose, OpPing, OpPong:
		return f, end, nil
	default:
		return Frame{}, 0, &UnknownOpcodeError{Opcode: f.Opcode}
	}
}
