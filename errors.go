package wscodec

import (
	"errors"
	"fmt"
)

var (
	// ErrRandomSourceExhausted is returned when the random source fails to
	// supply the bytes for a nonce or a mask key. It is not retried.
	ErrRandomSourceExhausted = errors.New("wscodec: random source exhausted")

	// ErrTruncated is returned by Decode when the input is shorter than the
	// frame it declares. Callers should wait for more bytes and decode again.
	ErrTruncated = errors.New("wscodec: truncated frame")

	// ErrUnknownOpcode matches every *UnknownOpcodeError with errors.Is.
	ErrUnknownOpcode = errors.New("wscodec: unknown opcode")

	// ErrInvalidUTF8 is returned when a text frame's payload is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("wscodec: invalid UTF-8 in text frame")

	// ErrMalformedAccept is returned when the peer's Sec-WebSocket-Accept
	// is not valid base64.
	ErrMalformedAccept = errors.New("wscodec: malformed Sec-WebSocket-Accept")

	// ErrAcceptMismatch is returned when the peer's Sec-WebSocket-Accept
	// does not match the value computed from the nonce.
	ErrAcceptMismatch = errors.New("wscodec: Sec-WebSocket-Accept mismatch")

	// ErrHandshake wraps every other handshake violation such as a bad
	// status code or missing upgrade headers.
	ErrHandshake = errors.New("wscodec: handshake failed")

	// ErrInvalidClosePayload is returned for close payloads that cannot be
	// parsed or sent.
	ErrInvalidClosePayload = errors.New("wscodec: invalid close payload")

	// ErrMessageTooBig is returned by a Stream when a frame declares a
	// payload larger than its read limit.
	ErrMessageTooBig = errors.New("wscodec: frame exceeds read limit")

	// ErrInvalidControlFrame is returned by Frame.CheckControl for control
	// frames that are fragmented or carry more than 125 payload bytes.
	ErrInvalidControlFrame = errors.New("wscodec: invalid control frame")
)

// UnknownOpcodeError reports an opcode outside of the six defined by RFC 6455.
type UnknownOpcodeError struct {
	Opcode Opcode
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("wscodec: unknown opcode %#x", int(e.Opcode))
}

// Is reports whether target is ErrUnknownOpcode.
func (e *UnknownOpcodeError) Is(target error) bool {
	return target == ErrUnknownOpcode
}
