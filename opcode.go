package wscodec

import "strconv"

// Opcode represents a WebSocket opcode.
// See https://tools.ietf.org/html/rfc6455#section-11.8
type Opcode int

// Opcode constants.
const (
	OpContinuation Opcode = iota
	OpText
	OpBinary
	// 3 - 7 are reserved for further non-control frames.
	_
	_
	_
	_
	_
	OpClose
	OpPing
	OpPong
	// 11-16 are reserved for further control frames.
)

// Control reports whether o is a close, ping or pong opcode.
func (o Opcode) Control() bool {
	switch o {
	case OpClose, OpPing, OpPong:
		return true
	}
	return false
}

// Data reports whether o carries application data.
func (o Opcode) Data() bool {
	switch o {
	case OpText, OpBinary:
		return true
	}
	return false
}

func (o Opcode) valid() bool {
	switch o {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "CONTINUATION"
	case OpText:
		return "TEXT"
	case OpBinary:
		return "BINARY"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	}
	return "Opcode(" + strconv.Itoa(int(o)) + ")"
}
