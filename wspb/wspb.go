// Package wspb provides helpers for protobuf messages carried in binary frames.
package wspb

import (
	"github.com/golang/protobuf/proto"
	"golang.org/x/xerrors"

	"nhooyr.io/wscodec"
)

var defaultCodec = wscodec.NewCodec(nil)

// Encode marshals m into a single binary frame for role.
// If c is nil, a codec backed by crypto/rand.Reader is used.
func Encode(c *wscodec.Codec, role wscodec.Role, m proto.Message) ([]byte, error) {
	if c == nil {
		c = defaultCodec
	}

	b, err := proto.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal protobuf: %w", err)
	}

	f, err := c.Encode(wscodec.OpBinary, b, role)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode protobuf frame: %w", err)
	}
	return f, nil
}

// Decode unmarshals the payload of the binary frame f into m.
func Decode(f wscodec.Frame, m proto.Message) error {
	if f.Opcode != wscodec.OpBinary {
		return xerrors.Errorf("unexpected frame type for protobuf (expected %v): %v", wscodec.OpBinary, f.Opcode)
	}

	err := proto.Unmarshal(f.Payload, m)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return nil
}
