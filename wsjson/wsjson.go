// Package wsjson provides helpers for JSON values carried in text frames.
package wsjson

import (
	"github.com/goccy/go-json"
	"golang.org/x/xerrors"

	"nhooyr.io/wscodec"
	"nhooyr.io/wscodec/internal/bpool"
)

var defaultCodec = wscodec.NewCodec(nil)

// Encode encodes v as JSON into a single text frame for role.
// If c is nil, a codec backed by crypto/rand.Reader is used.
func Encode(c *wscodec.Codec, role wscodec.Role, v interface{}) ([]byte, error) {
	b, err := encode(c, role, v)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode json frame: %w", err)
	}
	return b, nil
}

func encode(c *wscodec.Codec, role wscodec.Role, v interface{}) ([]byte, error) {
	if c == nil {
		c = defaultCodec
	}

	buf := bpool.Get()
	defer bpool.Put(buf)

	err := json.NewEncoder(buf).Encode(v)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal json: %w", err)
	}

	return c.Encode(wscodec.OpText, buf.Bytes(), role)
}

// Decode decodes the JSON payload of the text frame f into v.
func Decode(f wscodec.Frame, v interface{}) error {
	if f.Opcode != wscodec.OpText {
		return xerrors.Errorf("unexpected frame type for json (expected %v): %v", wscodec.OpText, f.Opcode)
	}

	err := json.Unmarshal(f.Payload, v)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal json: %w", err)
	}
	return nil
}
