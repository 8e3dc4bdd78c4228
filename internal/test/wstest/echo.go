package wstest

import (
	"bytes"
	"context"
	"fmt"

	"nhooyr.io/wscodec"
	"nhooyr.io/wscodec/internal/test/xrand"
	"nhooyr.io/wscodec/internal/wsconn"
	"nhooyr.io/wscodec/internal/xsync"
)

// Echo writes a frame and ensures the same is sent back on c.
func Echo(ctx context.Context, c *wsconn.Conn, max int) error {
	expOp := wscodec.OpBinary
	if xrand.Bool() {
		expOp = wscodec.OpText
	}

	msg := randPayload(expOp, xrand.Int(max))

	writeErr := xsync.Go(func() error {
		return c.WriteFrame(ctx, expOp, msg)
	})

	f, err := c.ReadFrame(ctx)
	if err != nil {
		return err
	}

	err = <-writeErr
	if err != nil {
		return err
	}

	if expOp != f.Opcode {
		return fmt.Errorf("unexpected frame opcode (%v): %v", expOp, f.Opcode)
	}

	if !bytes.Equal(msg, f.Payload) {
		return fmt.Errorf("unexpected payload read: %#v", f.Payload)
	}

	return nil
}

func randPayload(op wscodec.Opcode, n int) []byte {
	if op == wscodec.OpBinary {
		return xrand.Bytes(n)
	}
	return []byte(xrand.String(n))
}
