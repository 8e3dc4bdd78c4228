package wstest

import (
	"context"
	"fmt"
	"net"

	"nhooyr.io/wscodec/internal/errd"
	"nhooyr.io/wscodec/internal/test/xrand"
	"nhooyr.io/wscodec/internal/wsconn"
)

// Pipe is used to create an in memory connection
// between two websockets analogous to net.Pipe.
// The handshake runs over the pipe like it would over TCP.
// The client and server conns are returned in random order.
func Pipe(ctx context.Context, clientOpts, serverOpts *wsconn.Options) (_ *wsconn.Conn, _ *wsconn.Conn, err error) {
	defer errd.Wrap(&err, "failed to create ws pipe")

	cnc, snc := net.Pipe()

	type accepted struct {
		c   *wsconn.Conn
		err error
	}
	acceptc := make(chan accepted, 1)
	go func() {
		c, err := wsconn.Accept(ctx, snc, serverOpts)
		acceptc <- accepted{c, err}
	}()

	clientConn, err := wsconn.Client(ctx, cnc, "/", "example.com", clientOpts)
	if err != nil {
		cnc.Close()
		snc.Close()
		<-acceptc
		return nil, nil, fmt.Errorf("failed to dial over pipe: %w", err)
	}

	a := <-acceptc
	if a.err != nil {
		cnc.Close()
		snc.Close()
		return nil, nil, fmt.Errorf("failed to accept over pipe: %w", a.err)
	}

	if xrand.Bool() {
		return a.c, clientConn, nil
	}
	return clientConn, a.c, nil
}
