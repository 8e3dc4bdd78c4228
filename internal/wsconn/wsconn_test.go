package wsconn_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"nhooyr.io/wscodec"
	"nhooyr.io/wscodec/internal/test/assert"
	"nhooyr.io/wscodec/internal/test/xrand"
	"nhooyr.io/wscodec/internal/wsconn"
)

func listen(t *testing.T) net.Listener {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Success(t, err)
	t.Cleanup(func() {
		l.Close()
	})
	return l
}

func TestConn(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	l := listen(t)

	type accepted struct {
		c   *wsconn.Conn
		err error
	}
	acceptc := make(chan accepted, 1)
	go func() {
		nc, err := l.Accept()
		if err != nil {
			acceptc <- accepted{err: err}
			return
		}
		c, err := wsconn.Accept(ctx, nc, &wsconn.Options{
			Logger:    zaptest.NewLogger(t),
			ReadLimit: 1 << 16,
		})
		acceptc <- accepted{c, err}
	}()

	cc, err := wsconn.Dial(ctx, l.Addr().String(), "/", &wsconn.Options{Logger: zaptest.NewLogger(t)})
	assert.Success(t, err)
	defer cc.CloseNow()

	a := <-acceptc
	assert.Success(t, a.err)
	sc := a.c
	defer sc.CloseNow()

	msg := xrand.String(xrand.Int(1 << 16))
	err = cc.WriteFrame(ctx, wscodec.OpText, []byte(msg))
	assert.Success(t, err)

	f, err := sc.ReadFrame(ctx)
	assert.Success(t, err)
	assert.Equal(t, "opcode", wscodec.OpText, f.Opcode)
	assert.Equal(t, "masked", true, f.Masked)
	assert.Equal(t, "payload", msg, string(f.Payload))

	p := xrand.Bytes(xrand.Int(512))
	err = sc.WriteFrame(ctx, wscodec.OpBinary, p)
	assert.Success(t, err)

	f, err = cc.ReadFrame(ctx)
	assert.Success(t, err)
	assert.Equal(t, "opcode", wscodec.OpBinary, f.Opcode)
	assert.Equal(t, "masked", false, f.Masked)
	assert.Equal(t, "payload", p, f.Payload)

	err = cc.Close(wscodec.StatusGoingAway, "bye")
	assert.Success(t, err)

	f, err = sc.ReadFrame(ctx)
	assert.Success(t, err)
	ce, err := f.CloseError()
	assert.Success(t, err)
	assert.Equal(t, "close", wscodec.CloseError{Code: wscodec.StatusGoingAway, Reason: "bye"}, ce)

	_, err = sc.ReadFrame(ctx)
	assert.Error(t, err)
}

func TestAcceptBadRequest(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	l := listen(t)

	errc := make(chan error, 1)
	go func() {
		nc, err := l.Accept()
		if err != nil {
			errc <- err
			return
		}
		defer nc.Close()
		_, err = wsconn.Accept(ctx, nc, nil)
		errc <- err
	}()

	nc, err := net.Dial("tcp", l.Addr().String())
	assert.Success(t, err)
	defer nc.Close()

	_, err = nc.Write([]byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	assert.Success(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(nc), nil)
	assert.Success(t, err)
	assert.Equal(t, "status", http.StatusBadRequest, resp.StatusCode)

	assert.ErrorIs(t, wscodec.ErrHandshake, <-errc)
}

func TestDialBufferedFrame(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	l := listen(t)

	go func() {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		defer nc.Close()

		r, err := http.ReadRequest(bufio.NewReader(nc))
		if err != nil {
			return
		}
		b := wscodec.BuildResponse(r.Header.Get("Sec-WebSocket-Key"))
		f, err := wscodec.Encode(wscodec.OpText, []byte("early"), wscodec.Server)
		if err != nil {
			return
		}
		// Response and frame in a single write so both land in the
		// handshake's read buffer.
		nc.Write(append(b, f...))

		<-ctx.Done()
	}()

	c, err := wsconn.Dial(ctx, l.Addr().String(), "/", nil)
	assert.Success(t, err)
	defer c.CloseNow()

	f, err := c.ReadFrame(ctx)
	assert.Success(t, err)
	assert.Equal(t, "payload", "early", string(f.Payload))
}

func TestDialRejected(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	l := listen(t)

	go func() {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		defer nc.Close()

		_, err = http.ReadRequest(bufio.NewReader(nc))
		if err != nil {
			return
		}
		nc.Write([]byte("HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n"))
	}()

	_, err := wsconn.Dial(ctx, l.Addr().String(), "/", nil)
	assert.ErrorIs(t, wscodec.ErrHandshake, err)
	assert.Contains(t, err, "403")
}

func TestReadFrameCancel(t *testing.T) {
	t.Parallel()

	l := listen(t)

	go func() {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		c, err := wsconn.Accept(context.Background(), nc, nil)
		if err != nil {
			nc.Close()
			return
		}
		// Hold the connection open without writing.
		c.ReadFrame(context.Background())
		c.CloseNow()
	}()

	c, err := wsconn.Dial(context.Background(), l.Addr().String(), "/", nil)
	assert.Success(t, err)
	defer c.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()

	_, err = c.ReadFrame(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected %v but got %+v", context.DeadlineExceeded, err)
	}
}

func TestReadFrameDecodeError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	l := listen(t)

	go func() {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		defer nc.Close()

		c, err := wsconn.Accept(ctx, nc, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		// Opcode 0x3 is reserved.
		nc.Write([]byte{0x83, 0x00})
		<-ctx.Done()
	}()

	c, err := wsconn.Dial(ctx, l.Addr().String(), "/", nil)
	assert.Success(t, err)
	defer c.CloseNow()

	_, err = c.ReadFrame(ctx)
	assert.ErrorIs(t, wscodec.ErrUnknownOpcode, err)
	if !strings.Contains(err.Error(), "0x3") {
		t.Fatalf("expected opcode in error: %v", err)
	}
}

// rawServer accepts one connection on l, completes the handshake and
// writes b on the raw net.Conn.
func rawServer(ctx context.Context, l net.Listener, b []byte) {
	nc, err := l.Accept()
	if err != nil {
		return
	}
	defer nc.Close()

	c, err := wsconn.Accept(ctx, nc, nil)
	if err != nil {
		return
	}
	defer c.CloseNow()

	nc.Write(b)
	<-ctx.Done()
}

func TestReadFrameLimit(t *testing.T) {
	t.Parallel()

	t.Run("declaredLength", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		l := listen(t)
		// Binary frame declaring a 1 TiB payload.
		go rawServer(ctx, l, []byte{0x82, 127, 0, 0, 1, 0, 0, 0, 0, 0})

		c, err := wsconn.Dial(ctx, l.Addr().String(), "/", nil)
		assert.Success(t, err)
		defer c.CloseNow()

		_, err = c.ReadFrame(ctx)
		assert.ErrorIs(t, wscodec.ErrMessageTooBig, err)
	})

	t.Run("option", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		l := listen(t)
		b, err := wscodec.Encode(wscodec.OpBinary, make([]byte, 17), wscodec.Server)
		assert.Success(t, err)
		go rawServer(ctx, l, b)

		c, err := wsconn.Dial(ctx, l.Addr().String(), "/", &wsconn.Options{ReadLimit: 16})
		assert.Success(t, err)
		defer c.CloseNow()

		_, err = c.ReadFrame(ctx)
		assert.ErrorIs(t, wscodec.ErrMessageTooBig, err)
	})
}

func TestReadFrameInvalidControl(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	l := listen(t)
	// Ping with FIN cleared and a 200 byte payload.
	go rawServer(ctx, l, append([]byte{0x09, 126, 0, 200}, make([]byte, 200)...))

	c, err := wsconn.Dial(ctx, l.Addr().String(), "/", nil)
	assert.Success(t, err)
	defer c.CloseNow()

	_, err = c.ReadFrame(ctx)
	assert.ErrorIs(t, wscodec.ErrInvalidControlFrame, err)
}
