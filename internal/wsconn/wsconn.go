// Package wsconn runs the wscodec handshake and frames over a net.Conn.
// It backs the echo server, the CLI and the end to end tests; it does not
// reassemble fragmented messages or manage the close handshake.
package wsconn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"nhooyr.io/wscodec"
	"nhooyr.io/wscodec/internal/errd"
)

// Options configures a Conn. The zero value is usable.
type Options struct {
	// Logger receives debug logs about the connection.
	// Defaults to zap.NewNop().
	Logger *zap.Logger

	// Codec encodes outgoing frames.
	// Defaults to wscodec.NewCodec(nil).
	Codec *wscodec.Codec

	// Rand supplies handshake nonces.
	// Defaults to crypto/rand.Reader.
	Rand io.Reader

	// ReadBufferSize is the size of the buffer used for each read
	// from the network. Defaults to 32 KiB.
	ReadBufferSize int

	// ReadLimit is the max payload length of a frame read from the peer.
	// Defaults to wscodec.DefaultReadLimit. Negative disables the limit.
	ReadLimit int64
}

func (opts *Options) ensure() *Options {
	o := &Options{}
	if opts != nil {
		*o = *opts
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Codec == nil {
		o.Codec = wscodec.NewCodec(nil)
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 32 << 10
	}
	if o.ReadLimit == 0 {
		o.ReadLimit = wscodec.DefaultReadLimit
	}
	return o
}

// Conn is a WebSocket connection over a net.Conn.
// ReadFrame must only be called from one goroutine at a time;
// writes may be concurrent.
type Conn struct {
	nc    net.Conn
	role  wscodec.Role
	codec *wscodec.Codec
	log   *zap.Logger

	stream  *wscodec.Stream
	readBuf []byte

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newConn(nc net.Conn, role wscodec.Role, opts *Options) *Conn {
	stream := wscodec.NewStream()
	stream.SetReadLimit(opts.ReadLimit)

	return &Conn{
		nc:      nc,
		role:    role,
		codec:   opts.Codec,
		log:     opts.Logger.With(zap.Stringer("role", role), zap.Stringer("remote", nc.RemoteAddr())),
		stream:  stream,
		readBuf: make([]byte, opts.ReadBufferSize),
	}
}

// Dial connects to addr over TCP and performs the client handshake
// for target. addr is also sent as the Host header.
func Dial(ctx context.Context, addr, target string, opts *Options) (_ *Conn, err error) {
	defer errd.Wrap(&err, "failed to dial %v", addr)

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c, err := Client(ctx, nc, target, addr, opts)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// Client performs the client handshake for target on host over nc.
// nc is not closed on failure.
func Client(ctx context.Context, nc net.Conn, target, host string, opts *Options) (_ *Conn, err error) {
	defer errd.Wrap(&err, "failed to perform client handshake")

	opts = opts.ensure()

	stop := deadlineFromContext(ctx, nc.SetDeadline)
	defer stop()

	hs, err := wscodec.NewHandshake(opts.Rand, target, host)
	if err != nil {
		return nil, err
	}

	_, err = nc.Write(hs.Request())
	if err != nil {
		return nil, fmt.Errorf("failed to write handshake request: %w", err)
	}

	br := bufio.NewReader(nc)
	_, err = hs.ReadResponse(br)
	if err != nil {
		return nil, err
	}

	c := newConn(nc, wscodec.Client, opts)
	err = c.takeBuffered(br)
	if err != nil {
		return nil, err
	}

	c.log.Debug("completed handshake", zap.String("target", target))
	return c, nil
}

// Accept performs the server handshake on an accepted net.Conn.
// On failure a 400 response is attempted and nc is left open for the
// caller to close.
func Accept(ctx context.Context, nc net.Conn, opts *Options) (_ *Conn, err error) {
	defer errd.Wrap(&err, "failed to accept websocket from %v", nc.RemoteAddr())

	opts = opts.ensure()

	stop := deadlineFromContext(ctx, nc.SetDeadline)
	defer stop()

	br := bufio.NewReader(nc)
	r, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read handshake request: %w", err)
	}

	key, err := wscodec.VerifyRequest(r)
	if err != nil {
		resp := "HTTP/1.1 400 Bad Request\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"
		_, werr := nc.Write([]byte(resp))
		return nil, multierr.Append(err, werr)
	}

	_, err = nc.Write(wscodec.BuildResponse(key))
	if err != nil {
		return nil, fmt.Errorf("failed to write handshake response: %w", err)
	}

	c := newConn(nc, wscodec.Server, opts)
	err = c.takeBuffered(br)
	if err != nil {
		return nil, err
	}

	c.log.Debug("accepted websocket", zap.String("target", r.RequestURI))
	return c, nil
}

// takeBuffered moves bytes that br read past the handshake into the stream.
func (c *Conn) takeBuffered(br *bufio.Reader) error {
	n := br.Buffered()
	if n == 0 {
		return nil
	}
	b, _ := br.Peek(n)
	_, err := c.stream.Write(b)
	return err
}

// ReadFrame returns the next frame from the peer.
// Frames over the read limit fail with wscodec.ErrMessageTooBig and
// fragmented or oversized control frames with
// wscodec.ErrInvalidControlFrame.
func (c *Conn) ReadFrame(ctx context.Context) (wscodec.Frame, error) {
	stop := deadlineFromContext(ctx, c.nc.SetReadDeadline)
	defer stop()

	for {
		f, ok := c.stream.Next()
		if ok {
			err := f.CheckControl()
			if err != nil {
				return wscodec.Frame{}, fmt.Errorf("failed to read frame: %w", err)
			}
			c.log.Debug("read frame", zap.Stringer("opcode", f.Opcode), zap.Int("len", f.PayloadLength()))
			return f, nil
		}

		n, err := c.nc.Read(c.readBuf)
		if n > 0 {
			_, werr := c.stream.Write(c.readBuf[:n])
			if werr != nil {
				return wscodec.Frame{}, fmt.Errorf("failed to decode frame: %w", werr)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return wscodec.Frame{}, ctx.Err()
			}
			return wscodec.Frame{}, fmt.Errorf("failed to read frame: %w", err)
		}
	}
}

// WriteFrame encodes p as a single final frame and writes it.
func (c *Conn) WriteFrame(ctx context.Context, op wscodec.Opcode, p []byte) error {
	b, err := c.codec.Encode(op, p, c.role)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	stop := deadlineFromContext(ctx, c.nc.SetWriteDeadline)
	defer stop()

	_, err = c.nc.Write(b)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to write %v frame: %w", op, err)
	}
	c.log.Debug("wrote frame", zap.Stringer("opcode", op), zap.Int("len", len(p)))
	return nil
}

// WriteClose writes a close frame with code and reason.
// It does not wait for the peer's close frame.
func (c *Conn) WriteClose(ctx context.Context, code wscodec.StatusCode, reason string) error {
	p, err := wscodec.ClosePayload(code, reason)
	if err != nil {
		return err
	}
	return c.WriteFrame(ctx, wscodec.OpClose, p)
}

// Close writes a close frame with code and reason and closes the
// underlying connection. Only the first call has an effect.
func (c *Conn) Close(code wscodec.StatusCode, reason string) error {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		werr := c.WriteClose(ctx, code, reason)
		c.closeErr = multierr.Combine(werr, c.nc.Close())
		c.log.Debug("closed connection", zap.Stringer("code", code), zap.Error(c.closeErr))
	})
	return c.closeErr
}

// CloseNow closes the underlying connection without a close frame.
func (c *Conn) CloseNow() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// deadlineFromContext applies ctx's deadline with set and interrupts
// blocked I/O when ctx is cancelled. The returned func clears both and
// does not return before a running cancellation callback has finished.
func deadlineFromContext(ctx context.Context, set func(time.Time) error) func() {
	if d, ok := ctx.Deadline(); ok {
		set(d)
	}
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(done)
		set(time.Now())
	})
	return func() {
		if !stop() {
			<-done
		}
		set(time.Time{})
	}
}
