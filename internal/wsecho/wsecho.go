// Package wsecho is a WebSocket echo server built on wsconn.
package wsecho

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nhooyr.io/wscodec"
	"nhooyr.io/wscodec/internal/wsconn"
)

// Options configures Serve.
type Options struct {
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger

	// Limit and Burst bound the frames read per second on each
	// connection. Every connection gets its own rate.Limiter.
	// Limit defaults to rate.Inf.
	Limit rate.Limit
	Burst int

	// HandshakeTimeout defaults to 10s.
	HandshakeTimeout time.Duration

	// ReadLimit is passed to wsconn.Options.
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
	if o.Limit == 0 {
		o.Limit = rate.Inf
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = time.Second * 10
	}
	return o
}

// Serve accepts connections from l and echos each of them with Loop
// until ctx is cancelled or l fails. It closes l and waits for every
// connection to finish before returning.
func Serve(ctx context.Context, l net.Listener, opts *Options) error {
	opts = opts.ensure()
	log := opts.Logger

	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	log.Info("serving", zap.Stringer("addr", l.Addr()))
	for {
		nc, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, nc, opts)
		}()
	}
}

func serveConn(ctx context.Context, nc net.Conn, opts *Options) {
	log := opts.Logger.With(zap.Stringer("remote", nc.RemoteAddr()))

	hctx, cancel := context.WithTimeout(ctx, opts.HandshakeTimeout)
	c, err := wsconn.Accept(hctx, nc, &wsconn.Options{
		Logger:    opts.Logger,
		ReadLimit: opts.ReadLimit,
	})
	cancel()
	if err != nil {
		log.Debug("handshake failed", zap.Error(err))
		nc.Close()
		return
	}
	defer c.CloseNow()

	err = Loop(ctx, c, rate.NewLimiter(opts.Limit, opts.Burst))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("echo loop failed", zap.Error(err))
	}
}

// Loop echos every data frame received from c until an error occurs,
// the peer sends a close frame or the context expires.
// Pings are answered with pongs and the peer's close frame is echoed.
// Fragmented messages are refused with StatusUnsupportedData, frames
// over the read limit with StatusMessageTooBig and invalid control
// frames with StatusProtocolError.
// If l is not nil, reads wait on it.
func Loop(ctx context.Context, c *wsconn.Conn, l *rate.Limiter) error {
	for {
		if l != nil {
			err := l.Wait(ctx)
			if err != nil {
				return err
			}
		}

		f, err := c.ReadFrame(ctx)
		if err != nil {
			switch {
			case errors.Is(err, wscodec.ErrInvalidUTF8):
				c.Close(wscodec.StatusInvalidFramePayloadData, "")
			case errors.Is(err, wscodec.ErrUnknownOpcode), errors.Is(err, wscodec.ErrInvalidControlFrame):
				c.Close(wscodec.StatusProtocolError, "")
			case errors.Is(err, wscodec.ErrMessageTooBig):
				c.Close(wscodec.StatusMessageTooBig, "")
			}
			return err
		}

		switch f.Opcode {
		case wscodec.OpPing:
			err = c.WriteFrame(ctx, wscodec.OpPong, f.Payload)
		case wscodec.OpPong:
		case wscodec.OpClose:
			return echoClose(c, f)
		default:
			if !f.Fin || f.Opcode == wscodec.OpContinuation {
				err = c.Close(wscodec.StatusUnsupportedData, "fragmented messages are not supported")
				if err != nil {
					return err
				}
				return errors.New("received fragmented message")
			}
			err = c.WriteFrame(ctx, f.Opcode, f.Payload)
		}
		if err != nil {
			return err
		}
	}
}

func echoClose(c *wsconn.Conn, f wscodec.Frame) error {
	ce, err := f.CloseError()
	if err != nil {
		c.Close(wscodec.StatusProtocolError, "")
		return err
	}

	code := ce.Code
	if code == wscodec.StatusNoStatusRcvd {
		code = wscodec.StatusNormalClosure
	}
	return c.Close(code, ce.Reason)
}
