// Command wscat sends each line of stdin as a text frame to a WebSocket
// server and prints the frames it receives.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nhooyr.io/wscodec"
	"nhooyr.io/wscodec/internal/wsconn"
	"nhooyr.io/wscodec/internal/xsync"
)

type config struct {
	addr    string
	target  string
	rate    float64
	verbose bool
}

func main() {
	var cfg config
	pflag.StringVarP(&cfg.addr, "addr", "a", "localhost:8080", "host:port of the server")
	pflag.StringVarP(&cfg.target, "target", "t", "/", "request target of the handshake")
	pflag.Float64VarP(&cfg.rate, "rate", "r", 10, "max frames sent per second, 0 for unlimited")
	pflag.BoolVarP(&cfg.verbose, "verbose", "v", false, "log every frame")
	pflag.Parse()

	log, err := newLogger(cfg.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err = run(ctx, log, cfg, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatal("wscat failed", zap.Error(err))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if !verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zcfg.Build()
}

// run dials cfg.addr, writes every line of in as a text frame and
// prints received frames to out. When in is exhausted it sends a close
// frame and waits for the server's. If the server closes first, run
// returns without waiting for in.
func run(ctx context.Context, log *zap.Logger, cfg config, in io.Reader, out io.Writer) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := wsconn.Dial(ctx, cfg.addr, cfg.target, &wsconn.Options{Logger: log})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, c.CloseNow())
	}()

	readErr := xsync.Go(func() error {
		return readLoop(ctx, c, out)
	})

	lines := make(chan []byte)
	scanErr := xsync.Go(func() error {
		defer close(lines)
		return scanLines(ctx, in, lines)
	})

	limit := rate.Inf
	if cfg.rate > 0 {
		limit = rate.Limit(cfg.rate)
	}
	l := rate.NewLimiter(limit, 1)

	for {
		select {
		case err = <-readErr:
			log.Debug("server closed the connection first")
			return err
		case line, ok := <-lines:
			if !ok {
				return closeOnEOF(ctx, c, scanErr, readErr)
			}

			err = l.Wait(ctx)
			if err != nil {
				return err
			}
			err = c.WriteFrame(ctx, wscodec.OpText, line)
			if err != nil {
				return err
			}
		}
	}
}

// closeOnEOF sends a close frame once the input is exhausted and waits
// for the server's close frame.
func closeOnEOF(ctx context.Context, c *wsconn.Conn, scanErr, readErr <-chan error) error {
	err := <-scanErr
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	err = c.WriteClose(ctx, wscodec.StatusNormalClosure, "")
	if err != nil {
		return err
	}

	select {
	case err = <-readErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// scanLines sends every line of in on lines until in is exhausted or
// ctx is done. A Read blocked on in is not interrupted by ctx.
func scanLines(ctx context.Context, in io.Reader, lines chan<- []byte) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		select {
		case lines <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

// readLoop prints frames until the server closes the connection.
func readLoop(ctx context.Context, c *wsconn.Conn, out io.Writer) error {
	for {
		f, err := c.ReadFrame(ctx)
		if err != nil {
			return err
		}

		switch f.Opcode {
		case wscodec.OpText:
			_, err = fmt.Fprintf(out, "%s\n", f.Payload)
		case wscodec.OpBinary, wscodec.OpContinuation:
			_, err = fmt.Fprintf(out, "%v (%d bytes):\n%s", f.Opcode, len(f.Payload), hex.Dump(f.Payload))
		case wscodec.OpPing:
			err = c.WriteFrame(ctx, wscodec.OpPong, f.Payload)
		case wscodec.OpPong:
		case wscodec.OpClose:
			ce, err := f.CloseError()
			if err != nil {
				return err
			}
			if ce.Code != wscodec.StatusNormalClosure && ce.Code != wscodec.StatusNoStatusRcvd {
				return ce
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}
