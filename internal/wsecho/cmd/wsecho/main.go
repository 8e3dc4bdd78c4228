package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nhooyr.io/wscodec/internal/wsecho"
)

func main() {
	addr := pflag.StringP("addr", "a", "localhost:0", "address to listen on")
	limit := pflag.Float64("rate", 0, "frames read per second per connection, 0 for unlimited")
	verbose := pflag.BoolP("verbose", "v", false, "log every frame")
	pflag.Parse()

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	l, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal("failed to listen", zap.Error(err))
	}
	fmt.Printf("ws://%v\n", l.Addr())

	opts := &wsecho.Options{Logger: log}
	if *limit > 0 {
		opts.Limit = rate.Limit(*limit)
	}
	err = wsecho.Serve(ctx, l, opts)
	if err != nil {
		log.Fatal("failed to serve", zap.Error(err))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
