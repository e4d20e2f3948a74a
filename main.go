package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
)

func main() {
	// stdout belongs to the plugin protocol; all logging goes to stderr.
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	ll := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	ctx := ll.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
