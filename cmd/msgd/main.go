// Command msgd runs a message server. On first start it registers itself with
// the auth server and persists the assigned id & generated key back into its
// identity file.
//
// Usage: msgd IDENTITYFILE, see internal/msgserver.Config for the line format.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"code.kerpass.org/ticketauth/internal/msgserver"
	"code.kerpass.org/ticketauth/internal/observability"
)

func main() {
	if 2 != len(os.Args) {
		fmt.Fprintf(os.Stderr, "usage: %s IDENTITYFILE\n", os.Args[0])
		os.Exit(2)
	}

	err := run(os.Args[1])
	if nil != err {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(cfgpath string) error {
	cfg, err := msgserver.LoadConfig(cfgpath)
	if nil != err {
		return err
	}

	obs := &observability.Observability{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	ctx := observability.SetObservability(context.Background(), obs)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = msgserver.Bootstrap(ctx, &cfg)
	if nil != err {
		return err
	}

	srv, err := msgserver.NewServer(cfg)
	if nil != err {
		return err
	}
	return srv.Serve(ctx)
}
