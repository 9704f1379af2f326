// Command authd runs the auth server: the registration authority and ticket
// issuer of the protocol.
//
// Usage: authd CONFIG, with CONFIG a YAML file, see internal/authserver.Config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"code.kerpass.org/ticketauth/internal/authserver"
	"code.kerpass.org/ticketauth/internal/observability"
)

func main() {
	if 2 != len(os.Args) {
		fmt.Fprintf(os.Stderr, "usage: %s CONFIG\n", os.Args[0])
		os.Exit(2)
	}

	err := run(os.Args[1])
	if nil != err {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(cfgpath string) error {
	cfg, err := authserver.LoadConfig(cfgpath)
	if nil != err {
		return err
	}

	obs := &observability.Observability{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	ctx := observability.SetObservability(context.Background(), obs)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cfg.NewStore(ctx)
	if nil != err {
		return err
	}
	svc, err := authserver.NewService(ctx, store)
	if nil != err {
		return err
	}

	return authserver.NewServer(cfg, svc).Serve(ctx)
}
