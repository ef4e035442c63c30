package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"versusmatch/internal/config"
	"versusmatch/internal/logger"
	"versusmatch/internal/metrics"
	"versusmatch/internal/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Error("versus-relay exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	relayMetrics := metrics.NewRelay()
	hub := relay.NewHub(relayMetrics)
	app := relay.NewApp(hub, metrics.NewRegistry(relayMetrics.Collectors()...))

	ln, err := net.Listen("tcp", cfg.Relay.ListenAddr)
	if err != nil {
		return err
	}
	return relay.Serve(ctx, app, ln)
}
