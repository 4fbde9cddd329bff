package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"jsonrpc-peer/middleware"
	"jsonrpc-peer/registry"
	"jsonrpc-peer/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for peers and serve echo and Arith.*",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	svr := server.NewServer(server.Options{
		Peer:    cfg.Peer(&logger),
		Framing: cfg.Framing,
		Codec:   cfg.Codec,
		Service: cfg.Server.Service,
		TTL:     cfg.Server.TTL,
		Logger:  &logger,
	})
	svr.Use(middleware.LoggingMiddleware(logger))
	if cfg.RateLimit.Rate > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}
	if cfg.HandlerTimeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.HandlerTimeout))
	}
	if err := svr.Register(&Arith{}); err != nil {
		return err
	}
	svr.HandleFunc("echo", echo)
	svr.HandleNotification("log", logNotification(logger))

	var reg registry.Registry
	if len(cfg.Registry.Etcd) > 0 {
		etcd, err := registry.NewEtcdRegistry(cfg.Registry.Etcd, cfg.Registry.DialTimeout)
		if err != nil {
			return err
		}
		defer etcd.Close()
		reg = etcd
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() {
		served <- svr.Serve("tcp", cfg.Server.Listen, cfg.Server.Advertise, reg)
	}()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	if err := svr.Shutdown(5 * time.Second); err != nil {
		logger.Warn().Err(err).Msg("shutdown")
	}
	return <-served
}

