// Command server runs the order server.
//
//	server [-config path] [port]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"order-shop/admin"
	"order-shop/config"
	"order-shop/dispatcher"
	"order-shop/logging"
	"order-shop/middleware"
	"order-shop/registry"
	"order-shop/server"
	"order-shop/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("ORDERSHOP_CONFIG"), "path to a TOML config file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: server [-config path] [port]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		port, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("invalid port %q", fs.Arg(0))
		}
		cfg.Port = port
		if err := config.ValidateServer(cfg); err != nil {
			return err
		}
	}

	logger, err := logging.New(cfg.Log, "order-server")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store ready", zap.String("store", cfg.Store))

	d := dispatcher.New(st, logger, dispatcher.Config{
		IdleTimeout: cfg.IdleTimeout.Duration,
		MaxRows:     cfg.MaxRows,
	}, middlewares(cfg, logger)...)

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithWorkers(cfg.Workers),
		server.WithSerializedAccept(cfg.SerializeAccept),
		server.WithDrainTimeout(cfg.DrainTimeout.Duration),
	}
	if cfg.Etcd.Enabled() {
		reg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout.Duration, logger)
		if err != nil {
			return err
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.Etcd.AdvertiseAddr, cfg.Etcd.TTL))
	}

	svr, err := server.New(d, opts...)
	if err != nil {
		return err
	}

	if cfg.AdminAddr != "" {
		adm := admin.New(cfg.AdminAddr, svr.Running, logger)
		go func() {
			if err := adm.ListenAndServe(); err != nil {
				logger.Error("admin listener stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			adm.Shutdown(shutdownCtx)
		}()
	}

	return svr.Run(ctx, cfg.Port)
}

func openStore(ctx context.Context, cfg config.ServerConfig) (store.Store, error) {
	if cfg.Store == "memory" {
		return store.NewMemory(), nil
	}
	return store.OpenPostgres(ctx, cfg.DatabaseURL)
}

// middlewares returns the chain outermost first: recovery must wrap everything.
func middlewares(cfg config.ServerConfig, logger *zap.Logger) []middleware.Middleware {
	mws := []middleware.Middleware{
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.MetricsMiddleware(),
	}
	if cfg.RateLimit.RPS > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	if cfg.RequestTimeout.Duration > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(cfg.RequestTimeout.Duration))
	}
	return mws
}
