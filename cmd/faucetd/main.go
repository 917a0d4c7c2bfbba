package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faucetd/config"
	"faucetd/faucet"
	"faucetd/gateway"
	"faucetd/observability/logging"
	"faucetd/sender"
	"faucetd/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "faucetd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to faucet configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup("faucetd", cfg.Log)

	store, err := storage.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	senders := make(map[string]faucet.Sender, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		s, err := sender.New(chain)
		if err != nil {
			return fmt.Errorf("init sender for %s: %w", chain.Name, err)
		}
		senders[chain.Name] = s
		logger.Info("chain configured", "chain", chain.Name, "family", chain.Family)
	}

	metrics := faucet.FaucetMetrics()
	queue := faucet.NewPayoutQueue()
	tracker := faucet.NewStatusTracker(store, logger)
	service := faucet.NewService(faucet.ServiceConfig{
		Chains:  cfg.Chains,
		Limiter: faucet.NewFrequencyLimiter(store, cfg.Window.Duration, logger),
		Tracker: tracker,
		Queue:   queue,
		Senders: senders,
		Window:  cfg.Window.Duration,
		Logger:  logger,
		Metrics: metrics,
	})
	dispatcher := faucet.NewDispatcher(queue, tracker, senders,
		faucet.WithCooldown(cfg.Cooldown.Duration),
		faucet.WithSendTimeout(cfg.SendTimeout.Duration),
		faucet.WithLogger(logger),
		faucet.WithMetrics(metrics),
	)

	var limiter *gateway.RateLimiter
	if cfg.HTTPLimit.RequestsPerMinute > 0 {
		limiter = gateway.NewRateLimiter(cfg.HTTPLimit)
	}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      gateway.NewServer(service, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go dispatcher.Run(stopCtx)

	errs := make(chan error, 1)
	go func() {
		logger.Info("faucet listening", "address", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
