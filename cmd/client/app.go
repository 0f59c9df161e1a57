package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/omochice/toy-chat-client/internal/api"
	"github.com/omochice/toy-chat-client/internal/auth"
	"github.com/omochice/toy-chat-client/internal/client"
	"github.com/omochice/toy-chat-client/internal/config"
	"github.com/omochice/toy-chat-client/internal/credstore"
	"github.com/omochice/toy-chat-client/internal/logging"
	"github.com/omochice/toy-chat-client/internal/metrics"
	"github.com/omochice/toy-chat-client/internal/session"
	"github.com/omochice/toy-chat-client/internal/terminal"
	"github.com/omochice/toy-chat-client/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// app is everything a command needs, built from config and flags.
type app struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	store    *credstore.Pebble
	registry *prometheus.Registry
	pres     *terminal.Presenter
	engine   *client.Engine
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = serverURL
	}
	if flags.Changed("transport") {
		cfg.Transport = transportID
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	return cfg, cfg.Validate()
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}
	wsURL, err := cfg.WSURL()
	if err != nil {
		return nil, err
	}
	reconnect, err := cfg.ReconnectDelayDuration()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.RequestTimeoutDuration()
	if err != nil {
		return nil, err
	}
	dialer, err := transport.NewDialer(cfg.Transport, timeout)
	if err != nil {
		return nil, err
	}
	store, err := credstore.OpenPebble(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: prometheus.NewRegistry(),
		pres:     terminal.NewPresenter(cmd.OutOrStdout()),
	}
	a.engine = client.New(
		session.Config{URL: wsURL, ReconnectDelay: reconnect, WriteTimeout: timeout},
		api.New(cfg.ServerURL, timeout, auth.TokenSource(store), logger),
		store,
		dialer,
		a.pres,
		logger,
		client.WithMetrics(metrics.New(a.registry)),
	)
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warnw("Failed to close credential store", "error", err)
	}
	_ = a.logger.Sync()
}

// run starts the engine loop, runs fn against it and stops the loop when fn
// returns. The metrics endpoint is served alongside when configured.
func (a *app) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Infow("Serving metrics", "addr", a.cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	g.Go(func() error {
		defer cancel()
		return fn(ctx)
	})

	return g.Wait()
}

func stdinPrompter(cmd *cobra.Command) *terminal.Prompter {
	return terminal.NewPrompter(os.Stdin, cmd.OutOrStdout())
}
