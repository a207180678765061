package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/go-taskmon/pkg/taskmon"
)

const shutdownTimeout = 5 * time.Second

func (a *app) serveCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve snapshots, health and metrics over HTTP",
		Long: `serve samples continuously and exposes:

  GET /snapshot        latest snapshot (?filter=, ?sort=, ?top=, ?dead=)
  GET /processes/{id}  one live or dead process by internal id
  GET /healthz         health check
  GET /metrics         Prometheus metrics

SIGHUP reloads the configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context(), listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides the listen option)")
	return cmd
}

func (a *app) runServe(ctx context.Context, listen string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if listen == "" {
		listen = cfg.Listen
	}
	logger := a.logger(cfg)

	m, err := a.openMonitor(cfg, taskmon.Options{WatchConfig: a.configPath != ""})
	if err != nil {
		return err
	}
	m.SetErrorHandler(func(err error) {
		logger.Warn("monitor error", "error", err)
	})
	if err := m.Start(); err != nil {
		return err
	}
	defer m.Stop()

	srv := &http.Server{
		Addr:              listen,
		Handler:           newAPIServer(m, m.Metrics().Handler(), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", listen)
		serveErr <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			return shutdown(srv)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("received SIGHUP, reloading configuration")
				if err := m.ReloadConfig(); err != nil {
					logger.Warn("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutting down", "signal", sig.String())
			return shutdown(srv)
		}
	}
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
