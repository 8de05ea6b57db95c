package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poll loop and the HTTP API",
		Long: `Starts the background poller and serves the REST API, the websocket
feed and Prometheus metrics until interrupted.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg, logger := rt.cfg, rt.logger

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("close application services", zap.Error(cerr))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.Poller.Enabled {
		a.Poller().Start(ctx)
	} else {
		logger.Warn("poller disabled; serving stored results only")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutdown initiated")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if cfg.Poller.Enabled {
		a.Poller().Stop()
		select {
		case <-a.Poller().Done():
		case <-shutdownCtx.Done():
			logger.Warn("poller did not stop before the shutdown deadline")
		}
	}
	logger.Info("shutdown complete")
	return runErr
}
