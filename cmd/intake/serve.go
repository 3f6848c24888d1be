package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-intake/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the intake HTTP API",
		Long: `Start the HTTP front end. Bots and other clients post expenses to
/process-expense and settle deferred ones under /users/{user}/pending.
Prometheus metrics are exposed on /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = opts.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, opts.cfg, appOptions{oracle: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := httpapi.NewServer(a.pipeline, a.store, httpapi.Config{
		Addr:    opts.cfg.Server.Addr,
		Metrics: a.metrics.Handler(),
	}, a.logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
