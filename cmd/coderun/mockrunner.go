package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"coderun/internal/realtime"
)

const shutdownTimeout = 5 * time.Second

func newMockRunnerCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "mock-runner",
		Short: "Serve a local runner that echoes input back to the client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.MockRunner.Addr
			}
			return serveMockRunner(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func serveMockRunner(ctx context.Context, addr string) error {
	log := pslog.Ctx(ctx).With("addr", addr)
	runner := realtime.NewMockRunner(log, nil)
	srv := &http.Server{
		Addr:              addr,
		Handler:           runner.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info("mock runner listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
		srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
