package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/adapter/backend"
	"github.com/cas-pilex/edithAI-sub000/internal/logging"
)

// NewBackendCmd groups commands for the domain backend.
func NewBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Domain backend utilities",
	}
	cmd.AddCommand(newBackendServeCmd())
	return cmd
}

// newBackendServeCmd serves the in-process mock backend over JSON-RPC, so a
// server started with EDITH_BACKEND_RPC_ADDR can run against it.
func newBackendServeCmd() *cobra.Command {
	var addr, level string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mock domain backend over JSON-RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(level, "console")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			srv, err := backend.NewServer(backend.NewMockBackend(), logger)
			if err != nil {
				return err
			}
			bound, err := srv.Listen(addr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			logger.Info("mock backend listening", zap.String("addr", bound.String()))

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve() }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7070", "Listen address")
	cmd.Flags().StringVar(&level, "log-level", "info", "Log level")
	return cmd
}
