package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/libreseed/pkgverify/pkg/api"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve package verification over HTTP",
		Long: `Serve answers POST /api/v1/verify requests for packages extracted below the
configured root directory. Requests name the package directory relative to the
root and receive the same report the verify command prints as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context())
		},
	}

	cmd.Flags().String("mode", "stop-first", "report the first failure (stop-first) or all of them (collect-all)")
	cmd.Flags().Int("workers", 1, "number of entries checked concurrently")
	cmd.Flags().Bool("strict", false, "require hardlink entries to be regular files")
	cmd.Flags().Int64("max-read-rate", 0, "maximum bytes per second read while hashing (0 = unlimited)")
	cmd.Flags().String("listen", "127.0.0.1:9091", "address to listen on")
	cmd.Flags().String("root", ".", "directory package_dir is resolved against")
	cmd.Flags().Int("requests-per-minute", 60, "verification requests accepted per minute (0 = unlimited)")
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	opts, err := a.validationOptions()
	if err != nil {
		return err
	}

	router := api.NewRouter(Version)
	router.Use(api.RequestIDMiddleware())
	router.Use(api.LoggingMiddleware(a.logger))
	router.Use(api.RecoveryMiddleware(a.logger))
	router.Use(api.RateLimitMiddleware(a.cfg.Serve.RequestsPerMinute))
	router.RegisterRoutes(api.NewVerifyHandlers(a.cfg.Serve.Root, a.logger, opts...))

	listener, err := net.Listen("tcp", a.cfg.Serve.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Serve.Listen, err)
	}

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	a.logger.Info("verification service started",
		zap.String("listen", listener.Addr().String()),
		zap.String("root", a.cfg.Serve.Root),
	)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	a.logger.Info("verification service stopped")
	return nil
}
