package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-threatsim/internal/api"
	"github.com/miradorstack/mirador-threatsim/internal/detector"
	"github.com/miradorstack/mirador-threatsim/internal/services"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var (
		address     string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve-detector",
		Short: "Serve the built-in heuristic detector over gRPC",
		Long: `serve-detector hosts the reference heuristic behind the threatsim.v1.Detector
gRPC service so that "run --detector grpc" can be exercised end to end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("address") {
				cfg.Server.Address = address
			}
			if cmd.Flags().Changed("metrics-address") {
				cfg.Metrics.Address = metricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stopMetrics, err := startMetrics(logger, cfg.Metrics.Address, stop)
			if err != nil {
				return err
			}
			defer stopMetrics()

			service := services.NewDetectorService(logger, detector.NewHeuristic())
			server, err := api.NewServer(logger, cfg.Server, service)
			if err != nil {
				return err
			}
			logger.Info("detector listening", slog.String("address", server.Address()))

			go func() {
				if serveErr := server.Start(); serveErr != nil {
					logger.Error("gRPC server exited", slog.Any("error", serveErr))
					stop()
				}
			}()

			<-ctx.Done()
			logger.Info("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
			defer cancel()
			server.Shutdown(shutdownCtx)
			logger.Info("detector stopped", slog.Duration("p95", service.LatencyP95()))
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "gRPC listen address (default: server.address)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-address", "", "serve Prometheus metrics on this address")
	return cmd
}
