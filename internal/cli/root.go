package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-threatsim/internal/cache"
	"github.com/miradorstack/mirador-threatsim/internal/config"
	"github.com/miradorstack/mirador-threatsim/internal/metrics"
	"github.com/miradorstack/mirador-threatsim/internal/utils"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

// NewRootCommand assembles the threat-sim command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "threat-sim",
		Short: "Synthetic security-event simulator and detector evaluation harness",
		Long: `threat-sim generates labelled synthetic security events, submits them to a
risk-scoring detector, and reports how well the detector separated attacks
from benign traffic.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: $THREATSIM_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit JSON logs")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newAnalyzeCommand(opts))
	root.AddCommand(newServeCommand(opts))
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "threat-sim:", err)
		return 1
	}
	return 0
}

// load reads configuration and applies the persistent flags.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Logging.JSON = o.logJSON
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// startMetrics registers collectors and serves /metrics when an address is set.
// The returned stop func is never nil.
func startMetrics(logger *slog.Logger, address string, onFailure func()) (func(), error) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return func() {}, fmt.Errorf("register metrics: %w", err)
	}
	if address == "" {
		return func() {}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", slog.String("address", address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server exited", slog.Any("error", err))
			if onFailure != nil {
				onFailure()
			}
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}, nil
}

// openStore connects to Valkey when the cache is enabled.
func openStore(ctx context.Context, cfg config.CacheConfig) (cache.Provider, error) {
	if !cfg.Enabled || cfg.Addr == "" {
		return nil, errors.New("cache is not enabled; set cache.enabled and cache.addr")
	}
	return cache.NewValkeyProvider(ctx, cache.ValkeyConfigFrom(cfg))
}
