package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-threatsim/internal/config"
	"github.com/miradorstack/mirador-threatsim/internal/detector"
	"github.com/miradorstack/mirador-threatsim/internal/engine"
	"github.com/miradorstack/mirador-threatsim/internal/metrics"
	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/scenario"
	"github.com/miradorstack/mirador-threatsim/internal/sink"
)

type runFlags struct {
	iterations   int
	seed         uint64
	pace         time.Duration
	detectorMode string
	detectorURL  string
	grpcAddress  string
	csvPath      string
	reportPath   string
	notify       string
	scenarioPack string
	publish      bool
	metricsAddr  string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation, score every event, and report detection quality",
		Long: `Run draws scenarios from the weight table, generates one synthetic event per
iteration, submits it to the configured detector, and records the verdict next
to the ground-truth label. The ledger is exported as CSV and analysed at the end.

Examples:
  threat-sim run --iterations 500 --seed 42
  threat-sim run --detector http --detector-url http://localhost:8080
  threat-sim run --detector grpc --grpc-address localhost:50061 --notify log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulation(cmd, root, flags)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&flags.iterations, "iterations", "n", 0, "number of events to generate")
	f.Uint64Var(&flags.seed, "seed", 0, "random seed; 0 picks one and logs it")
	f.DurationVar(&flags.pace, "pace", 0, "delay between iterations, e.g. 100ms")
	f.StringVar(&flags.detectorMode, "detector", "", "detector mode: builtin, http, grpc")
	f.StringVar(&flags.detectorURL, "detector-url", "", "base URL of an HTTP detector")
	f.StringVar(&flags.grpcAddress, "grpc-address", "", "address of a gRPC detector")
	f.StringVar(&flags.csvPath, "csv", "", "ledger CSV output path")
	f.StringVar(&flags.reportPath, "report", "", "JSON report output path")
	f.StringVar(&flags.notify, "notify", "", "high-risk notifications: console, log, none")
	f.StringVar(&flags.scenarioPack, "scenario-pack", "", "YAML file with additional attack scenarios")
	f.BoolVar(&flags.publish, "publish", false, "publish results to Valkey")
	f.StringVar(&flags.metricsAddr, "metrics-address", "", "serve Prometheus metrics on this address")
	return cmd
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("iterations") {
		cfg.Simulation.Iterations = f.iterations
	}
	if changed("seed") {
		cfg.Simulation.Seed = f.seed
	}
	if changed("pace") {
		cfg.Simulation.Pace = f.pace
	}
	if changed("detector") {
		cfg.Detector.Mode = f.detectorMode
	}
	if changed("detector-url") {
		cfg.Detector.BaseURL = f.detectorURL
	}
	if changed("grpc-address") {
		cfg.Detector.GRPCAddress = f.grpcAddress
	}
	if changed("csv") {
		cfg.Output.CSVPath = f.csvPath
	}
	if changed("report") {
		cfg.Output.ReportPath = f.reportPath
	}
	if changed("notify") {
		cfg.Notify.Kind = f.notify
	}
	if changed("scenario-pack") {
		cfg.Simulation.ScenarioPack = f.scenarioPack
	}
	if changed("publish") {
		cfg.Output.Publish = f.publish
	}
	if changed("metrics-address") {
		cfg.Metrics.Address = f.metricsAddr
	}
}

func runSimulation(cmd *cobra.Command, root *rootOptions, flags *runFlags) error {
	cfg, logger, err := root.load(cmd)
	if err != nil {
		return err
	}
	flags.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopMetrics, err := startMetrics(logger, cfg.Metrics.Address, stop)
	if err != nil {
		return err
	}
	defer stopMetrics()

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	logger.Info("simulation configured",
		slog.Uint64("seed", seed),
		slog.Int("iterations", cfg.Simulation.Iterations),
		slog.String("detector", cfg.Detector.Mode))

	templates, err := buildTemplates(logger, cfg.Simulation.ScenarioPack, seed)
	if err != nil {
		return err
	}
	selector, err := scenario.NewSelector(scenario.WeightsFromConfig(cfg.Simulation.Weights), scenario.NewRand(seed+1), templates)
	if err != nil {
		return fmt.Errorf("invalid scenario weights: %w", err)
	}

	client, closeClient, err := detector.New(cfg.Detector)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeClient(); err != nil {
			logger.Warn("detector close failed", slog.Any("error", err))
		}
	}()

	out := cmd.OutOrStdout()
	runner := engine.NewRunner(logger, selector, templates, client,
		engine.WithNotifier(buildNotifier(cfg.Notify.Kind, out, logger)),
		engine.WithPace(cfg.Simulation.Pace),
		engine.WithRecorder(metrics.Recorder{}),
	)

	fmt.Fprintf(out, "🚀 Starting security simulation\n%s\n", "==================================================")
	ledger, runErr := runner.Run(ctx, cfg.Simulation.Iterations)
	interrupted := runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded))
	if runErr != nil && !interrupted {
		logger.Error("simulation aborted", slog.Int("completed", len(ledger)), slog.Any("error", runErr))
	}
	if interrupted {
		logger.Warn("simulation interrupted", slog.Int("completed", len(ledger)))
	}

	if err := exportResults(context.WithoutCancel(ctx), logger, cfg, out, templates.Known(), ledger); err != nil {
		return err
	}
	if runErr != nil && !interrupted {
		return runErr
	}
	return nil
}

func buildTemplates(logger *slog.Logger, packPath string, seed uint64) (*scenario.Engine, error) {
	templates := scenario.NewEngine(scenario.NewFakerProvider(seed), scenario.NewRand(seed))
	if packPath == "" {
		return templates, nil
	}
	if _, err := os.Stat(packPath); err != nil {
		logger.Warn("scenario pack not found", slog.String("path", packPath))
	}
	pack, err := scenario.LoadPack(packPath)
	if err != nil {
		return nil, fmt.Errorf("load scenario pack: %w", err)
	}
	if err := pack.Apply(templates); err != nil {
		return nil, fmt.Errorf("apply scenario pack: %w", err)
	}
	if pack != nil {
		logger.Info("scenario pack loaded", slog.String("path", packPath), slog.Int("scenarios", len(pack.Scenarios)))
	}
	return templates, nil
}

func buildNotifier(kind string, out io.Writer, logger *slog.Logger) engine.Notifier {
	switch kind {
	case config.NotifyLog:
		return sink.NewLogNotifier(logger)
	case config.NotifyNone:
		return nil
	default:
		return sink.NewConsoleNotifier(out)
	}
}

// exportResults writes the ledger and report and publishes them when asked.
// A partial ledger from an interrupted run is exported too.
func exportResults(ctx context.Context, logger *slog.Logger, cfg *config.Config, out io.Writer, known []models.Scenario, ledger []models.ResultRecord) error {
	if path := cfg.Output.CSVPath; path != "" {
		if err := sink.WriteCSVFile(path, ledger); err != nil {
			return fmt.Errorf("export ledger: %w", err)
		}
		fmt.Fprintf(out, "✅ Simulation complete. Results saved to %s\n", path)
	}

	report := engine.NewAnalyzer(known...).Analyze(ledger)
	metrics.PublishReport(report)
	if err := sink.RenderReport(out, report); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if path := cfg.Output.ReportPath; path != "" {
		if err := sink.WriteReportFile(path, report); err != nil {
			return err
		}
		logger.Info("report written", slog.String("path", path))
	}

	if !cfg.Output.Publish {
		return nil
	}
	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		logger.Warn("results not published", slog.Any("error", err))
		return nil
	}
	defer store.Close()
	id, err := sink.NewPublisher(logger, store, cfg.Cache.ResultsTTL).Publish(ctx, report, ledger)
	if err != nil {
		logger.Warn("results not published", slog.Any("error", err))
		return nil
	}
	fmt.Fprintf(out, "Run id: %s\n", id)
	return nil
}
