package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-threatsim/internal/engine"
	"github.com/miradorstack/mirador-threatsim/internal/metrics"
	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/scenario"
	"github.com/miradorstack/mirador-threatsim/internal/sink"
)

type analyzeFlags struct {
	csvPath   string
	fromCache bool
	runID     string
	listRuns  bool
	asJSON    bool
}

func newAnalyzeCommand(root *rootOptions) *cobra.Command {
	flags := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyse a previously recorded ledger",
		Long: `Analyze recomputes the detection report from an exported CSV ledger or from a
run published to Valkey.

Examples:
  threat-sim analyze --csv simulation_results.csv
  threat-sim analyze --from-cache --run-id 6f1c8d4e-1b1a-4c39-9a51-2f0f6f0b9a11
  threat-sim analyze --from-cache --list-runs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, root, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.csvPath, "csv", "", "ledger CSV to analyse (default: output.csvPath)")
	f.BoolVar(&flags.fromCache, "from-cache", false, "read the ledger from Valkey instead of a CSV file")
	f.StringVar(&flags.runID, "run-id", "", "published run to analyse (default: latest)")
	f.BoolVar(&flags.listRuns, "list-runs", false, "list recently published runs and exit")
	f.BoolVar(&flags.asJSON, "json", false, "print the report as JSON")
	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, flags *analyzeFlags) error {
	cfg, logger, err := root.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var ledger []models.ResultRecord
	if flags.fromCache {
		store, err := openStore(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		defer store.Close()
		pub := sink.NewPublisher(logger, store, cfg.Cache.ResultsTTL)

		if flags.listRuns {
			ids, err := pub.Runs(ctx, 0)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		}
		if ledger, err = pub.FetchLedger(ctx, flags.runID); err != nil {
			return err
		}
	} else {
		path := flags.csvPath
		if path == "" {
			path = cfg.Output.CSVPath
		}
		if ledger, err = sink.ReadCSVFile(path); err != nil {
			return err
		}
		logger.Debug("ledger loaded", slog.String("path", path), slog.Int("records", len(ledger)))
	}

	known, err := knownScenarios(cfg.Simulation.ScenarioPack)
	if err != nil {
		return err
	}
	report := engine.NewAnalyzer(known...).Analyze(ledger)
	metrics.PublishReport(report)

	if flags.asJSON {
		return sink.WriteReportJSON(out, report)
	}
	return sink.RenderReport(out, report)
}

// knownScenarios lists the built-in attacks plus any defined in the pack.
func knownScenarios(packPath string) ([]models.Scenario, error) {
	known := []models.Scenario{
		models.ScenarioBruteForce,
		models.ScenarioGeoAnomaly,
		models.ScenarioPrivilegeEscalation,
	}
	pack, err := scenario.LoadPack(packPath)
	if err != nil {
		return nil, fmt.Errorf("load scenario pack: %w", err)
	}
	if pack != nil {
		for _, sc := range pack.Scenarios {
			known = append(known, models.Scenario(sc.ID))
		}
	}
	return known, nil
}
