package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

var styleTitle = lipgloss.NewStyle().Bold(true)

const rule = "=================================================="

// RenderReport prints the analysis summary.
func RenderReport(w io.Writer, r models.Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n%s\n", styleTitle.Render("🔍 Simulation Analysis"), rule)
	fmt.Fprintf(&b, "Total Logs: %d\n", r.TotalEvents)
	fmt.Fprintf(&b, "Attack Logs: %d\n", r.AttackEvents)
	fmt.Fprintf(&b, "Detected Attacks: %d\n", r.DetectedAttacks)
	fmt.Fprintf(&b, "Detection Rate: %s\n", percent(r.DetectionRate))
	if r.Unscored > 0 {
		fmt.Fprintf(&b, "Unscored Events: %d\n", r.Unscored)
	}
	fmt.Fprintf(&b, "\nFalse Positives: %d (%s)\n", r.FalsePositives, percent(r.FalsePositiveRate))
	fmt.Fprintf(&b, "Precision: %s\n", percent(r.Precision))

	b.WriteString("\nBy Attack Type:\n")
	for _, row := range r.ByScenario {
		fmt.Fprintf(&b, "  %s: %d/%d detected", DisplayName(row.Scenario), row.Detected, row.Total)
		if row.Unscored > 0 {
			fmt.Fprintf(&b, " (%d unscored)", row.Unscored)
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// DisplayName turns a scenario id such as "brute_force" into "Brute Force".
func DisplayName(s models.Scenario) string {
	words := strings.Split(string(s), "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// WriteReportJSON writes the report as indented JSON.
func WriteReportJSON(w io.Writer, r models.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteReportFile writes the JSON report to path.
func WriteReportFile(path string, r models.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteReportJSON(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
