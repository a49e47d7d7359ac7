package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/utils"
)

var (
	styleAlert    = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true) // yellow
	styleBlock    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true) // red
	styleFlag     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))            // orange
	styleMuted    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleFeatures = lipgloss.NewStyle().Foreground(lipgloss.Color("39")) // cyan
)

const divider = "--------------------------------------------------"

// ConsoleNotifier prints high-risk events to a terminal.
type ConsoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleNotifier writes to w, or stdout when w is nil.
func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleNotifier{w: w}
}

// Notify prints a three-line block followed by a divider.
func (c *ConsoleNotifier) Notify(_ context.Context, n models.Notification) error {
	header := fmt.Sprintf("⚠️ [%s] %s", utils.FormatTimestamp(n.Timestamp), n.Message)
	risk := fmt.Sprintf("   Risk: %.2f → Action: %s", n.RiskScore, styleAction(n.Action))
	features := fmt.Sprintf("   Top Factors: %s", styleFeatures.Render("["+strings.Join(n.TopFeatures, ", ")+"]"))

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s\n%s\n%s\n%s\n", styleAlert.Render(header), risk, features, styleMuted.Render(divider))
	return err
}

func styleAction(action string) string {
	upper := strings.ToUpper(action)
	switch action {
	case models.ActionBlock:
		return styleBlock.Render(upper)
	case models.ActionFlag:
		return styleFlag.Render(upper)
	default:
		return upper
	}
}

// LogNotifier emits notifications as structured log records.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a notifier for headless runs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification at warn level.
func (l *LogNotifier) Notify(ctx context.Context, n models.Notification) error {
	l.logger.LogAttrs(ctx, slog.LevelWarn, "high-risk event",
		slog.Int("iteration", n.Iteration),
		slog.Time("timestamp", n.Timestamp),
		slog.String("message", n.Message),
		slog.Float64("risk_score", n.RiskScore),
		slog.String("action", n.Action),
		slog.Any("top_features", n.TopFeatures))
	return nil
}
