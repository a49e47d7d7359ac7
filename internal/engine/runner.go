package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/utils"
)

// DetectionClient scores a batch of events.
type DetectionClient interface {
	Submit(ctx context.Context, logs []models.LogEvent) (models.Assessment, error)
}

// ScenarioSelector draws the scenario for the next iteration.
type ScenarioSelector interface {
	Select() models.Scenario
}

// EventGenerator builds a labelled event for a scenario.
type EventGenerator interface {
	Generate(s models.Scenario) (models.LogEvent, error)
}

// Notifier receives high-risk events as they are scored.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Recorder observes run progress, typically for metrics.
type Recorder interface {
	ObserveDetectorCall(duration time.Duration, err error)
	ObserveRecord(rec models.ResultRecord)
	ObserveNotification()
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithNotifier sets the high-risk notification sink.
func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithPace inserts a delay between iterations.
func WithPace(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.pace = d
		}
	}
}

// WithRecorder attaches a progress recorder.
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLatencyReportEvery controls how often the p95 detector latency is logged.
func WithLatencyReportEvery(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.latencyEvery = n
		}
	}
}

// Runner drives the select, generate, score loop and builds the result ledger.
type Runner struct {
	logger       *slog.Logger
	selector     ScenarioSelector
	templates    EventGenerator
	client       DetectionClient
	notifier     Notifier
	recorder     Recorder
	pace         time.Duration
	latencies    *utils.LatencyTracker
	latencyEvery int
}

// NewRunner constructs a simulation runner.
func NewRunner(logger *slog.Logger, selector ScenarioSelector, templates EventGenerator, client DetectionClient, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		logger:       logger,
		selector:     selector,
		templates:    templates,
		client:       client,
		notifier:     noopNotifier{},
		recorder:     noopRecorder{},
		latencies:    utils.NewLatencyTracker(1024),
		latencyEvery: 100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes iterations and returns the ledger in iteration order. Detector
// failures produce unscored records and the run continues; a template failure
// or a cancelled context stops the run and returns the ledger built so far.
func (r *Runner) Run(ctx context.Context, iterations int) ([]models.ResultRecord, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	if r.selector == nil || r.templates == nil || r.client == nil {
		return nil, fmt.Errorf("runner not configured")
	}

	ledger := make([]models.ResultRecord, 0, iterations)
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return ledger, err
		}

		scenario := r.selector.Select()
		event, err := r.templates.Generate(scenario)
		if err != nil {
			return ledger, fmt.Errorf("iteration %d: generate %s event: %w", i, scenario, err)
		}

		start := time.Now()
		assessment, err := r.client.Submit(ctx, []models.LogEvent{event})
		elapsed := time.Since(start)
		r.recorder.ObserveDetectorCall(elapsed, err)

		if err != nil {
			// A call cut short by the run's own context is not a detector failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ledger, ctxErr
			}
			r.logger.Warn("detector call failed",
				slog.Int("iteration", i),
				slog.String("scenario", string(scenario)),
				slog.String("op", utils.OpOf(err)),
				slog.Any("error", err))
			assessment = models.UnscoredAssessment()
		} else {
			r.latencies.Observe(elapsed)
		}

		rec := models.NewResultRecord(i, event, scenario, assessment, err)
		ledger = append(ledger, rec)
		r.recorder.ObserveRecord(rec)

		if models.IsAdvisory(assessment.RiskScore) {
			r.notify(ctx, rec)
		}

		if (i+1)%r.latencyEvery == 0 && r.latencies.Count() > 0 {
			r.logger.Info("detector latency",
				slog.Int("iteration", i),
				slog.Duration("p95", r.latencies.Percentile(95)),
				slog.Int("samples", r.latencies.Total()))
		}

		if r.pace > 0 && i < iterations-1 {
			if err := sleep(ctx, r.pace); err != nil {
				return ledger, err
			}
		}
	}

	r.logger.Debug("simulation finished", slog.Int("iterations", len(ledger)))
	return ledger, nil
}

// LatencyP95 returns the p95 detector latency observed so far.
func (r *Runner) LatencyP95() time.Duration {
	return r.latencies.Percentile(95)
}

func (r *Runner) notify(ctx context.Context, rec models.ResultRecord) {
	n := models.Notification{
		Iteration:   rec.Iteration,
		Timestamp:   rec.Event.Timestamp,
		Message:     rec.Event.Message,
		RiskScore:   rec.Assessment.RiskScore,
		Action:      rec.Assessment.Action,
		TopFeatures: rec.Assessment.TopFeatures,
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		r.logger.Warn("notification failed", slog.Int("iteration", rec.Iteration), slog.Any("error", err))
		return
	}
	r.recorder.ObserveNotification()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, models.Notification) error { return nil }

type noopRecorder struct{}

func (noopRecorder) ObserveDetectorCall(time.Duration, error) {}
func (noopRecorder) ObserveRecord(models.ResultRecord)        {}
func (noopRecorder) ObserveNotification()                     {}
