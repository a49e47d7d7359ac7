package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/scenario"
)

type fixedProvider struct{}

func (fixedProvider) IPv4() string     { return "10.1.2.3" }
func (fixedProvider) Username() string { return "svc-account" }

func newTemplates(seed uint64) *scenario.Engine {
	clock := func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return scenario.NewEngine(fixedProvider{}, scenario.NewRand(seed), scenario.WithClock(clock))
}

func newSelector(t *testing.T, weights map[models.Scenario]float64, seed uint64, catalog scenario.Catalog) *scenario.Selector {
	t.Helper()
	sel, err := scenario.NewSelector(weights, scenario.NewRand(seed), catalog)
	if err != nil {
		t.Fatalf("selector: %v", err)
	}
	return sel
}

type clientFunc func(ctx context.Context, logs []models.LogEvent) (models.Assessment, error)

func (f clientFunc) Submit(ctx context.Context, logs []models.LogEvent) (models.Assessment, error) {
	return f(ctx, logs)
}

// bruteForceOnly recognises the brute-force signature from event fields alone.
func bruteForceOnly() clientFunc {
	return func(ctx context.Context, logs []models.LogEvent) (models.Assessment, error) {
		ev := logs[0]
		if ev.FailedAttempts >= 5 && ev.SuccessAttempts == 0 {
			return models.Assessment{RiskScore: 0.9, Action: models.ActionBlock}, nil
		}
		return models.Assessment{RiskScore: 0.1, Action: models.ActionAllow}, nil
	}
}

type scriptedSelector struct {
	seq []models.Scenario
	i   int
}

func (s *scriptedSelector) Select() models.Scenario {
	out := s.seq[s.i%len(s.seq)]
	s.i++
	return out
}

type notifierStub struct {
	mu   sync.Mutex
	seen []models.Notification
	err  error
}

func (n *notifierStub) Notify(ctx context.Context, note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, note)
	return n.err
}

type recorderStub struct {
	calls, records, notifications, failures int
}

func (r *recorderStub) ObserveDetectorCall(d time.Duration, err error) {
	r.calls++
	if err != nil {
		r.failures++
	}
}
func (r *recorderStub) ObserveRecord(models.ResultRecord) { r.records++ }
func (r *recorderStub) ObserveNotification()              { r.notifications++ }

func TestRunAllNormal(t *testing.T) {
	templates := newTemplates(1)
	sel := newSelector(t, map[models.Scenario]float64{models.ScenarioNormal: 1.0}, 1, templates)
	client := clientFunc(func(ctx context.Context, logs []models.LogEvent) (models.Assessment, error) {
		return models.Assessment{RiskScore: 0.1, Action: models.ActionAllow}, nil
	})

	ledger, err := NewRunner(nil, sel, templates, client).Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger) != 10 {
		t.Fatalf("expected 10 records, got %d", len(ledger))
	}
	for i, rec := range ledger {
		if rec.Iteration != i || rec.Scenario != models.ScenarioNormal || rec.Detected {
			t.Fatalf("unexpected record %d: %+v", i, rec)
		}
		if !scenario.IsBaseline(rec.Event) {
			t.Fatalf("normal record %d outside baseline ranges: %+v", i, rec.Event)
		}
	}

	report := NewAnalyzer().Analyze(ledger)
	if report.AttackEvents != 0 || report.DetectionRate != 0 || report.FalsePositiveRate != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunSeededMixDetectsBruteForceOnly(t *testing.T) {
	templates := newTemplates(42)
	sel := newSelector(t, scenario.DefaultWeights(), 42, templates)

	ledger, err := NewRunner(nil, sel, templates, bruteForceOnly()).Run(context.Background(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report := NewAnalyzer(templates.Known()...).Analyze(ledger)

	brute, ok := report.Breakdown(models.ScenarioBruteForce)
	if !ok || brute.Total == 0 {
		t.Fatalf("expected brute force events in a 1000 iteration run: %+v", report.ByScenario)
	}
	if brute.DetectionRate != 1 {
		t.Fatalf("expected brute force detection rate 1, got %f", brute.DetectionRate)
	}
	for _, s := range []models.Scenario{models.ScenarioGeoAnomaly, models.ScenarioPrivilegeEscalation} {
		row, _ := report.Breakdown(s)
		if row.Detected != 0 {
			t.Fatalf("expected no %s detections, got %d", s, row.Detected)
		}
	}
	if report.FalsePositives != 0 {
		t.Fatalf("expected no false positives, got %d", report.FalsePositives)
	}
	if report.AttackEvents < 90 || report.AttackEvents > 220 {
		t.Fatalf("attack share far from 15%%: %d of 1000", report.AttackEvents)
	}
}

func TestRunIsReproducibleForSeed(t *testing.T) {
	run := func() []models.ResultRecord {
		templates := newTemplates(7)
		sel := newSelector(t, scenario.DefaultWeights(), 7, templates)
		ledger, err := NewRunner(nil, sel, templates, bruteForceOnly()).Run(context.Background(), 200)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return ledger
	}
	a, b := run(), run()
	for i := range a {
		if a[i].Scenario != b[i].Scenario || a[i].Event != b[i].Event {
			t.Fatalf("record %d differs between seeded runs", i)
		}
	}
}

func TestRunDetectorFailureProducesUnscoredRecord(t *testing.T) {
	templates := newTemplates(3)
	sel := &scriptedSelector{seq: []models.Scenario{models.ScenarioBruteForce, models.ScenarioNormal}}
	calls := 0
	client := clientFunc(func(ctx context.Context, logs []models.LogEvent) (models.Assessment, error) {
		calls++
		if calls%2 == 1 {
			return models.Assessment{}, errors.New("detector unavailable")
		}
		return models.Assessment{RiskScore: 0.2, Action: models.ActionAllow}, nil
	})
	rec := &recorderStub{}

	ledger, err := NewRunner(nil, sel, templates, client, WithRecorder(rec)).Run(context.Background(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger) != 4 {
		t.Fatalf("run stopped early: %d records", len(ledger))
	}
	first := ledger[0]
	if first.Assessment.Scored() || !math.IsNaN(first.Assessment.RiskScore) {
		t.Fatalf("expected unscored record, got %+v", first.Assessment)
	}
	if first.Detected || first.Assessment.Action != models.ActionUnknown || first.Error == "" {
		t.Fatalf("unexpected unscored record: %+v", first)
	}
	if rec.calls != 4 || rec.failures != 2 || rec.records != 4 {
		t.Fatalf("unexpected recorder counts: %+v", rec)
	}

	report := NewAnalyzer().Analyze(ledger)
	if report.Unscored != 2 || report.ScoredAttacks != 0 || report.DetectionRate != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunAbortsOnUnknownScenario(t *testing.T) {
	templates := newTemplates(4)
	sel := &scriptedSelector{seq: []models.Scenario{models.ScenarioNormal, "ghost"}}

	ledger, err := NewRunner(nil, sel, templates, bruteForceOnly()).Run(context.Background(), 5)
	if !errors.Is(err, scenario.ErrUnknownScenario) {
		t.Fatalf("expected unknown scenario error, got %v", err)
	}
	if !strings.Contains(err.Error(), "iteration 1") {
		t.Fatalf("expected error to name the iteration: %v", err)
	}
	if len(ledger) != 1 {
		t.Fatalf("expected partial ledger of 1, got %d", len(ledger))
	}
}

func TestRunNotifiesAboveAdvisoryThreshold(t *testing.T) {
	templates := newTemplates(5)
	sel := &scriptedSelector{seq: []models.Scenario{models.ScenarioNormal}}
	scores := []float64{0.7, 0.71, 0.85, 0.86}
	i := 0
	client := clientFunc(func(ctx context.Context, logs []models.LogEvent) (models.Assessment, error) {
		score := scores[i]
		i++
		return models.Assessment{RiskScore: score, Action: models.ActionFlag, TopFeatures: []string{"latency_ms"}}, nil
	})
	notifier := &notifierStub{}
	rec := &recorderStub{}

	ledger, err := NewRunner(nil, sel, templates, client, WithNotifier(notifier), WithRecorder(rec)).Run(context.Background(), len(scores))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.seen) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(notifier.seen))
	}
	if notifier.seen[0].Iteration != 1 || notifier.seen[0].Message == "" {
		t.Fatalf("unexpected notification: %+v", notifier.seen[0])
	}
	if rec.notifications != 3 {
		t.Fatalf("expected 3 recorded notifications, got %d", rec.notifications)
	}
	if ledger[2].Detected || !ledger[3].Detected {
		t.Fatalf("detection threshold must be strict: %v %v", ledger[2].Detected, ledger[3].Detected)
	}
	// Every normal record above 0.85 is a false positive.
	if report := NewAnalyzer().Analyze(ledger); report.FalsePositives != 1 || report.Advisories != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunNotifierFailureDoesNotStopRun(t *testing.T) {
	templates := newTemplates(6)
	sel := &scriptedSelector{seq: []models.Scenario{models.ScenarioBruteForce}}
	notifier := &notifierStub{err: errors.New("terminal closed")}
	rec := &recorderStub{}

	ledger, err := NewRunner(nil, sel, templates, bruteForceOnly(), WithNotifier(notifier), WithRecorder(rec)).Run(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger) != 3 || rec.notifications != 0 {
		t.Fatalf("unexpected outcome: ledger=%d notifications=%d", len(ledger), rec.notifications)
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	templates := newTemplates(8)
	sel := &scriptedSelector{seq: []models.Scenario{models.ScenarioNormal}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	client := clientFunc(func(ctx context.Context, logs []models.LogEvent) (models.Assessment, error) {
		calls++
		if calls == 3 {
			cancel()
		}
		return models.Assessment{RiskScore: 0.1, Action: models.ActionAllow}, nil
	})

	ledger, err := NewRunner(nil, sel, templates, client).Run(ctx, 100)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(ledger) != 3 {
		t.Fatalf("expected 3 completed records, got %d", len(ledger))
	}
}

func TestRunPaceHonoursCancellation(t *testing.T) {
	templates := newTemplates(9)
	sel := &scriptedSelector{seq: []models.Scenario{models.ScenarioNormal}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	ledger, err := NewRunner(nil, sel, templates, bruteForceOnly(), WithPace(time.Hour)).Run(ctx, 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(ledger) != 1 {
		t.Fatalf("expected a single record before the pause, got %d", len(ledger))
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("pace did not honour cancellation")
	}
}

func TestRunRejectsInvalidInput(t *testing.T) {
	templates := newTemplates(10)
	sel := &scriptedSelector{seq: []models.Scenario{models.ScenarioNormal}}
	if _, err := NewRunner(nil, sel, templates, bruteForceOnly()).Run(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero iterations")
	}
	if _, err := NewRunner(nil, sel, templates, nil).Run(context.Background(), 1); err == nil {
		t.Fatalf("expected error for missing client")
	}
}
