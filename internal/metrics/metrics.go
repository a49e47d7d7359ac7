package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

const (
	// OutcomeSuccess labels successful detector calls.
	OutcomeSuccess = "success"
	// OutcomeError labels failed detector calls.
	OutcomeError = "error"

	outcomeDetected = "detected"
	outcomeMissed   = "missed"
	outcomeUnscored = "unscored"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatsim",
			Name:      "events_total",
			Help:      "Synthetic events generated, partitioned by scenario.",
		},
		[]string{"scenario"},
	)

	detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatsim",
			Name:      "detections_total",
			Help:      "Scored events partitioned by scenario and detection outcome.",
		},
		[]string{"scenario", "outcome"},
	)

	detectorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatsim",
			Name:      "detector_requests_total",
			Help:      "Detector calls partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	detectorRequestSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "threatsim",
			Name:      "detector_request_seconds",
			Help:      "Detector call latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	scoringSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatsim",
			Name:      "scoring_seconds",
			Help:      "Reference detector scoring latency in seconds, partitioned by outcome.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"outcome"},
	)

	notificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "threatsim",
			Name:      "notifications_total",
			Help:      "High-risk notifications emitted.",
		},
	)

	detectionRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "threatsim",
			Name:      "detection_rate",
			Help:      "Detection rate of the last analysed run.",
		},
	)

	falsePositiveRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "threatsim",
			Name:      "false_positive_rate",
			Help:      "False-positive rate of the last analysed run.",
		},
	)

	scenarioDetectionRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "threatsim",
			Name:      "scenario_detection_rate",
			Help:      "Per-scenario detection rate of the last analysed run.",
		},
		[]string{"scenario"},
	)
)

// Register attaches threatsim collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsTotal,
		detectionsTotal,
		detectorRequestsTotal,
		detectorRequestSeconds,
		scoringSeconds,
		notificationsTotal,
		detectionRate,
		falsePositiveRate,
		scenarioDetectionRate,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// Recorder feeds simulation progress into the collectors.
type Recorder struct{}

// ObserveDetectorCall records a detector call duration and outcome label.
func (Recorder) ObserveDetectorCall(duration time.Duration, err error) {
	label := OutcomeSuccess
	if err != nil {
		label = OutcomeError
	}
	detectorRequestsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	detectorRequestSeconds.Observe(duration.Seconds())
}

// ObserveRecord counts a ledger entry.
func (Recorder) ObserveRecord(rec models.ResultRecord) {
	scenario := string(rec.Scenario)
	eventsTotal.WithLabelValues(scenario).Inc()

	outcome := outcomeMissed
	switch {
	case !rec.Assessment.Scored():
		outcome = outcomeUnscored
	case rec.Detected:
		outcome = outcomeDetected
	}
	detectionsTotal.WithLabelValues(scenario, outcome).Inc()
}

// ObserveNotification counts a high-risk notification.
func (Recorder) ObserveNotification() {
	notificationsTotal.Inc()
}

// ObserveScoring records a reference detector scoring call.
func ObserveScoring(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	if duration < 0 {
		duration = 0
	}
	scoringSeconds.WithLabelValues(label).Observe(duration.Seconds())
}

// PublishReport exposes the headline rates of an analysed run.
func PublishReport(report models.Report) {
	detectionRate.Set(report.DetectionRate)
	falsePositiveRate.Set(report.FalsePositiveRate)
	for _, b := range report.ByScenario {
		scenarioDetectionRate.WithLabelValues(string(b.Scenario)).Set(b.DetectionRate)
	}
}
