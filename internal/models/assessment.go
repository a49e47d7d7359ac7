package models

import (
	"encoding/json"
	"math"
	"time"
)

const (
	// DetectionThreshold is the score an event must exceed to count as a detected threat.
	DetectionThreshold = 0.85
	// AdvisoryThreshold is the lower score that triggers an operator notification.
	AdvisoryThreshold = 0.7
)

// Recommended actions returned by detectors.
const (
	ActionAllow   = "allow"
	ActionFlag    = "flag"
	ActionBlock   = "block"
	ActionUnknown = "unknown"
)

// Assessment is the detector verdict for one submitted batch.
type Assessment struct {
	RiskScore   float64  `json:"risk_score"`
	Action      string   `json:"action"`
	TopFeatures []string `json:"top_features"`
}

// UnscoredAssessment stands in for a verdict the detector failed to deliver.
func UnscoredAssessment() Assessment {
	return Assessment{RiskScore: math.NaN(), Action: ActionUnknown}
}

// Scored is false for assessments produced by UnscoredAssessment.
func (a Assessment) Scored() bool {
	return !math.IsNaN(a.RiskScore)
}

type assessmentWire struct {
	RiskScore   *float64 `json:"risk_score"`
	Action      string   `json:"action"`
	TopFeatures []string `json:"top_features"`
}

// MarshalJSON encodes an unscored risk score as null.
func (a Assessment) MarshalJSON() ([]byte, error) {
	w := assessmentWire{Action: a.Action, TopFeatures: a.TopFeatures}
	if a.Scored() {
		score := a.RiskScore
		w.RiskScore = &score
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a null or absent risk score as NaN.
func (a *Assessment) UnmarshalJSON(data []byte) error {
	var w assessmentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a.RiskScore = math.NaN()
	if w.RiskScore != nil {
		a.RiskScore = *w.RiskScore
	}
	a.Action = w.Action
	a.TopFeatures = w.TopFeatures
	return nil
}

// IsDetected applies the strict detection threshold. NaN never counts.
func IsDetected(score float64) bool {
	return !math.IsNaN(score) && score > DetectionThreshold
}

// IsAdvisory applies the strict advisory threshold. NaN never notifies.
func IsAdvisory(score float64) bool {
	return !math.IsNaN(score) && score > AdvisoryThreshold
}

// ResultRecord joins one generated event with its label and verdict.
type ResultRecord struct {
	Iteration  int        `json:"iteration"`
	Event      LogEvent   `json:"event"`
	Scenario   Scenario   `json:"actual_scenario"`
	Assessment Assessment `json:"assessment"`
	Detected   bool       `json:"detected_threat"`
	// Error carries the detector failure for unscored records.
	Error string `json:"error,omitempty"`
}

// NewResultRecord builds a record, deriving Detected from the assessment.
func NewResultRecord(iteration int, event LogEvent, scenario Scenario, assessment Assessment, err error) ResultRecord {
	rec := ResultRecord{
		Iteration:  iteration,
		Event:      event,
		Scenario:   scenario,
		Assessment: assessment,
		Detected:   IsDetected(assessment.RiskScore),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// Notification is the operator-facing summary of a high-risk event.
type Notification struct {
	Iteration   int
	Timestamp   time.Time
	Message     string
	RiskScore   float64
	Action      string
	TopFeatures []string
}
