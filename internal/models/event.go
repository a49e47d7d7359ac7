package models

import "time"

// Scenario labels a category of synthetic activity. It is ground truth and never
// travels to the detector.
type Scenario string

const (
	ScenarioNormal              Scenario = "normal"
	ScenarioBruteForce          Scenario = "brute_force"
	ScenarioGeoAnomaly          Scenario = "geo_anomaly"
	ScenarioPrivilegeEscalation Scenario = "privilege_escalation"
)

// IsAttack reports whether the scenario is anything other than baseline traffic.
func (s Scenario) IsAttack() bool {
	return s != ScenarioNormal
}

// LogEvent is a single synthetic activity record submitted for scoring.
type LogEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	SourceIP        string    `json:"source_ip"`
	User            string    `json:"user"`
	EventType       string    `json:"event_type"`
	Message         string    `json:"message"`
	FailedAttempts  int       `json:"failed_attempts"`
	SuccessAttempts int       `json:"success_attempts"`
	LatencyMs       int       `json:"latency_ms"`
	GeolocationRisk float64   `json:"geolocation_risk"`
	PrivilegeLevel  int       `json:"privilege_level"`
}

// Common event types emitted by the built-in templates.
const (
	EventTypeLogin      = "login"
	EventTypeAPICall    = "api_call"
	EventTypeFileAccess = "file_access"
	EventTypeAuth       = "auth"
)
