package models

// Report summarises detection quality over a ledger.
type Report struct {
	TotalEvents       int                 `json:"total_events"`
	AttackEvents      int                 `json:"attack_events"`
	ScoredAttacks     int                 `json:"scored_attacks"`
	DetectedAttacks   int                 `json:"detected_attacks"`
	DetectionRate     float64             `json:"detection_rate"`
	FalsePositives    int                 `json:"false_positives"`
	FalsePositiveRate float64             `json:"false_positive_rate"`
	Precision         float64             `json:"precision"`
	Unscored          int                 `json:"unscored"`
	Advisories        int                 `json:"advisories"`
	ByScenario        []ScenarioBreakdown `json:"by_scenario"`
}

// ScenarioBreakdown holds detection counts for a single attack scenario.
type ScenarioBreakdown struct {
	Scenario      Scenario `json:"scenario"`
	Total         int      `json:"total"`
	Scored        int      `json:"scored"`
	Detected      int      `json:"detected"`
	Unscored      int      `json:"unscored"`
	DetectionRate float64  `json:"detection_rate"`
	MeanRiskScore float64  `json:"mean_risk_score"`
}

// Breakdown returns the row for a scenario, if present.
func (r Report) Breakdown(s Scenario) (ScenarioBreakdown, bool) {
	for _, b := range r.ByScenario {
		if b.Scenario == s {
			return b, true
		}
	}
	return ScenarioBreakdown{}, false
}
