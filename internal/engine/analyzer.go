package engine

import (
	"sort"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

// Analyzer computes detection-quality metrics over a result ledger.
type Analyzer struct {
	known []models.Scenario
}

// NewAnalyzer constructs an analyzer that reports a breakdown row for every
// known attack scenario, even when the ledger holds none of it. With no
// arguments the built-in attack scenarios are used.
func NewAnalyzer(known ...models.Scenario) *Analyzer {
	if len(known) == 0 {
		known = []models.Scenario{
			models.ScenarioBruteForce,
			models.ScenarioGeoAnomaly,
			models.ScenarioPrivilegeEscalation,
		}
	}
	seen := make(map[models.Scenario]struct{}, len(known))
	filtered := make([]models.Scenario, 0, len(known))
	for _, s := range known {
		if !s.IsAttack() {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		filtered = append(filtered, s)
	}
	return &Analyzer{known: filtered}
}

// Analyze summarises the ledger. It is pure: the same ledger always yields
// the same report. Unscored attack records are excluded from the detection
// rate denominator; the false-positive rate is taken over the whole ledger.
func (a *Analyzer) Analyze(ledger []models.ResultRecord) models.Report {
	report := models.Report{TotalEvents: len(ledger)}

	aggs := make(map[models.Scenario]*scenarioAggregate)
	detectedRecords := 0
	for _, rec := range ledger {
		scored := rec.Assessment.Scored()
		if rec.Detected {
			detectedRecords++
		}
		if models.IsAdvisory(rec.Assessment.RiskScore) {
			report.Advisories++
		}
		if !scored {
			report.Unscored++
		}

		if !rec.Scenario.IsAttack() {
			if rec.Detected {
				report.FalsePositives++
			}
			continue
		}

		report.AttackEvents++
		agg := ensureScenario(aggs, rec.Scenario)
		agg.total++
		if !scored {
			agg.unscored++
			continue
		}
		report.ScoredAttacks++
		agg.scored++
		agg.scoreSum += rec.Assessment.RiskScore
		if rec.Detected {
			report.DetectedAttacks++
			agg.detected++
		}
	}

	report.DetectionRate = ratio(report.DetectedAttacks, report.ScoredAttacks)
	report.FalsePositiveRate = ratio(report.FalsePositives, report.TotalEvents)
	report.Precision = ratio(report.DetectedAttacks, detectedRecords)
	report.ByScenario = a.breakdown(aggs)
	return report
}

func (a *Analyzer) breakdown(aggs map[models.Scenario]*scenarioAggregate) []models.ScenarioBreakdown {
	order := append([]models.Scenario(nil), a.known...)
	known := make(map[models.Scenario]struct{}, len(order))
	for _, s := range order {
		known[s] = struct{}{}
	}
	extra := make([]models.Scenario, 0)
	for s := range aggs {
		if _, ok := known[s]; !ok {
			extra = append(extra, s)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	order = append(order, extra...)

	rows := make([]models.ScenarioBreakdown, 0, len(order))
	for _, s := range order {
		row := models.ScenarioBreakdown{Scenario: s}
		if agg, ok := aggs[s]; ok {
			row.Total = agg.total
			row.Scored = agg.scored
			row.Detected = agg.detected
			row.Unscored = agg.unscored
			row.DetectionRate = ratio(agg.detected, agg.scored)
			if agg.scored > 0 {
				row.MeanRiskScore = agg.scoreSum / float64(agg.scored)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

type scenarioAggregate struct {
	total    int
	scored   int
	detected int
	unscored int
	scoreSum float64
}

func ensureScenario(m map[models.Scenario]*scenarioAggregate, s models.Scenario) *scenarioAggregate {
	if agg, ok := m[s]; ok {
		return agg
	}
	agg := &scenarioAggregate{}
	m[s] = agg
	return agg
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
