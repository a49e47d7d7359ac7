package detector

import (
	"context"
	"errors"
	"sort"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

// ErrEmptyBatch is returned when a batch carries no events.
var ErrEmptyBatch = errors.New("detector: empty batch")

// Feature names reported in Assessment.TopFeatures.
const (
	FeatureFailedAttempts = "failed_attempts"
	FeatureNoSuccess      = "success_attempts"
	FeatureGeoRisk        = "geolocation_risk"
	FeatureLatency        = "latency_ms"
	FeaturePrivilege      = "privilege_level"
	FeatureAuthEvent      = "event_type"
)

// Heuristic is an in-process reference scorer. It sums weighted feature
// contributions per event and scores a batch by its riskiest event.
type Heuristic struct {
	maxFeatures int
}

// NewHeuristic constructs the reference scorer.
func NewHeuristic() *Heuristic {
	return &Heuristic{maxFeatures: 3}
}

// Submit scores the batch. It never fails on a non-empty batch.
func (h *Heuristic) Submit(ctx context.Context, logs []models.LogEvent) (models.Assessment, error) {
	if len(logs) == 0 {
		return models.Assessment{}, ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return models.Assessment{}, err
	}

	best := -1.0
	var bestContrib []contribution
	for _, ev := range logs {
		contrib := score(ev)
		total := 0.0
		for _, c := range contrib {
			total += c.weight
		}
		total = clamp(total, 0, 1)
		if total > best {
			best = total
			bestContrib = contrib
		}
	}

	return models.Assessment{
		RiskScore:   best,
		Action:      actionFor(best),
		TopFeatures: topFeatures(bestContrib, h.maxFeatures),
	}, nil
}

type contribution struct {
	feature string
	weight  float64
}

func score(ev models.LogEvent) []contribution {
	contrib := make([]contribution, 0, 6)
	add := func(feature string, weight float64) {
		if weight > 0 {
			contrib = append(contrib, contribution{feature: feature, weight: weight})
		}
	}

	add(FeatureFailedAttempts, clamp(float64(ev.FailedAttempts)/5, 0, 1)*0.5)
	if ev.FailedAttempts > 0 && ev.SuccessAttempts == 0 {
		add(FeatureNoSuccess, 0.1)
	}
	add(FeatureGeoRisk, clamp(ev.GeolocationRisk, 0, 1)*0.4)

	switch {
	case ev.LatencyMs >= 800:
		add(FeatureLatency, 0.5)
	case ev.LatencyMs > 300:
		add(FeatureLatency, float64(ev.LatencyMs-300)/500*0.5)
	}

	switch {
	case ev.PrivilegeLevel >= 2:
		add(FeaturePrivilege, 0.35)
	case ev.PrivilegeLevel == 1:
		add(FeaturePrivilege, 0.05)
	}
	if ev.EventType == models.EventTypeAuth {
		add(FeatureAuthEvent, 0.1)
	}
	return contrib
}

func topFeatures(contrib []contribution, limit int) []string {
	sorted := append([]contribution(nil), contrib...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].weight > sorted[j].weight })
	out := make([]string, 0, limit)
	for i := 0; i < len(sorted) && i < limit; i++ {
		out = append(out, sorted[i].feature)
	}
	return out
}

func actionFor(risk float64) string {
	switch {
	case models.IsDetected(risk):
		return models.ActionBlock
	case models.IsAdvisory(risk):
		return models.ActionFlag
	default:
		return models.ActionAllow
	}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
