package scenario

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

// weightTolerance bounds how far a weight table may drift from summing to one.
const weightTolerance = 1e-6

// Catalog reports which scenarios have a template.
type Catalog interface {
	Has(s models.Scenario) bool
}

// Selector draws scenarios independently from a fixed probability table.
type Selector struct {
	rng        *rand.Rand
	weights    map[models.Scenario]float64
	scenarios  []models.Scenario
	cumulative []float64
}

// DefaultWeights returns the standard 85% benign / 15% attack mix.
func DefaultWeights() map[models.Scenario]float64 {
	return map[models.Scenario]float64{
		models.ScenarioNormal:              0.85,
		models.ScenarioBruteForce:          0.05,
		models.ScenarioGeoAnomaly:          0.05,
		models.ScenarioPrivilegeEscalation: 0.05,
	}
}

// WeightsFromConfig converts a string-keyed weight table.
func WeightsFromConfig(raw map[string]float64) map[models.Scenario]float64 {
	out := make(map[models.Scenario]float64, len(raw))
	for k, v := range raw {
		out[models.Scenario(k)] = v
	}
	return out
}

// NewSelector validates the weight table against the catalog. Any failure is a
// *ConfigError and the run must not start.
func NewSelector(weights map[models.Scenario]float64, rng *rand.Rand, catalog Catalog) (*Selector, error) {
	if len(weights) == 0 {
		return nil, &ConfigError{Reason: "weight table is empty"}
	}
	if rng == nil {
		return nil, fmt.Errorf("selector requires a random source")
	}

	// Sorted so that a given seed always yields the same sequence.
	names := make([]models.Scenario, 0, len(weights))
	for s := range weights {
		names = append(names, s)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	sel := &Selector{rng: rng, weights: make(map[models.Scenario]float64, len(weights))}
	total := 0.0
	for _, s := range names {
		w := weights[s]
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, &ConfigError{Scenario: s, Reason: fmt.Sprintf("weight %v is not a non-negative number", w)}
		}
		sel.weights[s] = w
		if w == 0 {
			continue
		}
		if catalog != nil && !catalog.Has(s) {
			return nil, &ConfigError{Scenario: s, Reason: "weighted scenario has no template"}
		}
		total += w
		sel.scenarios = append(sel.scenarios, s)
		sel.cumulative = append(sel.cumulative, total)
	}

	if total == 0 {
		return nil, &ConfigError{Reason: "no scenario has a positive weight"}
	}
	if math.Abs(total-1) > weightTolerance {
		return nil, &ConfigError{Reason: fmt.Sprintf("weights sum to %.6f, expected 1", total)}
	}
	return sel, nil
}

// Select draws the next scenario. Draws are independent of earlier ones.
func (s *Selector) Select() models.Scenario {
	last := len(s.cumulative) - 1
	r := s.rng.Float64() * s.cumulative[last]
	for i, c := range s.cumulative {
		if r < c {
			return s.scenarios[i]
		}
	}
	return s.scenarios[last]
}

// Weights returns a copy of the validated table.
func (s *Selector) Weights() map[models.Scenario]float64 {
	out := make(map[models.Scenario]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}
