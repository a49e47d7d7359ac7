package scenario

import (
	"errors"
	"math"
	"testing"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

func TestSelectorDefaultDistribution(t *testing.T) {
	engine := newTestEngine(1)
	sel, err := NewSelector(DefaultWeights(), NewRand(99), engine)
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}

	const draws = 20000
	counts := make(map[models.Scenario]int)
	for i := 0; i < draws; i++ {
		counts[sel.Select()]++
	}

	for s, want := range DefaultWeights() {
		got := float64(counts[s]) / draws
		if math.Abs(got-want) > 0.02 {
			t.Fatalf("scenario %s frequency %.3f, want about %.2f", s, got, want)
		}
	}
}

func TestSelectorOnlyNormal(t *testing.T) {
	sel, err := NewSelector(map[models.Scenario]float64{models.ScenarioNormal: 1.0}, NewRand(1), newTestEngine(1))
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	for i := 0; i < 100; i++ {
		if s := sel.Select(); s != models.ScenarioNormal {
			t.Fatalf("expected only normal, got %s", s)
		}
	}
}

func TestSelectorSameSeedSameSequence(t *testing.T) {
	engine := newTestEngine(1)
	a, _ := NewSelector(DefaultWeights(), NewRand(7), engine)
	b, _ := NewSelector(DefaultWeights(), NewRand(7), engine)
	for i := 0; i < 200; i++ {
		if a.Select() != b.Select() {
			t.Fatalf("sequences diverged at draw %d", i)
		}
	}
}

func TestSelectorRejectsMalformedTables(t *testing.T) {
	engine := newTestEngine(1)
	cases := map[string]map[models.Scenario]float64{
		"empty":        {},
		"not summing":  {models.ScenarioNormal: 0.5, models.ScenarioBruteForce: 0.2},
		"negative":     {models.ScenarioNormal: 1.2, models.ScenarioBruteForce: -0.2},
		"all zero":     {models.ScenarioNormal: 0},
		"no template":  {models.ScenarioNormal: 0.9, "ransomware": 0.1},
		"not a number": {models.ScenarioNormal: math.NaN()},
	}
	for name, weights := range cases {
		_, err := NewSelector(weights, NewRand(1), engine)
		if !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
}

func TestSelectorIgnoresZeroWeightUnknown(t *testing.T) {
	weights := map[models.Scenario]float64{models.ScenarioNormal: 1, "ransomware": 0}
	sel, err := NewSelector(weights, NewRand(1), newTestEngine(1))
	if err != nil {
		t.Fatalf("zero-weight scenario without template should be accepted: %v", err)
	}
	if got := sel.Weights(); len(got) != 2 {
		t.Fatalf("weights copy lost entries: %v", got)
	}
}
