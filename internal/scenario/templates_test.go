package scenario

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

type stubProvider struct {
	n int
}

func (p *stubProvider) IPv4() string {
	p.n++
	return fmt.Sprintf("10.0.0.%d", p.n%250+1)
}

func (p *stubProvider) Username() string { return "jdoe" }

func newTestEngine(seed uint64) *Engine {
	clock := func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return NewEngine(&stubProvider{}, NewRand(seed), WithClock(clock))
}

func TestBaselineWithinBenignRanges(t *testing.T) {
	engine := newTestEngine(1)
	for i := 0; i < 1000; i++ {
		ev, err := engine.Generate(models.ScenarioNormal)
		if err != nil {
			t.Fatalf("generate normal: %v", err)
		}
		if !IsBaseline(ev) {
			t.Fatalf("sample %d outside baseline ranges: %+v", i, ev)
		}
	}
}

func TestBaselineIsFreshPerCall(t *testing.T) {
	engine := newTestEngine(2)
	first := engine.Baseline()
	first.FailedAttempts = 99
	second := engine.Baseline()
	if second.FailedAttempts != 0 {
		t.Fatalf("baseline leaked state between calls: %+v", second)
	}
}

func TestBruteForceOverrideRanges(t *testing.T) {
	engine := newTestEngine(3)
	for i := 0; i < 1000; i++ {
		ev, err := engine.Generate(models.ScenarioBruteForce)
		if err != nil {
			t.Fatalf("generate brute_force: %v", err)
		}
		if ev.FailedAttempts < 5 || ev.FailedAttempts > 15 {
			t.Fatalf("sample %d failed_attempts out of range: %d", i, ev.FailedAttempts)
		}
		if ev.SuccessAttempts != 0 {
			t.Fatalf("sample %d success_attempts should be 0, got %d", i, ev.SuccessAttempts)
		}
		if !strings.HasPrefix(ev.SourceIP, "192.168.1.") || ev.EventType != models.EventTypeLogin {
			t.Fatalf("sample %d not a brute force login: %+v", i, ev)
		}
		if ev.GeolocationRisk != 0.8 {
			t.Fatalf("sample %d unexpected geolocation risk %v", i, ev.GeolocationRisk)
		}
		if ev.User == "" || ev.Timestamp.IsZero() {
			t.Fatalf("sample %d lost incidental fields: %+v", i, ev)
		}
	}
}

func TestGeoAnomalyOverride(t *testing.T) {
	engine := newTestEngine(4)
	for i := 0; i < 500; i++ {
		ev, err := engine.Generate(models.ScenarioGeoAnomaly)
		if err != nil {
			t.Fatalf("generate geo_anomaly: %v", err)
		}
		if ev.LatencyMs < 800 || ev.LatencyMs > 1500 {
			t.Fatalf("latency out of range: %d", ev.LatencyMs)
		}
		if ev.SourceIP != "54.240.203.1" && ev.SourceIP != "182.162.34.78" {
			t.Fatalf("unexpected foreign address: %s", ev.SourceIP)
		}
		if ev.GeolocationRisk != 0.95 {
			t.Fatalf("unexpected geolocation risk: %v", ev.GeolocationRisk)
		}
	}
}

func TestPrivilegeEscalationOverride(t *testing.T) {
	engine := newTestEngine(5)
	ev, err := engine.Generate(models.ScenarioPrivilegeEscalation)
	if err != nil {
		t.Fatalf("generate privilege_escalation: %v", err)
	}
	if ev.EventType != models.EventTypeAuth || ev.PrivilegeLevel != 2 || ev.GeolocationRisk != 0.7 {
		t.Fatalf("unexpected privilege escalation event: %+v", ev)
	}
	if IsBaseline(ev) {
		t.Fatalf("attack event should fall outside baseline ranges")
	}
}

func TestGenerateUnknownScenario(t *testing.T) {
	engine := newTestEngine(6)
	_, err := engine.Generate("data_exfiltration")
	if !errors.Is(err, ErrUnknownScenario) {
		t.Fatalf("expected ErrUnknownScenario, got %v", err)
	}
	var tplErr *TemplateError
	if !errors.As(err, &tplErr) || tplErr.Scenario != "data_exfiltration" {
		t.Fatalf("expected TemplateError naming the scenario, got %v", err)
	}
}

func TestRegisterCustomScenario(t *testing.T) {
	engine := newTestEngine(7)
	err := engine.Register("port_scan", func(ev *models.LogEvent, rng *rand.Rand) {
		ev.EventType = "network"
		ev.FailedAttempts = 100
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := engine.Register(models.ScenarioNormal, func(*models.LogEvent, *rand.Rand) {}); err == nil {
		t.Fatalf("expected error overriding baseline")
	}

	known := engine.Known()
	if len(known) != 5 || known[0] != models.ScenarioNormal || known[4] != "port_scan" {
		t.Fatalf("unexpected known scenarios: %v", known)
	}

	ev, err := engine.Generate("port_scan")
	if err != nil {
		t.Fatalf("generate custom: %v", err)
	}
	if ev.EventType != "network" || ev.FailedAttempts != 100 {
		t.Fatalf("override not applied: %+v", ev)
	}
}

func TestEngineDeterministicForSeed(t *testing.T) {
	a := newTestEngine(42)
	b := newTestEngine(42)
	for i := 0; i < 50; i++ {
		ea, _ := a.Generate(models.ScenarioBruteForce)
		eb, _ := b.Generate(models.ScenarioBruteForce)
		if ea != eb {
			t.Fatalf("engines diverged at %d: %+v vs %+v", i, ea, eb)
		}
	}
}
