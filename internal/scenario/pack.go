package scenario

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

// Pack is a set of scenario templates loaded from YAML.
type Pack struct {
	Scenarios []PackScenario `yaml:"scenarios"`
}

// PackScenario describes field overrides applied on top of the baseline event.
// Unset fields keep their baseline value.
type PackScenario struct {
	ID              string    `yaml:"id"`
	EventType       string    `yaml:"event_type"`
	Message         string    `yaml:"message"`
	FailedAttempts  *IntRange `yaml:"failed_attempts"`
	SuccessAttempts *int      `yaml:"success_attempts"`
	LatencyMs       *IntRange `yaml:"latency_ms"`
	GeolocationRisk *float64  `yaml:"geolocation_risk"`
	PrivilegeLevel  *int      `yaml:"privilege_level"`
	SourceIPs       []string  `yaml:"source_ips"`
	SourcePrefix    string    `yaml:"source_prefix"`
	HostRange       *IntRange `yaml:"host_range"`
}

// IntRange is an inclusive integer interval.
type IntRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// LoadPack reads scenario templates from path. If path is empty or missing, returns a nil pack.
func LoadPack(path string) (*Pack, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse scenario pack: %w", err)
	}
	if err := pack.Validate(); err != nil {
		return nil, err
	}
	return &pack, nil
}

// Validate checks every entry for ranges that cannot produce a valid event.
func (p *Pack) Validate() error {
	seen := make(map[string]struct{}, len(p.Scenarios))
	for _, sc := range p.Scenarios {
		id := models.Scenario(sc.ID)
		if strings.TrimSpace(sc.ID) == "" {
			return &ConfigError{Reason: "pack scenario without id"}
		}
		if id == models.ScenarioNormal {
			return &ConfigError{Scenario: id, Reason: "the baseline scenario cannot be redefined"}
		}
		if _, dup := seen[sc.ID]; dup {
			return &ConfigError{Scenario: id, Reason: "defined more than once"}
		}
		seen[sc.ID] = struct{}{}

		for name, r := range map[string]*IntRange{"failed_attempts": sc.FailedAttempts, "latency_ms": sc.LatencyMs} {
			if r != nil && (r.Min < 0 || r.Max < r.Min) {
				return &ConfigError{Scenario: id, Reason: fmt.Sprintf("%s range [%d,%d] is invalid", name, r.Min, r.Max)}
			}
		}
		if sc.SuccessAttempts != nil && *sc.SuccessAttempts < 0 {
			return &ConfigError{Scenario: id, Reason: "success_attempts must not be negative"}
		}
		if sc.PrivilegeLevel != nil && *sc.PrivilegeLevel < 0 {
			return &ConfigError{Scenario: id, Reason: "privilege_level must not be negative"}
		}
		if sc.GeolocationRisk != nil && (*sc.GeolocationRisk < 0 || *sc.GeolocationRisk > 1) {
			return &ConfigError{Scenario: id, Reason: "geolocation_risk must be within [0,1]"}
		}
		if sc.SourcePrefix != "" {
			if sc.HostRange == nil || sc.HostRange.Min < 0 || sc.HostRange.Max > 255 || sc.HostRange.Max < sc.HostRange.Min {
				return &ConfigError{Scenario: id, Reason: "source_prefix needs a host_range within [0,255]"}
			}
		}
	}
	return nil
}

// Apply registers every pack scenario with the engine.
func (p *Pack) Apply(e *Engine) error {
	if p == nil {
		return nil
	}
	for _, sc := range p.Scenarios {
		if err := e.Register(models.Scenario(sc.ID), sc.override()); err != nil {
			return err
		}
	}
	return nil
}

func (sc PackScenario) override() Override {
	return func(ev *models.LogEvent, rng *rand.Rand) {
		if sc.EventType != "" {
			ev.EventType = sc.EventType
		}
		if sc.Message != "" {
			ev.Message = sc.Message
		}
		if sc.FailedAttempts != nil {
			ev.FailedAttempts = intRange(rng, sc.FailedAttempts.Min, sc.FailedAttempts.Max)
		}
		if sc.SuccessAttempts != nil {
			ev.SuccessAttempts = *sc.SuccessAttempts
		}
		if sc.LatencyMs != nil {
			ev.LatencyMs = intRange(rng, sc.LatencyMs.Min, sc.LatencyMs.Max)
		}
		if sc.GeolocationRisk != nil {
			ev.GeolocationRisk = *sc.GeolocationRisk
		}
		if sc.PrivilegeLevel != nil {
			ev.PrivilegeLevel = *sc.PrivilegeLevel
		}
		switch {
		case len(sc.SourceIPs) > 0:
			ev.SourceIP = pick(rng, sc.SourceIPs)
		case sc.SourcePrefix != "":
			ev.SourceIP = strings.TrimSuffix(sc.SourcePrefix, ".") + "." + strconv.Itoa(intRange(rng, sc.HostRange.Min, sc.HostRange.Max))
		}
	}
}
