package scenario

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

// Baseline ranges. Every normal event falls inside them.
const (
	BaselineLatencyMinMs   = 50
	BaselineLatencyMaxMs   = 300
	BaselineGeoRisk        = 0.1
	BaselineSuccessAttempt = 1
)

var (
	baselineEventTypes = []string{models.EventTypeLogin, models.EventTypeAPICall, models.EventTypeFileAccess}
	baselineMessages   = []string{"Successful login", "API request processed", "File read operation"}
	foreignAddresses   = []string{"54.240.203.1", "182.162.34.78"}
)

// Override shifts baseline fields toward a scenario's signature. It mutates the
// event in place and may draw from rng.
type Override func(ev *models.LogEvent, rng *rand.Rand)

// Engine produces labelled synthetic events from a benign baseline plus a
// per-scenario override table.
type Engine struct {
	provider  ValueProvider
	rng       *rand.Rand
	now       func() time.Time
	overrides map[models.Scenario]Override
	order     []models.Scenario
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an engine with the built-in attack scenarios registered.
func NewEngine(provider ValueProvider, rng *rand.Rand, opts ...Option) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	e := &Engine{
		provider:  provider,
		rng:       rng,
		now:       time.Now,
		overrides: make(map[models.Scenario]Override),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.mustRegister(models.ScenarioBruteForce, bruteForce)
	e.mustRegister(models.ScenarioGeoAnomaly, geoAnomaly)
	e.mustRegister(models.ScenarioPrivilegeEscalation, privilegeEscalation)
	return e
}

// Register adds or replaces the override for a scenario. Replacing keeps the
// scenario's original position in Known.
func (e *Engine) Register(s models.Scenario, o Override) error {
	if s == "" {
		return &ConfigError{Reason: "scenario id is empty"}
	}
	if s == models.ScenarioNormal {
		return &ConfigError{Scenario: s, Reason: "the baseline scenario cannot be overridden"}
	}
	if o == nil {
		return &ConfigError{Scenario: s, Reason: "override is nil"}
	}
	if _, exists := e.overrides[s]; !exists {
		e.order = append(e.order, s)
	}
	e.overrides[s] = o
	return nil
}

func (e *Engine) mustRegister(s models.Scenario, o Override) {
	if err := e.Register(s, o); err != nil {
		panic(err)
	}
}

// Has reports whether the engine can generate the scenario.
func (e *Engine) Has(s models.Scenario) bool {
	if s == models.ScenarioNormal {
		return true
	}
	_, ok := e.overrides[s]
	return ok
}

// Known lists every generatable scenario, baseline first, then attack
// scenarios in registration order.
func (e *Engine) Known() []models.Scenario {
	out := make([]models.Scenario, 0, len(e.order)+1)
	out = append(out, models.ScenarioNormal)
	return append(out, e.order...)
}

// Attacks lists the registered attack scenarios in registration order.
func (e *Engine) Attacks() []models.Scenario {
	return append([]models.Scenario(nil), e.order...)
}

// Baseline returns a fresh benign event.
func (e *Engine) Baseline() models.LogEvent {
	return models.LogEvent{
		Timestamp:       e.now().UTC(),
		SourceIP:        e.provider.IPv4(),
		User:            e.provider.Username(),
		EventType:       pick(e.rng, baselineEventTypes),
		Message:         pick(e.rng, baselineMessages),
		SuccessAttempts: BaselineSuccessAttempt,
		LatencyMs:       intRange(e.rng, BaselineLatencyMinMs, BaselineLatencyMaxMs),
		GeolocationRisk: BaselineGeoRisk,
		PrivilegeLevel:  e.rng.IntN(2),
	}
}

// Generate builds an event for the scenario. Unknown scenarios fail with a
// *TemplateError instead of silently degrading to baseline traffic.
func (e *Engine) Generate(s models.Scenario) (models.LogEvent, error) {
	if s == models.ScenarioNormal {
		return e.Baseline(), nil
	}
	override, ok := e.overrides[s]
	if !ok {
		return models.LogEvent{}, &TemplateError{Scenario: s}
	}
	ev := e.Baseline()
	override(&ev, e.rng)
	return ev, nil
}

// IsBaseline reports whether ev lies entirely inside the benign ranges.
func IsBaseline(ev models.LogEvent) bool {
	if ev.Timestamp.IsZero() || ev.SourceIP == "" || ev.User == "" {
		return false
	}
	if !contains(baselineEventTypes, ev.EventType) || !contains(baselineMessages, ev.Message) {
		return false
	}
	if ev.FailedAttempts != 0 || ev.SuccessAttempts != BaselineSuccessAttempt {
		return false
	}
	if ev.LatencyMs < BaselineLatencyMinMs || ev.LatencyMs > BaselineLatencyMaxMs {
		return false
	}
	return ev.GeolocationRisk == BaselineGeoRisk && (ev.PrivilegeLevel == 0 || ev.PrivilegeLevel == 1)
}

func bruteForce(ev *models.LogEvent, rng *rand.Rand) {
	ev.EventType = models.EventTypeLogin
	ev.Message = "Multiple failed login attempts"
	ev.FailedAttempts = intRange(rng, 5, 15)
	ev.SuccessAttempts = 0
	ev.SourceIP = "192.168.1." + strconv.Itoa(intRange(rng, 100, 200))
	ev.GeolocationRisk = 0.8
}

func geoAnomaly(ev *models.LogEvent, rng *rand.Rand) {
	ev.EventType = models.EventTypeLogin
	ev.Message = "Login from unusual location"
	ev.GeolocationRisk = 0.95
	ev.SourceIP = pick(rng, foreignAddresses)
	ev.LatencyMs = intRange(rng, 800, 1500)
}

func privilegeEscalation(ev *models.LogEvent, _ *rand.Rand) {
	ev.EventType = models.EventTypeAuth
	ev.Message = "Unauthorized privilege change"
	ev.PrivilegeLevel = 2
	ev.GeolocationRisk = 0.7
}

func intRange(rng *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + rng.IntN(max-min+1)
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.IntN(len(values))]
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// NewRand returns a deterministic generator for the given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
