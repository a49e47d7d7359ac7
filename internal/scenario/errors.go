package scenario

import (
	"errors"
	"fmt"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

var (
	// ErrUnknownScenario is returned when no template exists for a scenario.
	ErrUnknownScenario = errors.New("unknown scenario")
	// ErrConfiguration marks a malformed scenario weight table or pack.
	ErrConfiguration = errors.New("invalid scenario configuration")
)

// TemplateError reports a generation request for a scenario with no template.
type TemplateError struct {
	Scenario models.Scenario
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("no template registered for scenario %q", e.Scenario)
}

func (e *TemplateError) Unwrap() error { return ErrUnknownScenario }

// ConfigError reports a scenario configuration problem detected before a run.
type ConfigError struct {
	Scenario models.Scenario
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Scenario == "" {
		return fmt.Sprintf("scenario config: %s", e.Reason)
	}
	return fmt.Sprintf("scenario config: %s: %s", e.Scenario, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }
