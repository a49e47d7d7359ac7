package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

func writePack(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pack.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	return path
}

func TestLoadPackAndApply(t *testing.T) {
	path := writePack(t, `scenarios:
  - id: data_exfiltration
    event_type: file_access
    message: "Bulk download of restricted files"
    latency_ms: {min: 2000, max: 4000}
    geolocation_risk: 0.6
    source_prefix: "10.13.37"
    host_range: {min: 10, max: 20}
  - id: brute_force
    failed_attempts: {min: 20, max: 30}
`)

	pack, err := LoadPack(path)
	if err != nil {
		t.Fatalf("load pack: %v", err)
	}
	engine := newTestEngine(11)
	if err := pack.Apply(engine); err != nil {
		t.Fatalf("apply pack: %v", err)
	}

	for i := 0; i < 200; i++ {
		ev, err := engine.Generate("data_exfiltration")
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if ev.EventType != models.EventTypeFileAccess || ev.LatencyMs < 2000 || ev.LatencyMs > 4000 {
			t.Fatalf("pack override not applied: %+v", ev)
		}
		if !strings.HasPrefix(ev.SourceIP, "10.13.37.") {
			t.Fatalf("unexpected source ip %s", ev.SourceIP)
		}
		if ev.SuccessAttempts != 1 {
			t.Fatalf("unset fields should keep baseline values: %+v", ev)
		}
	}

	ev, _ := engine.Generate(models.ScenarioBruteForce)
	if ev.FailedAttempts < 20 || ev.FailedAttempts > 30 {
		t.Fatalf("pack should retune built-in scenario, got %d", ev.FailedAttempts)
	}
	known := engine.Known()
	if known[1] != models.ScenarioBruteForce || known[len(known)-1] != "data_exfiltration" {
		t.Fatalf("unexpected scenario order: %v", known)
	}
}

func TestLoadPackMissingFile(t *testing.T) {
	pack, err := LoadPack("non-existent.yaml")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if pack != nil {
		t.Fatalf("expected nil pack when file missing")
	}
}

func TestLoadPackRejectsInvalidRanges(t *testing.T) {
	path := writePack(t, `scenarios:
  - id: broken
    latency_ms: {min: 500, max: 100}
`)
	if _, err := LoadPack(path); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	path = writePack(t, `scenarios:
  - id: normal
    message: "nope"
`)
	if _, err := LoadPack(path); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for baseline redefinition, got %v", err)
	}
}
