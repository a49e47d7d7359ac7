package api

import (
	"math"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-threatsim/internal/models"
)

func TestEventsRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 15, 123456000, time.UTC)
	in := []models.LogEvent{{
		Timestamp:       ts,
		SourceIP:        "192.168.1.150",
		User:            "mallory",
		EventType:       models.EventTypeLogin,
		Message:         "Multiple failed login attempts",
		FailedAttempts:  11,
		SuccessAttempts: 0,
		LatencyMs:       210,
		GeolocationRisk: 0.8,
		PrivilegeLevel:  1,
	}}

	out, err := StructToEvents(EventsToStruct(in))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one event, got %d", len(out))
	}
	if !out[0].Timestamp.Equal(ts) {
		t.Fatalf("unexpected timestamp: %s", out[0].Timestamp)
	}
	out[0].Timestamp = ts
	if out[0] != in[0] {
		t.Fatalf("unexpected event: %+v", out[0])
	}
}

func TestStructToEventsRejectsInvalid(t *testing.T) {
	if _, err := StructToEvents(nil); err == nil {
		t.Fatalf("expected error for nil request")
	}
	if _, err := StructToEvents(&structpb.Struct{}); err == nil {
		t.Fatalf("expected error for missing logs")
	}

	bad, err := structpb.NewStruct(map[string]any{"logs": []any{"not-an-object"}})
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	if _, err := StructToEvents(bad); err == nil {
		t.Fatalf("expected error for non-object event")
	}

	badTime, err := structpb.NewStruct(map[string]any{"logs": []any{map[string]any{"timestamp": "yesterday"}}})
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	if _, err := StructToEvents(badTime); err == nil {
		t.Fatalf("expected error for invalid timestamp")
	}
}

func TestAssessmentRoundTrip(t *testing.T) {
	in := models.Assessment{RiskScore: 0.73, Action: models.ActionFlag, TopFeatures: []string{"privilege_level", "geolocation_risk"}}

	out, err := StructToAssessment(AssessmentToStruct(in))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.RiskScore != in.RiskScore || out.Action != in.Action {
		t.Fatalf("unexpected assessment: %+v", out)
	}
	if len(out.TopFeatures) != 2 || out.TopFeatures[0] != "privilege_level" {
		t.Fatalf("unexpected features: %v", out.TopFeatures)
	}
}

func TestUnscoredAssessmentOmitsScore(t *testing.T) {
	msg := AssessmentToStruct(models.UnscoredAssessment())
	if _, ok := msg.GetFields()["risk_score"]; ok {
		t.Fatalf("expected risk_score to be omitted for unscored assessment")
	}
	if _, err := StructToAssessment(msg); err == nil {
		t.Fatalf("expected error decoding response without risk_score")
	}
}

func TestStructToAssessmentValidation(t *testing.T) {
	if _, err := StructToAssessment(nil); err == nil {
		t.Fatalf("expected error for nil response")
	}

	wrongType := &structpb.Struct{Fields: map[string]*structpb.Value{
		"risk_score": structpb.NewStringValue("high"),
	}}
	if _, err := StructToAssessment(wrongType); err == nil {
		t.Fatalf("expected error for non-numeric score")
	}

	nan := &structpb.Struct{Fields: map[string]*structpb.Value{
		"risk_score": structpb.NewNumberValue(math.NaN()),
	}}
	if _, err := StructToAssessment(nan); err == nil {
		t.Fatalf("expected error for NaN score")
	}

	noAction := &structpb.Struct{Fields: map[string]*structpb.Value{
		"risk_score": structpb.NewNumberValue(0.1),
	}}
	a, err := StructToAssessment(noAction)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.Action != models.ActionUnknown {
		t.Fatalf("expected unknown action, got %q", a.Action)
	}
}
