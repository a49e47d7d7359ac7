package api

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/utils"
)

// EventsToStruct maps a batch of events into the Score request payload.
func EventsToStruct(logs []models.LogEvent) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(logs))
	for _, ev := range logs {
		values = append(values, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"timestamp":        structpb.NewStringValue(utils.FormatTimestamp(ev.Timestamp)),
			"source_ip":        structpb.NewStringValue(ev.SourceIP),
			"user":             structpb.NewStringValue(ev.User),
			"event_type":       structpb.NewStringValue(ev.EventType),
			"message":          structpb.NewStringValue(ev.Message),
			"failed_attempts":  structpb.NewNumberValue(float64(ev.FailedAttempts)),
			"success_attempts": structpb.NewNumberValue(float64(ev.SuccessAttempts)),
			"latency_ms":       structpb.NewNumberValue(float64(ev.LatencyMs)),
			"geolocation_risk": structpb.NewNumberValue(ev.GeolocationRisk),
			"privilege_level":  structpb.NewNumberValue(float64(ev.PrivilegeLevel)),
		}}))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"logs": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

// StructToEvents maps a Score request payload back into domain events.
func StructToEvents(req *structpb.Struct) ([]models.LogEvent, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	list := req.GetFields()["logs"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil, fmt.Errorf("logs must contain at least one event")
	}

	logs := make([]models.LogEvent, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("logs[%d] is not an object", i)
		}
		ts, err := utils.ParseTimestamp(fields["timestamp"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("logs[%d].timestamp: %w", i, err)
		}
		logs = append(logs, models.LogEvent{
			Timestamp:       ts,
			SourceIP:        fields["source_ip"].GetStringValue(),
			User:            fields["user"].GetStringValue(),
			EventType:       fields["event_type"].GetStringValue(),
			Message:         fields["message"].GetStringValue(),
			FailedAttempts:  int(fields["failed_attempts"].GetNumberValue()),
			SuccessAttempts: int(fields["success_attempts"].GetNumberValue()),
			LatencyMs:       int(fields["latency_ms"].GetNumberValue()),
			GeolocationRisk: fields["geolocation_risk"].GetNumberValue(),
			PrivilegeLevel:  int(fields["privilege_level"].GetNumberValue()),
		})
	}
	return logs, nil
}

// AssessmentToStruct maps a verdict into the Score response payload.
func AssessmentToStruct(a models.Assessment) *structpb.Struct {
	features := make([]*structpb.Value, 0, len(a.TopFeatures))
	for _, f := range a.TopFeatures {
		features = append(features, structpb.NewStringValue(f))
	}
	fields := map[string]*structpb.Value{
		"action":       structpb.NewStringValue(a.Action),
		"top_features": structpb.NewListValue(&structpb.ListValue{Values: features}),
	}
	if a.Scored() {
		fields["risk_score"] = structpb.NewNumberValue(a.RiskScore)
	}
	return &structpb.Struct{Fields: fields}
}

// StructToAssessment maps a Score response payload into a verdict.
func StructToAssessment(resp *structpb.Struct) (models.Assessment, error) {
	if resp == nil {
		return models.Assessment{}, fmt.Errorf("response is nil")
	}
	fields := resp.GetFields()
	score, ok := fields["risk_score"]
	if !ok {
		return models.Assessment{}, fmt.Errorf("response missing risk_score")
	}
	if _, isNumber := score.GetKind().(*structpb.Value_NumberValue); !isNumber {
		return models.Assessment{}, fmt.Errorf("risk_score is not a number")
	}

	a := models.Assessment{
		RiskScore: score.GetNumberValue(),
		Action:    fields["action"].GetStringValue(),
	}
	if math.IsNaN(a.RiskScore) {
		return models.Assessment{}, fmt.Errorf("risk_score is NaN")
	}
	if a.Action == "" {
		a.Action = models.ActionUnknown
	}
	for _, v := range fields["top_features"].GetListValue().GetValues() {
		a.TopFeatures = append(a.TopFeatures, v.GetStringValue())
	}
	return a, nil
}
