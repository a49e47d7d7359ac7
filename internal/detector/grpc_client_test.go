package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-threatsim/internal/api"
	"github.com/miradorstack/mirador-threatsim/internal/config"
	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/services"
	"github.com/miradorstack/mirador-threatsim/internal/utils"
)

type brokenDetector struct{}

func (brokenDetector) Score(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"action": structpb.NewStringValue("allow"),
	}}, nil
}

// stallingDetector holds every call until the caller gives up.
type stallingDetector struct{}

func (stallingDetector) Score(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func startDetector(t *testing.T, srv api.DetectorServer) string {
	t.Helper()
	server, err := api.NewServer(nil, config.ServerConfig{Address: "127.0.0.1:0", GracefulTimeout: time.Second}, srv)
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})
	return server.Address()
}

func TestGRPCClientRoundTrip(t *testing.T) {
	addr := startDetector(t, services.NewDetectorService(nil, NewHeuristic()))

	client, err := NewGRPCClient(addr, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	ev := baselineEvent()
	ev.FailedAttempts = 8
	ev.SuccessAttempts = 0
	ev.GeolocationRisk = 0.8

	got, err := client.Submit(context.Background(), []models.LogEvent{ev})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := NewHeuristic().Submit(context.Background(), []models.LogEvent{ev})
	if got.RiskScore != want.RiskScore || got.Action != want.Action {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if len(got.TopFeatures) != len(want.TopFeatures) {
		t.Fatalf("expected features %v, got %v", want.TopFeatures, got.TopFeatures)
	}
}

func TestGRPCClientMalformedResponse(t *testing.T) {
	addr := startDetector(t, brokenDetector{})

	client, err := NewGRPCClient(addr, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	_, err = client.Submit(context.Background(), []models.LogEvent{baselineEvent()})
	if err == nil {
		t.Fatalf("expected error for missing risk_score")
	}
	if op := utils.OpOf(err); op != opGRPC {
		t.Fatalf("expected op %s, got %q", opGRPC, op)
	}
}

func TestGRPCClientUnreachable(t *testing.T) {
	client, err := NewGRPCClient("127.0.0.1:1", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if _, err := client.Submit(context.Background(), []models.LogEvent{baselineEvent()}); err == nil {
		t.Fatalf("expected error from unreachable detector")
	}
}

func TestGRPCClientRequiresAddress(t *testing.T) {
	if _, err := NewGRPCClient("", time.Second); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestNewSelectsMode(t *testing.T) {
	client, closeFn, err := New(config.DetectorConfig{Mode: config.DetectorBuiltin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*Heuristic); !ok {
		t.Fatalf("expected heuristic client, got %T", client)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	client, _, err = New(config.DetectorConfig{Mode: config.DetectorHTTP, BaseURL: "http://localhost:8080", DetectPath: "/api/v1/detect"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*HTTPClient); !ok {
		t.Fatalf("expected http client, got %T", client)
	}

	client, closeFn, err = New(config.DetectorConfig{Mode: config.DetectorGRPC, GRPCAddress: "127.0.0.1:50061"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*GRPCClient); !ok {
		t.Fatalf("expected grpc client, got %T", client)
	}
	_ = closeFn()

	if _, _, err := New(config.DetectorConfig{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if _, _, err := New(config.DetectorConfig{Mode: config.DetectorHTTP}); err == nil {
		t.Fatalf("expected error for http mode without base URL")
	}
}

func TestGRPCClientRejectsEmptyBatch(t *testing.T) {
	client, err := NewGRPCClient("127.0.0.1:50061", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()
	if _, err := client.Submit(context.Background(), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestGRPCClientSurfacesCallerCancellation(t *testing.T) {
	addr := startDetector(t, stallingDetector{})

	client, err := NewGRPCClient(addr, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = client.Submit(ctx, []models.LogEvent{baselineEvent()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the caller's deadline to surface, got %v", err)
	}
	if op := utils.OpOf(err); op != opGRPC {
		t.Fatalf("expected op %s, got %q", opGRPC, op)
	}
}

func TestGRPCClientOwnTimeoutIsTransportFailure(t *testing.T) {
	addr := startDetector(t, stallingDetector{})

	client, err := NewGRPCClient(addr, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	_, err = client.Submit(context.Background(), []models.LogEvent{baselineEvent()})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		t.Fatalf("client timeout must not look like caller cancellation: %v", err)
	}
}
