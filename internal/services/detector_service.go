package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-threatsim/internal/api"
	"github.com/miradorstack/mirador-threatsim/internal/metrics"
	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/utils"
)

// Scorer produces one assessment per batch.
type Scorer interface {
	Submit(ctx context.Context, logs []models.LogEvent) (models.Assessment, error)
}

// DetectorService implements the gRPC Detector service on top of a Scorer.
type DetectorService struct {
	logger    *slog.Logger
	scorer    Scorer
	latencies *utils.LatencyTracker
}

// NewDetectorService constructs the detector service facade.
func NewDetectorService(logger *slog.Logger, scorer Scorer) *DetectorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectorService{
		logger:    logger,
		scorer:    scorer,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Score decodes the batch, scores it, and encodes the verdict.
func (s *DetectorService) Score(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.scorer == nil {
		return nil, status.Error(codes.FailedPrecondition, "scorer not configured")
	}

	logs, err := api.StructToEvents(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	assessment, err := s.scorer.Submit(ctx, logs)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveScoring(duration, metrics.OutcomeError)
		s.logger.Error("scoring failed", slog.Int("batch_size", len(logs)), slog.Any("error", err))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Error(codes.Internal, "scoring failed")
	}
	metrics.ObserveScoring(duration, metrics.OutcomeSuccess)

	s.latencies.Observe(duration)
	if count := s.latencies.Total(); count >= 100 && count%100 == 0 {
		s.logger.Info("scoring latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	s.logger.Debug("batch scored",
		slog.Int("batch_size", len(logs)),
		slog.Float64("risk_score", assessment.RiskScore),
		slog.String("action", assessment.Action))

	return api.AssessmentToStruct(assessment), nil
}

// LatencyP95 returns the current p95 scoring latency.
func (s *DetectorService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
