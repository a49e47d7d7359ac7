package detector

import (
	"context"
	"fmt"

	"github.com/miradorstack/mirador-threatsim/internal/config"
	"github.com/miradorstack/mirador-threatsim/internal/models"
)

// Client scores a batch of events and returns one verdict for the batch.
type Client interface {
	Submit(ctx context.Context, logs []models.LogEvent) (models.Assessment, error)
}

// New builds the client selected by cfg.Mode. The returned close func is
// never nil.
func New(cfg config.DetectorConfig) (Client, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Mode {
	case "", config.DetectorBuiltin:
		return NewHeuristic(), noop, nil
	case config.DetectorHTTP:
		if cfg.BaseURL == "" {
			return nil, noop, fmt.Errorf("detector: http mode requires a base URL")
		}
		return NewHTTPClient(cfg.BaseURL, cfg.DetectPath, cfg.Timeout), noop, nil
	case config.DetectorGRPC:
		client, err := NewGRPCClient(cfg.GRPCAddress, cfg.Timeout)
		if err != nil {
			return nil, noop, err
		}
		return client, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("detector: unknown mode %q", cfg.Mode)
	}
}
