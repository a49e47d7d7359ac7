package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-threatsim/internal/cache"
	"github.com/miradorstack/mirador-threatsim/internal/models"
)

const (
	keyPrefix  = "threatsim:run:"
	latestKey  = "threatsim:latest"
	runsKey    = "threatsim:runs"
	runHistory = 50
)

// ErrRunNotFound is returned when a run id has no stored results.
var ErrRunNotFound = errors.New("run not found")

// Publisher stores run results in a cache.Provider so other tools can read them.
type Publisher struct {
	logger *slog.Logger
	store  cache.Provider
	ttl    time.Duration
	newID  func() string
}

// NewPublisher constructs a publisher; results expire after ttl when ttl > 0.
func NewPublisher(logger *slog.Logger, store cache.Provider, ttl time.Duration) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = cache.NoopProvider{}
	}
	return &Publisher{
		logger: logger,
		store:  store,
		ttl:    ttl,
		newID:  func() string { return uuid.NewString() },
	}
}

// Publish stores the report and ledger under a fresh run id and returns it.
func (p *Publisher) Publish(ctx context.Context, report models.Report, ledger []models.ResultRecord) (string, error) {
	id := p.newID()

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	ledgerJSON, err := json.Marshal(ledger)
	if err != nil {
		return "", fmt.Errorf("encode ledger: %w", err)
	}

	if err := p.store.Set(ctx, reportKey(id), reportJSON, p.ttl); err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	if err := p.store.Set(ctx, ledgerKey(id), ledgerJSON, p.ttl); err != nil {
		return "", fmt.Errorf("store ledger: %w", err)
	}
	if err := p.store.Set(ctx, latestKey, []byte(id), p.ttl); err != nil {
		return "", fmt.Errorf("store latest run id: %w", err)
	}
	if err := p.store.Push(ctx, runsKey, []byte(id), runHistory); err != nil {
		p.logger.Warn("failed to index run", slog.String("run_id", id), slog.Any("error", err))
	}

	p.logger.Info("run published", slog.String("run_id", id), slog.Int("records", len(ledger)))
	return id, nil
}

// Latest returns the id of the most recently published run.
func (p *Publisher) Latest(ctx context.Context) (string, error) {
	data, err := p.store.Get(ctx, latestKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch latest run id: %w", err)
	}
	return string(data), nil
}

// Runs lists up to limit recently published run ids, newest first.
func (p *Publisher) Runs(ctx context.Context, limit int) ([]string, error) {
	items, err := p.store.Range(ctx, runsKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, string(item))
	}
	return ids, nil
}

// FetchLedger reads a published ledger. An empty id means the latest run.
func (p *Publisher) FetchLedger(ctx context.Context, id string) ([]models.ResultRecord, error) {
	if id == "" {
		latest, err := p.Latest(ctx)
		if err != nil {
			return nil, err
		}
		id = latest
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}

	data, err := p.store.Get(ctx, ledgerKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch ledger: %w", err)
	}

	var ledger []models.ResultRecord
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return ledger, nil
}

// FetchReport reads a published report.
func (p *Publisher) FetchReport(ctx context.Context, id string) (models.Report, error) {
	data, err := p.store.Get(ctx, reportKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.Report{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return models.Report{}, fmt.Errorf("fetch report: %w", err)
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return models.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

func reportKey(id string) string { return keyPrefix + id + ":report" }
func ledgerKey(id string) string { return keyPrefix + id + ":ledger" }
