package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/miradorstack/mirador-threatsim/internal/detector"
	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/utils"
)

type scorer interface {
	Submit(ctx context.Context, logs []models.LogEvent) (models.Assessment, error)
}

type detectRequest struct {
	Logs []models.LogEvent `json:"logs"`
}

// flakiness injects 503s so the harness's unscored path can be exercised.
type flakiness struct {
	mu   sync.Mutex
	rate float64
	rng  *rand.Rand
}

func (f *flakiness) fail() bool {
	if f == nil || f.rate <= 0 {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64() < f.rate
}

func main() {
	logger := utils.NewLogger(os.Getenv("MOCK_DETECTOR_LOG_LEVEL"), false)

	addr := os.Getenv("MOCK_DETECTOR_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}
	rate, _ := strconv.ParseFloat(os.Getenv("MOCK_DETECTOR_FAILURE_RATE"), 64)
	flaky := &flakiness{rate: rate, rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))}

	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, newMux(detector.NewHeuristic(), flaky)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("mock detector listening", slog.String("address", addr), slog.Float64("failure_rate", rate))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newMux(s scorer, flaky *flakiness) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/detect", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		if flaky.fail() {
			http.Error(w, "detector overloaded", http.StatusServiceUnavailable)
			return
		}

		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		assessment, err := s.Submit(r.Context(), req.Logs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, assessment)
	})
	return mux
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Debug("request", slog.String("method", r.Method), slog.String("path", r.URL.Path),
			slog.Int("status", rw.status), slog.Duration("duration", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
