package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Detector modes.
const (
	DetectorBuiltin = "builtin"
	DetectorHTTP    = "http"
	DetectorGRPC    = "grpc"
)

// Notifier kinds.
const (
	NotifyConsole = "console"
	NotifyLog     = "log"
	NotifyNone    = "none"
)

// Config captures the settings required to run a simulation.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Detector   DetectorConfig   `yaml:"detector"`
	Output     OutputConfig     `yaml:"output"`
	Notify     NotifyConfig     `yaml:"notify"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Cache      CacheConfig      `yaml:"cache"`
	Server     ServerConfig     `yaml:"server"`
}

// SimulationConfig controls the event mix and run length.
type SimulationConfig struct {
	Iterations   int                `yaml:"iterations"`
	Seed         uint64             `yaml:"seed"`
	Pace         time.Duration      `yaml:"pace"`
	Weights      map[string]float64 `yaml:"weights"`
	ScenarioPack string             `yaml:"scenarioPack"`
}

// DetectorConfig selects and configures the scoring backend.
type DetectorConfig struct {
	Mode        string        `yaml:"mode"`
	BaseURL     string        `yaml:"baseURL"`
	DetectPath  string        `yaml:"detectPath"`
	GRPCAddress string        `yaml:"grpcAddress"`
	Timeout     time.Duration `yaml:"timeout"`
}

// OutputConfig controls where the ledger and report are written.
type OutputConfig struct {
	CSVPath    string `yaml:"csvPath"`
	ReportPath string `yaml:"reportPath"`
	Publish    bool   `yaml:"publish"`
}

// NotifyConfig selects the high-risk notification sink.
type NotifyConfig struct {
	Kind string `yaml:"kind"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// CacheConfig controls the Valkey store used to publish run results.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	ResultsTTL   time.Duration `yaml:"resultsTTL"`
}

// ServerConfig controls the reference detector gRPC listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("THREATSIM_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		// yaml.v3 merges into non-nil maps; a weight table in the file replaces the default one.
		defaults := cfg.Simulation.Weights
		cfg.Simulation.Weights = nil
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if cfg.Simulation.Weights == nil {
			cfg.Simulation.Weights = defaults
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Validate rejects settings that would prevent a run from starting.
func (c *Config) Validate() error {
	if c.Simulation.Iterations <= 0 {
		return fmt.Errorf("simulation.iterations must be positive, got %d", c.Simulation.Iterations)
	}
	if c.Simulation.Pace < 0 {
		return fmt.Errorf("simulation.pace must not be negative")
	}
	switch c.Detector.Mode {
	case DetectorBuiltin:
	case DetectorHTTP:
		if c.Detector.BaseURL == "" {
			return fmt.Errorf("detector.baseURL is required in http mode")
		}
	case DetectorGRPC:
		if c.Detector.GRPCAddress == "" {
			return fmt.Errorf("detector.grpcAddress is required in grpc mode")
		}
	default:
		return fmt.Errorf("unknown detector mode %q", c.Detector.Mode)
	}
	switch c.Notify.Kind {
	case NotifyConsole, NotifyLog, NotifyNone:
	default:
		return fmt.Errorf("unknown notify kind %q", c.Notify.Kind)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Simulation: SimulationConfig{
			Iterations: 100,
			Weights: map[string]float64{
				"normal":               0.85,
				"brute_force":          0.05,
				"geo_anomaly":          0.05,
				"privilege_escalation": 0.05,
			},
		},
		Detector: DetectorConfig{
			Mode:       DetectorBuiltin,
			DetectPath: "/api/v1/detect",
			Timeout:    5 * time.Second,
		},
		Output:  OutputConfig{CSVPath: "simulation_results.csv"},
		Notify:  NotifyConfig{Kind: NotifyConsole},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			ResultsTTL:   24 * time.Hour,
		},
		Server: ServerConfig{
			Address:         ":50061",
			GracefulTimeout: 10 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("THREATSIM_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.Iterations = n
		}
	}
	if v := os.Getenv("THREATSIM_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Simulation.Seed = seed
		}
	}
	if v := os.Getenv("THREATSIM_PACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Simulation.Pace = d
		}
	}
	if v := os.Getenv("THREATSIM_SCENARIO_PACK"); v != "" {
		cfg.Simulation.ScenarioPack = v
	}
	if v := os.Getenv("THREATSIM_DETECTOR_MODE"); v != "" {
		cfg.Detector.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("THREATSIM_DETECTOR_URL"); v != "" {
		cfg.Detector.BaseURL = v
	}
	if v := os.Getenv("THREATSIM_DETECTOR_PATH"); v != "" {
		cfg.Detector.DetectPath = v
	}
	if v := os.Getenv("THREATSIM_DETECTOR_GRPC_ADDRESS"); v != "" {
		cfg.Detector.GRPCAddress = v
	}
	if v := os.Getenv("THREATSIM_DETECTOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detector.Timeout = d
		}
	}
	if v := os.Getenv("THREATSIM_CSV_PATH"); v != "" {
		cfg.Output.CSVPath = v
	}
	if v := os.Getenv("THREATSIM_REPORT_PATH"); v != "" {
		cfg.Output.ReportPath = v
	}
	if v := os.Getenv("THREATSIM_NOTIFY"); v != "" {
		cfg.Notify.Kind = strings.ToLower(v)
	}
	if v := os.Getenv("THREATSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("THREATSIM_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("THREATSIM_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("THREATSIM_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("THREATSIM_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("THREATSIM_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("THREATSIM_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("THREATSIM_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("THREATSIM_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("THREATSIM_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("THREATSIM_CACHE_RESULTS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ResultsTTL = d
		}
	}
}
