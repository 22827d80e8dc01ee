package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

type Config struct {
	Env        string
	ListenAddr string

	StoreBackend string
	DatabaseURL  string
	BadgerPath   string

	ScanWorkers     int
	ScanQueueSize   int
	ScanTimeout     time.Duration
	AnalysisTimeout time.Duration
	AnalysisLatency time.Duration
	ScoringMode     string
	FetchRate       float64
	RiskThreshold   int

	// FetchAllowPrivate lets the page fetcher reach loopback and private
	// networks. Development only.
	FetchAllowPrivate bool

	LogLevel  string
	LogFormat string
	LogFile   string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads the environment, after merging any .env file in the working
// directory. Variables already set win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:               getenv("APP_ENV", "development"),
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
		StoreBackend:      strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		BadgerPath:        getenv("BADGER_PATH", "data/badger"),
		ScanWorkers:       getenvInt("SCAN_WORKERS", 4),
		ScanQueueSize:     getenvInt("SCAN_QUEUE_SIZE", 64),
		ScanTimeout:       getenvDuration("SCAN_TIMEOUT", 15*time.Second),
		AnalysisTimeout:   getenvDuration("ANALYSIS_TIMEOUT", 10*time.Second),
		AnalysisLatency:   getenvDuration("ANALYSIS_LATENCY", 2*time.Second),
		ScoringMode:       strings.ToLower(getenv("SCORING_MODE", "random")),
		FetchRate:         getenvFloat("FETCH_RATE", 2),
		FetchAllowPrivate: getenvBool("FETCH_ALLOW_PRIVATE", false),
		RiskThreshold:     getenvInt("RISK_THRESHOLD", 70),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "json"),
		LogFile:           os.Getenv("LOG_FILE"),
	}
	return cfg, cfg.Validate()
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case BackendBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required for the badger store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.ScoringMode {
	case "random", "fixed":
	default:
		return fmt.Errorf("unknown SCORING_MODE %q", c.ScoringMode)
	}
	if c.ScanWorkers < 1 {
		return fmt.Errorf("SCAN_WORKERS must be at least 1")
	}
	if c.ScanTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("scan and analysis timeouts must be positive")
	}
	if c.RiskThreshold < 0 || c.RiskThreshold > 100 {
		return fmt.Errorf("RISK_THRESHOLD must be within 0..100")
	}
	return nil
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		_, err := fmt.Sscanf(v, "%d", &out)
		if err == nil {
			return out
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseFloat(v, 64); err == nil {
			return out
		}
	}
	return def
}

// getenvDuration accepts Go durations ("1500ms") or bare seconds ("15").
func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseBool(v); err == nil {
			return out
		}
	}
	return def
}
