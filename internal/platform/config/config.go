package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the sync engine reads from the environment.
// FromEnv builds it with development defaults so main stays lean; production
// overrides everything via env.
type Config struct {
	Source     Source
	Database   Database
	Redis      Redis
	Kafka      Kafka
	Ops        Ops
	Sync       Sync
	Checkpoint Checkpoint
	Report     Report
}

// Source configures the external case-management API client.
type Source struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	PageSize     int
	PageTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	FetchWorkers int
}

// Database configures the target analytics store.
type Database struct {
	URL string
}

// Redis configures the optional run-lock client. Empty URL disables it.
type Redis struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

// Kafka configures the optional run-event publisher. No brokers disables it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Ops configures the observability side door (health, metrics, run history).
type Ops struct {
	Addr string
}

// Sync holds pipeline tuning knobs.
type Sync struct {
	BatchSizes         BatchSizes
	ReadinessQuestions []string
	ReadinessMinCount  int
}

// BatchSizes sets the writer flush threshold per table.
type BatchSizes struct {
	Institutions int
	Persons      int
	Advisors     int
	Staff        int
	Scores       int
	Responses    int
}

// Checkpoint configures the resumable-cursor artifact.
type Checkpoint struct {
	Path string
}

// Report configures end-of-run artifacts.
type Report struct {
	Dir string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Source: Source{
			BaseURL:      envString("SOURCE_BASE_URL", "http://localhost:9000"),
			APIKey:       os.Getenv("SOURCE_API_KEY"),
			APISecret:    os.Getenv("SOURCE_API_SECRET"),
			PageSize:     envInt("SOURCE_PAGE_SIZE", 200),
			PageTimeout:  envDuration("SOURCE_PAGE_TIMEOUT", 30*time.Second),
			MaxRetries:   envInt("SOURCE_MAX_RETRIES", 3),
			RetryBackoff: envDuration("SOURCE_RETRY_BACKOFF", 2*time.Second),
			FetchWorkers: envInt("SOURCE_FETCH_WORKERS", 4),
		},
		Database: Database{
			URL: envString("DATABASE_URL", "postgres://localhost:5432/scoresync?sslmode=disable"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      envDuration("SYNC_LOCK_TTL", 2*time.Hour),
		},
		Kafka: Kafka{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_SYNC_TOPIC", "scoresync.runs"),
		},
		Ops: Ops{
			Addr: envString("OPS_ADDR", ":9090"),
		},
		Sync: Sync{
			BatchSizes: BatchSizes{
				Institutions: envInt("BATCH_SIZE_INSTITUTIONS", 50),
				Persons:      envInt("BATCH_SIZE_PERSONS", 200),
				Advisors:     envInt("BATCH_SIZE_ADVISORS", 100),
				Staff:        envInt("BATCH_SIZE_STAFF", 100),
				Scores:       envInt("BATCH_SIZE_SCORES", 200),
				Responses:    envInt("BATCH_SIZE_RESPONSES", 500),
			},
			ReadinessQuestions: envListDefault("READINESS_QUESTIONS", []string{"Q31", "Q32", "Q33"}),
			ReadinessMinCount:  envInt("READINESS_MIN_COUNT", 11),
		},
		Checkpoint: Checkpoint{
			Path: envString("CHECKPOINT_PATH", ".scoresync-checkpoint.json"),
		},
		Report: Report{
			Dir: envString("REPORT_DIR", "reports"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envListDefault(key string, fallback []string) []string {
	if v := envList(key); len(v) > 0 {
		return v
	}
	return fallback
}
