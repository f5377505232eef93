package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all tunables for the queue engine and its ambient services.
// Values mirror spec.md §6's configuration list plus the connection settings
// needed to wire the Postgres/Redis/etcd/tracing backends.
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost string
	RedisPort string

	EtcdEndpoints     []string
	LeaderElectionTTL int

	APIPort           string
	WorkerConcurrency int

	// Auth settings
	JWTSecret   string
	JWTIssuer   string
	AuthEnabled bool

	// Tracing
	OTLPEndpoint string
	TracingRatio float64

	// --- Queue engine tunables (spec.md §6) ---

	MaxRetries             int
	LeaseDuration          time.Duration
	DispatchBatchSize      int
	DispatchInterval       time.Duration
	ReaperInterval         time.Duration
	CompletedRetentionDays int
	FailedRetentionDays    int
	HighPriorityThreshold  int
}

func LoadConfig() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "taskforge"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "taskforge"),

		RedisHost: getEnv("REDIS_HOST", "localhost"),
		RedisPort: getEnv("REDIS_PORT", "6379"),

		EtcdEndpoints:     []string{getEnv("ETCD_ENDPOINTS", "localhost:2379")},
		LeaderElectionTTL: getEnvAsInt("LEADER_ELECTION_TTL", 15),

		APIPort:           getEnv("API_PORT", "8080"),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 10),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "taskforge"),
		AuthEnabled: getEnvAsBool("AUTH_ENABLED", false),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4318"),
		TracingRatio: getEnvAsFloat("TRACING_SAMPLE_RATIO", 1.0),

		MaxRetries:             getEnvAsInt("MAX_RETRIES", 5),
		LeaseDuration:          getEnvAsDuration("LEASE_DURATION", 300*time.Second),
		DispatchBatchSize:      getEnvAsInt("DISPATCH_BATCH_SIZE", 10),
		DispatchInterval:       getEnvAsDuration("DISPATCH_INTERVAL", 10*time.Second),
		ReaperInterval:         getEnvAsDuration("REAPER_INTERVAL", 30*time.Second),
		CompletedRetentionDays: getEnvAsInt("COMPLETED_RETENTION_DAYS", 7),
		FailedRetentionDays:    getEnvAsInt("FAILED_RETENTION_DAYS", 30),
		HighPriorityThreshold:  getEnvAsInt("HIGH_PRIORITY_THRESHOLD", 3),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
