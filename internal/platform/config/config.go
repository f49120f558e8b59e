package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures every tunable surface of the broker. FromEnv keeps main lean.
type Config struct {
	Addr        string
	SigningKey  string
	JWTSecret   string
	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// Contract validation.
	ClockSkewTolerance time.Duration
	MetadataMaxBytes   int

	// Compliance engine.
	WarningLimit  int
	WarningWindow time.Duration

	// Subscription delivery.
	AckSLA           time.Duration
	DeliveryAttempts int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration

	// Trust-gated automation.
	TrustThreshold  int64
	ProtectedBranch string
	GovernanceMajor int
	VotingWindow    time.Duration
	DeployAPIURL    string
	RepoHostURL     string
	RepoHostToken   string

	// Rate limiting.
	RateLimit       int
	RateLimitWindow time.Duration
}

// RedisConfig holds connection settings for the rate-limit store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the best-effort ledger mirror.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables with development defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:               envString("PINKSYNC_ADDR", ":8080"),
		SigningKey:         envString("PINKSYNC_SIGNING_KEY", "dev-signing-key-change-in-production"),
		JWTSecret:          envString("PINKSYNC_JWT_SECRET", "dev-jwt-secret-change-in-production"),
		PostgresURL:        os.Getenv("PINKSYNC_POSTGRES_URL"),
		ClockSkewTolerance: envDuration("PINKSYNC_CLOCK_SKEW", 5*time.Minute),
		MetadataMaxBytes:   envInt("PINKSYNC_METADATA_MAX_BYTES", 8192),
		WarningLimit:       envInt("COMPLIANCE_WARNING_LIMIT", 3),
		WarningWindow:      envDuration("COMPLIANCE_WARNING_WINDOW", 30*24*time.Hour),
		AckSLA:             envDuration("DELIVERY_ACK_SLA", time.Second),
		DeliveryAttempts:   envInt("DELIVERY_MAX_ATTEMPTS", 5),
		BackoffInitial:     envDuration("BACKOFF_INITIAL", 200*time.Millisecond),
		BackoffMax:         envDuration("BACKOFF_MAX", 30*time.Second),
		TrustThreshold:     int64(envInt("TRUST_THRESHOLD", 70)),
		ProtectedBranch:    envString("PROTECTED_BRANCH", "main"),
		GovernanceMajor:    envInt("GOVERNANCE_MAJOR_THRESHOLD", 1),
		VotingWindow:       envDuration("GOVERNANCE_VOTING_WINDOW", 7*24*time.Hour),
		DeployAPIURL:       os.Getenv("DEPLOY_API_URL"),
		RepoHostURL:        os.Getenv("REPO_HOST_URL"),
		RepoHostToken:      os.Getenv("REPO_HOST_TOKEN"),
		RateLimit:          envInt("RATE_LIMIT", 120),
		RateLimitWindow:    envDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("PINKSYNC_REDIS_URL"),
		PoolSize:     envInt("REDIS_POOL_SIZE", 10),
		DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}

	if brokers := os.Getenv("PINKSYNC_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = KafkaConfig{
			Brokers: strings.Split(brokers, ","),
			Topic:   envString("PINKSYNC_KAFKA_TOPIC", "pinksync.ledger"),
		}
	}

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
