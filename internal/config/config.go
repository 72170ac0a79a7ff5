package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "dev-secret-change-me"

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// StoreDriver selects job/notification storage: postgres or memory.
	StoreDriver string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// AWS Services. Empty queue/topic/sender/bucket disables the service.
	AWSRegion    string
	AWSEndpoint  string // LocalStack for SQS and SNS
	SQSQueueURL  string
	SNSTopicARN  string
	SESFromEmail string
	S3Bucket     string
	S3Endpoint   string
	UploadURLTTL time.Duration

	// Auth
	JWTSecret      string
	JWTIssuer      string
	JWTTTL         time.Duration
	CallbackSecret string
	PublicBaseURL  string

	// Generation provider: simulated or webhook
	Provider            string
	ProviderURL         string
	ProviderTimeout     time.Duration
	SimulatedFailure    float64
	WorkerPollInterval  time.Duration
	WorkerBatchSize     int
	WorkerMaxAttempts   int
	WorkerClaimLease    time.Duration
	JobDeadline         time.Duration
	BreakerMaxFailures  int
	BreakerRecoveryTime time.Duration

	// AI / OpenAI config
	AIEnabled       bool
	OpenAIAPIKey    string
	OpenAIModel     string
	ChatRevealDelay time.Duration

	// Notification simulator
	SimulateNotifications bool
	NotificationTick      time.Duration
	NotificationChance    float64

	// Rate limiting per user
	RateLimit       int
	RateLimitWindow time.Duration
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:        8080,
		LogLevel:    "info",
		Env:         "development",
		StoreDriver: "postgres",

		// Local postgres defaults
		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "clipforge",
		DBName:    "clipforge",
		DBSSLMode: "disable",

		// Redis defaults
		RedisHost: "localhost",
		RedisPort: 6379,

		AWSRegion:    "us-east-1",
		UploadURLTTL: 15 * time.Minute,

		JWTSecret:     devJWTSecret,
		JWTIssuer:     "clipforge",
		JWTTTL:        24 * time.Hour,
		PublicBaseURL: "http://localhost:8080",

		Provider:            "simulated",
		ProviderTimeout:     30 * time.Second,
		SimulatedFailure:    0.1,
		WorkerPollInterval:  2 * time.Second,
		WorkerBatchSize:     10,
		WorkerMaxAttempts:   3,
		WorkerClaimLease:    5 * time.Minute,
		JobDeadline:         30 * time.Minute,
		BreakerMaxFailures:  5,
		BreakerRecoveryTime: 30 * time.Second,

		OpenAIModel:     "gpt-4o-mini",
		ChatRevealDelay: 20 * time.Millisecond,

		NotificationTick:   30 * time.Second,
		NotificationChance: 0.1,

		RateLimit:       100,
		RateLimitWindow: time.Minute,
	}

	texts := []struct {
		key string
		dst *string
	}{
		{"LOG_LEVEL", &cfg.LogLevel},
		{"ENV", &cfg.Env},
		{"STORE_DRIVER", &cfg.StoreDriver},
		{"DB_HOST", &cfg.DBHost},
		{"DB_USER", &cfg.DBUser},
		{"DB_PASSWORD", &cfg.DBPassword},
		{"DB_NAME", &cfg.DBName},
		{"DB_SSLMODE", &cfg.DBSSLMode},
		{"REDIS_HOST", &cfg.RedisHost},
		{"REDIS_PASSWORD", &cfg.RedisPassword},
		{"AWS_REGION", &cfg.AWSRegion},
		{"AWS_ENDPOINT", &cfg.AWSEndpoint},
		{"SQS_QUEUE_URL", &cfg.SQSQueueURL},
		{"SNS_TOPIC_ARN", &cfg.SNSTopicARN},
		{"SES_FROM_EMAIL", &cfg.SESFromEmail},
		{"S3_BUCKET", &cfg.S3Bucket},
		{"S3_ENDPOINT", &cfg.S3Endpoint},
		{"JWT_SECRET", &cfg.JWTSecret},
		{"JWT_ISSUER", &cfg.JWTIssuer},
		{"CALLBACK_SECRET", &cfg.CallbackSecret},
		{"PUBLIC_BASE_URL", &cfg.PublicBaseURL},
		{"PROVIDER", &cfg.Provider},
		{"PROVIDER_URL", &cfg.ProviderURL},
		{"OPENAI_API_KEY", &cfg.OpenAIAPIKey},
		{"OPENAI_MODEL", &cfg.OpenAIModel},
	}
	for _, s := range texts {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &cfg.Port},
		{"DB_PORT", &cfg.DBPort},
		{"REDIS_PORT", &cfg.RedisPort},
		{"REDIS_DB", &cfg.RedisDB},
		{"WORKER_BATCH_SIZE", &cfg.WorkerBatchSize},
		{"WORKER_MAX_ATTEMPTS", &cfg.WorkerMaxAttempts},
		{"BREAKER_MAX_FAILURES", &cfg.BreakerMaxFailures},
		{"RATE_LIMIT", &cfg.RateLimit},
	}
	for _, i := range ints {
		if v := os.Getenv(i.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", i.key, err)
			}
			*i.dst = n
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"UPLOAD_URL_TTL", &cfg.UploadURLTTL},
		{"JWT_TTL", &cfg.JWTTTL},
		{"PROVIDER_TIMEOUT", &cfg.ProviderTimeout},
		{"WORKER_POLL_INTERVAL", &cfg.WorkerPollInterval},
		{"WORKER_CLAIM_LEASE", &cfg.WorkerClaimLease},
		{"JOB_DEADLINE", &cfg.JobDeadline},
		{"BREAKER_RECOVERY_TIMEOUT", &cfg.BreakerRecoveryTime},
		{"CHAT_REVEAL_DELAY", &cfg.ChatRevealDelay},
		{"NOTIFICATION_TICK", &cfg.NotificationTick},
		{"RATE_LIMIT_WINDOW", &cfg.RateLimitWindow},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"SIMULATED_FAILURE_RATE", &cfg.SimulatedFailure},
		{"NOTIFICATION_CHANCE", &cfg.NotificationChance},
	}
	for _, f := range floats {
		if v := os.Getenv(f.key); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", f.key, err)
			}
			if parsed < 0 || parsed > 1 {
				return nil, fmt.Errorf("invalid %s: must be between 0 and 1", f.key)
			}
			*f.dst = parsed
		}
	}

	if v := os.Getenv("SIMULATE_NOTIFICATIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SIMULATE_NOTIFICATIONS: %w", err)
		}
		cfg.SimulateNotifications = b
	}

	// AI features switch on with the key
	cfg.AIEnabled = cfg.OpenAIAPIKey != ""

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.StoreDriver != "postgres" && c.StoreDriver != "memory" {
		errs = append(errs, fmt.Errorf("invalid STORE_DRIVER %q: must be postgres or memory", c.StoreDriver))
	}
	if c.Provider != "simulated" && c.Provider != "webhook" {
		errs = append(errs, fmt.Errorf("invalid PROVIDER %q: must be simulated or webhook", c.Provider))
	}
	if c.Provider == "webhook" {
		if c.ProviderURL == "" {
			errs = append(errs, errors.New("PROVIDER_URL is required when PROVIDER=webhook"))
		}
		if c.CallbackSecret == "" {
			errs = append(errs, errors.New("CALLBACK_SECRET is required when PROVIDER=webhook"))
		}
	}
	if c.IsProduction() && c.JWTSecret == devJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.WorkerMaxAttempts < 1 {
		errs = append(errs, errors.New("WORKER_MAX_ATTEMPTS must be at least 1"))
	}
	if c.WorkerClaimLease <= 0 || c.JobDeadline <= c.WorkerClaimLease {
		errs = append(errs, fmt.Errorf("JOB_DEADLINE (%s) must be longer than WORKER_CLAIM_LEASE (%s)", c.JobDeadline, c.WorkerClaimLease))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
