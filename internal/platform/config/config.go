// Package config builds the service configuration from environment variables
// so main stays lean. Every knob has a development-safe default; production
// deployments override through the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/strings"
)

// Config is the full configuration surface of the KYC engine.
type Config struct {
	Server    Server
	Database  Database
	Redis     RedisConfig
	Blob      BlobConfig
	Pairing   PairingConfig
	Capture   CaptureConfig
	Engine    EngineConfig
	Kafka     KafkaConfig
	Retention RetentionConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// BaseURL is the externally reachable URL of this service, used to build
	// capture handoff links and QR payloads.
	BaseURL       string
	JWTSigningKey string
	LogLevel      string
}

// Database holds PostgreSQL settings. An empty URL selects the in-memory
// stores (dev/test mode).
type Database struct {
	URL string
	// ProfileURL points at the loan platform's application database where
	// accepted verification evidence is attached. Falls back to URL when
	// unset, and to the in-memory profile store when both are empty.
	ProfileURL string
}

// RedisConfig holds Redis connection settings. An empty URL selects the
// in-memory pairing credential store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// BlobConfig selects and configures the artifact blob backend.
type BlobConfig struct {
	// Backend is "memory" or "s3".
	Backend      string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	SignedURLTTL time.Duration
}

// PairingConfig governs capture handoff credentials.
type PairingConfig struct {
	// TokenTTL is the single deadline for the whole capture phase.
	TokenTTL time.Duration
}

// CaptureConfig bounds artifact uploads.
type CaptureConfig struct {
	MaxUploadBytes int64
}

// EngineConfig points at the external verification scorers and secures the
// decision callback. Empty URLs disable the in-process decision worker; an
// out-of-process engine then drives sessions via the callback endpoint.
type EngineConfig struct {
	OCRURL         string
	FaceMatchURL   string
	LivenessURL    string
	RequestTimeout time.Duration
	WorkerInterval time.Duration
	// KeyHash is the bcrypt hash of the engine API key. When empty, a key is
	// generated at startup and logged once.
	KeyHash string
}

// KafkaConfig configures the optional audit event sink. Empty brokers
// disable it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RetentionConfig governs expiry sweeping and terminal-session purging.
type RetentionConfig struct {
	Window        time.Duration
	SweepInterval time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envOr("KYC_ADDR", ":8080"),
			BaseURL:       strings.TrimRight(envOr("KYC_BASE_URL", "http://localhost:8080"), "/"),
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			LogLevel:      envOr("LOG_LEVEL", "info"),
		},
		Database: Database{
			URL:        os.Getenv("DATABASE_URL"),
			ProfileURL: os.Getenv("PROFILE_DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envOrInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envOrInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envOrDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envOrDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envOrDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Blob: BlobConfig{
			Backend:      envOr("BLOB_BACKEND", "memory"),
			S3Bucket:     os.Getenv("S3_BUCKET"),
			S3Region:     envOr("S3_REGION", "ap-southeast-1"),
			S3Endpoint:   os.Getenv("S3_ENDPOINT"),
			SignedURLTTL: envOrDuration("BLOB_SIGNED_URL_TTL", 15*time.Minute),
		},
		Pairing: PairingConfig{
			TokenTTL: envOrDuration("PAIRING_TOKEN_TTL", 10*time.Minute),
		},
		Capture: CaptureConfig{
			MaxUploadBytes: envOrInt64("MAX_UPLOAD_BYTES", 8<<20),
		},
		Engine: EngineConfig{
			OCRURL:         os.Getenv("OCR_ENGINE_URL"),
			FaceMatchURL:   os.Getenv("FACE_MATCH_ENGINE_URL"),
			LivenessURL:    os.Getenv("LIVENESS_ENGINE_URL"),
			RequestTimeout: envOrDuration("ENGINE_REQUEST_TIMEOUT", 30*time.Second),
			WorkerInterval: envOrDuration("DECISION_WORKER_INTERVAL", 5*time.Second),
			KeyHash:        os.Getenv("ENGINE_KEY_HASH"),
		},
		Kafka: KafkaConfig{
			Brokers: platformstrings.DedupeAndTrim(strings.Split(os.Getenv("KAFKA_BROKERS"), ",")),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "kyc.audit"),
		},
		Retention: RetentionConfig{
			Window:        envOrDuration("RETENTION_WINDOW", 30*24*time.Hour),
			SweepInterval: envOrDuration("SWEEP_INTERVAL", time.Minute),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

