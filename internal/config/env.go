package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DatabaseURL string
	DBBackend   string // pgx | gorm
	DBDriver    string // gorm only: sqlite | postgres
	SslCertPath string

	JWTSecret string
	JWTTTL    time.Duration

	WebhookSecret             string
	WebhookSignatureHeader    string
	WebhookTimestampTolerance time.Duration
	WebhookFallbackScanLimit  int

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	S3Endpoint   string // optional, for S3-compatible stores
	S3PathStyle  bool

	CORSOrigins []string

	LogFile  string
	LogLevel slog.Level
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBBackend:   strings.ToLower(getEnv("DB_BACKEND", "pgx")),
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		WebhookSecret:             strings.TrimSpace(getEnv("ELEVENLABS_WEBHOOK_SECRET", "")),
		WebhookSignatureHeader:    getEnv("WEBHOOK_SIGNATURE_HEADER", "X-Signature"),
		WebhookTimestampTolerance: getEnvDuration("WEBHOOK_TIMESTAMP_TOLERANCE", 30*time.Minute),
		WebhookFallbackScanLimit:  getEnvInt("WEBHOOK_FALLBACK_SCAN_LIMIT", 50),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "parley-assets"),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3PathStyle:  getEnvBool("S3_USE_PATH_STYLE", false),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),

		LogFile:  getEnv("LOG_FILE", "/tmp/parley.log"),
		LogLevel: parseLogLevel(getEnv("LOG_LEVEL", "INFO")),
	}
}

// Validate reports missing required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET not set"))
	}
	switch c.DBBackend {
	case "pgx", "gorm":
	default:
		errs = append(errs, errors.New("DB_BACKEND must be pgx or gorm"))
	}
	return errors.Join(errs...)
}

// ObjectStorageEnabled reports whether S3 credentials were provided.
func (c *Config) ObjectStorageEnabled() bool {
	return c.AwsAccessKey != "" && c.AwsSecretKey != ""
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config value is not a bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
