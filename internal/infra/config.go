package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment
// variables. Both binaries share one struct; each validates only the
// sections it depends on.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	LogLevel    string

	// Generation provider.
	StableAudioAPIURL string
	StableAudioAPIKey string

	// Worker loop.
	MaxConcurrentJobs int
	PollInterval      time.Duration
	JobTimeout        time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	ShutdownGrace     time.Duration

	// Artifact storage.
	StorageBucket     string
	StoragePathPrefix string
	S3Endpoint        string
	S3AccessKey       string
	S3SecretKey       string
	S3UseSSL          bool
	StoragePath       string
	StorageBaseURL    string

	// Gateway extras.
	AllowedOrigins   []string
	GeoIPDBPath      string
	DefaultLocale    string
	RateLimitPerMin  int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig reads every setting, applying defaults where the environment is
// silent. It never fails: callers validate with ValidateAPI or
// ValidateWorker, which report all violations at once.
func LoadConfig() *Config {
	return &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StableAudioAPIURL: getEnv("STABLE_AUDIO_API_URL", "https://api.stability.ai/v2beta/stable-audio"),
		StableAudioAPIKey: os.Getenv("STABLE_AUDIO_API_KEY"),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 2),
		PollInterval:      getEnvMillis("POLL_INTERVAL_MS", 5000),
		JobTimeout:        getEnvMillis("JOB_TIMEOUT_MS", 300000),
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		RetryDelay:        getEnvMillis("RETRY_DELAY_MS", 2000),
		ShutdownGrace:     getEnvMillis("SHUTDOWN_GRACE_MS", 5000),

		StorageBucket:     getEnv("STORAGE_BUCKET", "audio-files"),
		StoragePathPrefix: getEnv("STORAGE_PATH_PREFIX", "generated"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:          getEnvBool("S3_USE_SSL", false),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		AllowedOrigins:   splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:    getEnv("DEFAULT_LOCALE", "en"),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}
}

// ValidateAPI checks the settings the gateway binary depends on.
func (c *Config) ValidateAPI() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}
	if c.RateLimitPerMin < 1 {
		errs = append(errs, "RATE_LIMIT_PER_MINUTE must be at least 1")
	}
	return validationError(errs)
}

// ValidateWorker checks the settings the worker binary depends on. Every
// violation is reported; an invalid configuration is a hard startup failure.
func (c *Config) ValidateWorker() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if !isValidURL(c.StableAudioAPIURL) {
		errs = append(errs, "STABLE_AUDIO_API_URL must be a valid http(s) URL")
	}
	if strings.TrimSpace(c.StableAudioAPIKey) == "" {
		errs = append(errs, "STABLE_AUDIO_API_KEY is required")
	}
	if c.MaxConcurrentJobs < 1 || c.MaxConcurrentJobs > 10 {
		errs = append(errs, "MAX_CONCURRENT_JOBS must be between 1 and 10")
	}
	if c.PollInterval < time.Second {
		errs = append(errs, "POLL_INTERVAL_MS must be at least 1000ms")
	}
	if c.JobTimeout < 10*time.Second {
		errs = append(errs, "JOB_TIMEOUT_MS must be at least 10000ms")
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		errs = append(errs, "MAX_RETRIES must be between 0 and 10")
	}
	if c.RetryDelay <= 0 {
		errs = append(errs, "RETRY_DELAY_MS must be positive")
	}
	if strings.TrimSpace(c.StorageBucket) == "" {
		errs = append(errs, "STORAGE_BUCKET is required")
	}
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		errs = append(errs, "S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT is set")
	}
	return validationError(errs)
}

func validationError(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
}

func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Millisecond * time.Duration(getEnvInt(key, fallback))
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
