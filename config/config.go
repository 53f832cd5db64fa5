// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string

	// Secret Codec
	MasterSecret  string
	SecretBackend string // local | gcpkms
	KMSKeyName    string

	// Transport
	Transport        string // smtp | relay
	SMTPAddr         string
	RelayURL         string
	RelayToken       string
	TransportTimeout time.Duration

	// Retry Scheduler
	RetryInterval  time.Duration
	RetryBatchSize int
	MaxRetries     int
	Backoff        []time.Duration

	// Observability
	OtelEnabled        bool
	OtelEndpoint       string
	OtelServiceName    string
	OtelSamplingRate   float64
	GoogleCloudProject string
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),

		MasterSecret:  os.Getenv("MASTER_SECRET"),
		SecretBackend: getEnv("SECRET_BACKEND", "local"),
		KMSKeyName:    os.Getenv("KMS_KEY_NAME"),

		Transport:        getEnv("TRANSPORT", "smtp"),
		SMTPAddr:         getEnv("SMTP_ADDR", "127.0.0.1:25"),
		RelayURL:         os.Getenv("RELAY_URL"),
		RelayToken:       os.Getenv("RELAY_TOKEN"),
		TransportTimeout: getEnvDuration("TRANSPORT_TIMEOUT", 30*time.Second),

		RetryInterval:  getEnvDuration("RETRY_INTERVAL", time.Minute),
		RetryBatchSize: getEnvInt("RETRY_BATCH_SIZE", 50),
		MaxRetries:     getEnvInt("MAX_RETRIES", 5),
		Backoff:        getEnvBackoff("BACKOFF_SCHEDULE", []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}),

		OtelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "mail-delivery-service"),
		OtelSamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
	}
}

// Validate は起動に必須の設定が揃っているか検証する。
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.SecretBackend {
	case "local":
		if c.MasterSecret == "" {
			return fmt.Errorf("MASTER_SECRET is required when SECRET_BACKEND=local")
		}
	case "gcpkms":
		if c.KMSKeyName == "" {
			return fmt.Errorf("KMS_KEY_NAME is required when SECRET_BACKEND=gcpkms")
		}
	default:
		return fmt.Errorf("unknown SECRET_BACKEND %q", c.SecretBackend)
	}
	if c.Transport == "relay" && c.RelayURL == "" {
		return fmt.Errorf("RELAY_URL is required when TRANSPORT=relay")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if len(c.Backoff) == 0 {
		return fmt.Errorf("BACKOFF_SCHEDULE must not be empty")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvBackoff はカンマ区切りのDuration列を読み込む。
// 例: "1m,5m,15m"
func getEnvBackoff(key string, defaultVal []time.Duration) []time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []time.Duration
	for _, part := range strings.Split(val, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return defaultVal
		}
		out = append(out, d)
	}
	return out
}
