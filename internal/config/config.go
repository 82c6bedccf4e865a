package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	Port          string
	MongoURI      string
	MongoDatabase string

	// RedisAddr enables the Redis Streams bus; when empty the in-process
	// bus is used instead.
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	BusConsumer   string

	OtpCodeLength  int
	OtpTTL         time.Duration
	OtpMaxAttempts int

	SweepInterval time.Duration
	SweepDeadline time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

const (
	defaultPort           = "8080"
	defaultMongoDatabase  = "walletpaydb"
	defaultOtpCodeLength  = 6
	defaultOtpTTL         = 5 * time.Minute
	defaultOtpMaxAttempts = 3
	defaultSweepInterval  = time.Minute
	defaultSweepDeadline  = 5 * time.Minute
	defaultSMTPPort       = 587
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "walletpay"
	}

	cfg := Config{
		Port:          valueOrDefault("PORT", defaultPort),
		MongoURI:      os.Getenv("MONGOURI"),
		MongoDatabase: valueOrDefault("MONGO_DATABASE", defaultMongoDatabase),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		BusConsumer:   valueOrDefault("BUS_CONSUMER", hostname),

		OtpCodeLength:  parseIntWithDefault("OTP_CODE_LENGTH", defaultOtpCodeLength),
		OtpMaxAttempts: parseIntWithDefault("OTP_MAX_ATTEMPTS", defaultOtpMaxAttempts),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     parseIntWithDefault("SMTP_PORT", defaultSMTPPort),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     valueOrDefault("SMTP_FROM", "no-reply@walletpay.local"),
	}

	var err error
	if cfg.OtpTTL, err = parseDurationWithDefault("OTP_TTL", defaultOtpTTL); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = parseDurationWithDefault("SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.SweepDeadline, err = parseDurationWithDefault("SWEEP_DEADLINE", defaultSweepDeadline); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return d, nil
}
