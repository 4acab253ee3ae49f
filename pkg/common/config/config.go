package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	ServerPort      string        `yaml:"server_port"`
	ServerHost      string        `yaml:"server_host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body"`
	CORSOrigin      string        `yaml:"cors_origin"`
	RateLimitRPS    int           `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`

	// Database
	PostgresHost     string        `yaml:"postgres_host"`
	PostgresPort     string        `yaml:"postgres_port"`
	PostgresUser     string        `yaml:"postgres_user"`
	PostgresPassword string        `yaml:"postgres_password"`
	PostgresDB       string        `yaml:"postgres_db"`
	PostgresSSLMode  string        `yaml:"postgres_sslmode"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	SlowQuery        time.Duration `yaml:"slow_query"`
	AutoMigrate      bool          `yaml:"auto_migrate"`

	// Redis, empty host disables the catalog cache
	RedisHost           string        `yaml:"redis_host"`
	RedisPort           string        `yaml:"redis_port"`
	RedisPassword       string        `yaml:"redis_password"`
	RedisDB             int           `yaml:"redis_db"`
	CustomFieldCacheTTL time.Duration `yaml:"custom_field_cache_ttl"`

	// Kafka, empty topic disables change events
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroupID string   `yaml:"kafka_group_id"`
}

func defaults() *Config {
	return &Config{
		ServerPort:      "8000",
		ServerHost:      "0.0.0.0",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxRequestBody:  1 * 1024 * 1024,
		CORSOrigin:      "*",
		RateLimitRPS:    50,
		RateLimitBurst:  100,

		PostgresHost:    "localhost",
		PostgresPort:    "5432",
		PostgresUser:    "patients",
		PostgresDB:      "patients",
		PostgresSSLMode: "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		SlowQuery:       200 * time.Millisecond,
		AutoMigrate:     true,

		RedisPort:           "6379",
		CustomFieldCacheTTL: 5 * time.Minute,

		KafkaBrokers: []string{"localhost:9092"},
		KafkaGroupID: "patients-events-tail",
	}
}

// LoadWithFile layers defaults, the YAML file at path (if any) and then the
// environment, so environment variables always win. An empty path skips the
// file.
func LoadWithFile(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresDB,
		c.PostgresPort,
		c.PostgresSSLMode,
	)
}

func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func (c *Config) KafkaEnabled() bool {
	return c.KafkaTopic != "" && len(c.KafkaBrokers) > 0
}

func applyEnv(cfg *Config) {
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.ServerHost = getEnv("SERVER_HOST", cfg.ServerHost)
	cfg.ReadTimeout = getDuration("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getDuration("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.MaxRequestBody = int64(getIntEnv("MAX_REQUEST_BODY_BYTES", int(cfg.MaxRequestBody)))
	cfg.CORSOrigin = getEnv("CORS_ORIGIN", cfg.CORSOrigin)
	cfg.RateLimitRPS = getIntEnv("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = getIntEnv("RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.PostgresHost = getEnv("POSTGRES_HOST", cfg.PostgresHost)
	cfg.PostgresPort = getEnv("POSTGRES_PORT", cfg.PostgresPort)
	cfg.PostgresUser = getEnv("POSTGRES_USER", cfg.PostgresUser)
	cfg.PostgresPassword = getEnv("POSTGRES_PASSWORD", cfg.PostgresPassword)
	cfg.PostgresDB = getEnv("POSTGRES_DB", cfg.PostgresDB)
	cfg.PostgresSSLMode = getEnv("POSTGRES_SSLMODE", cfg.PostgresSSLMode)
	cfg.MaxOpenConns = getIntEnv("POSTGRES_MAX_OPEN_CONNS", cfg.MaxOpenConns)
	cfg.MaxIdleConns = getIntEnv("POSTGRES_MAX_IDLE_CONNS", cfg.MaxIdleConns)
	cfg.ConnMaxLifetime = getDuration("POSTGRES_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime)
	cfg.SlowQuery = getDuration("POSTGRES_SLOW_QUERY", cfg.SlowQuery)
	cfg.AutoMigrate = getBoolEnv("AUTO_MIGRATE", cfg.AutoMigrate)

	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnv("REDIS_PORT", cfg.RedisPort)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getIntEnv("REDIS_DB", cfg.RedisDB)
	cfg.CustomFieldCacheTTL = getDuration("CUSTOM_FIELD_CACHE_TTL", cfg.CustomFieldCacheTTL)

	cfg.KafkaBrokers = getStringSliceEnv("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaGroupID = getEnv("KAFKA_GROUP_ID", cfg.KafkaGroupID)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
