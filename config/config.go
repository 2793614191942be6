package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the server reads from the environment. Values not
// set fall back to development defaults so a bare `go run .` works against a
// local Postgres and Redis.
type Config struct {
	Port string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisURL string

	// Base URL of the CDN/storage host that serves HLS manifests and segments.
	StreamBaseURL string
	// How long signed stream URLs stay valid.
	StreamURLTTL time.Duration

	// WebSocket liveness: a connection missing HeartbeatMisses consecutive
	// intervals is dropped from its room.
	HeartbeatInterval time.Duration
	HeartbeatMisses   int

	LogLevel string
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "kiko"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		StreamBaseURL: getEnv("STREAM_BASE_URL", "http://localhost:9000/audio-files"),
		StreamURLTTL:  getDuration("STREAM_URL_TTL", 4*time.Hour),

		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		HeartbeatMisses:   getInt("HEARTBEAT_MISSES", 2),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
