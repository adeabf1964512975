package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port               string
	LogLevel           string
	JWTSecret          string
	JWTAlgorithm       string
	TokenExpiryMinutes int
	MQTTBrokerURL      string
	MQTTClientID       string
	Postgres           DBConfig
}

type DBConfig struct {
	User     string
	Password string
	DBName   string
	Host     string
	Port     string
	SSLMode  string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTAlgorithm:       strings.TrimSpace(os.Getenv("JWT_ALGORITHM")),
		TokenExpiryMinutes: parseInt(getEnv("ACCESS_TOKEN_EXPIRE_MINUTES", "30"), 30),
		MQTTBrokerURL:      strings.TrimSpace(os.Getenv("MQTT_BROKER_URL")),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "waterquality-service"),
		Postgres: DBConfig{
			User:     strings.TrimSpace(os.Getenv("POSTGRES_USER")),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   strings.TrimSpace(os.Getenv("POSTGRES_DB")),
			Host:     strings.TrimSpace(os.Getenv("POSTGRES_HOST")),
			Port:     strings.TrimSpace(os.Getenv("POSTGRES_PORT")),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
	}

	slog.Info("config loaded", "port", cfg.Port, "mqtt", cfg.MQTTBrokerURL, "db_host", cfg.Postgres.Host)
	return cfg
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseInt(val string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
