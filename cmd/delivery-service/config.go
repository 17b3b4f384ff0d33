package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fooddelivery/internal/app"
)

const (
	envGRPCAddr            = "FD_GRPC_ADDR"
	envHTTPAddr            = "FD_HTTP_ADDR"
	envMetricsAddr         = "FD_METRICS_ADDR"
	envStorageDriver       = "FD_STORAGE_DRIVER"
	envPostgresDSN         = "FD_POSTGRES_DSN"
	envPostgresAutoMigrate = "FD_POSTGRES_AUTO_MIGRATE"
	envJWTSecret           = "FD_JWT_SECRET"
	envNotifyDriver        = "FD_NOTIFY_DRIVER"
	envKafkaBrokers        = "FD_KAFKA_BROKERS"
	envKafkaGroup          = "FD_KAFKA_GROUP"
	envRabbitMQURL         = "FD_RABBITMQ_URL"
	envPublishTimeout      = "FD_PUBLISH_TIMEOUT"
	envShutdownTimeout     = "FD_SHUTDOWN_TIMEOUT"
	envSeedFile            = "FD_SEED_FILE"
	envLogLevel            = "LOG_LEVEL"
)

// envLookup совместим с os.LookupEnv.
type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректное значение оставляет значение по умолчанию и добавляет предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}

	stringVars := []struct {
		key string
		dst *string
	}{
		{envGRPCAddr, &cfg.GRPCAddr},
		{envHTTPAddr, &cfg.HTTPAddr},
		{envMetricsAddr, &cfg.MetricsAddr},
		{envPostgresDSN, &cfg.PostgresDSN},
		{envJWTSecret, &cfg.JWTSecret},
		{envKafkaGroup, &cfg.KafkaGroup},
		{envRabbitMQURL, &cfg.RabbitMQURL},
		{envSeedFile, &cfg.SeedFile},
	}
	for _, v := range stringVars {
		if value, ok := lookupTrimmed(lookup, v.key); ok {
			*v.dst = value
		}
	}

	if value, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(value)
	}
	if value, ok := lookupTrimmed(lookup, envNotifyDriver); ok {
		cfg.NotifyDriver = strings.ToLower(value)
	}
	if value, ok := lookupTrimmed(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(value)
	}

	if value, ok := lookupTrimmed(lookup, envPostgresAutoMigrate); ok {
		parsed, err := parseBool(value)
		if err != nil {
			warn(envPostgresAutoMigrate, value, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	positive := func(v time.Duration) bool { return v > 0 }
	durationVars := []struct {
		key string
		dst *time.Duration
	}{
		{envPublishTimeout, &cfg.PublishTimeout},
		{envShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, v := range durationVars {
		value, ok := lookupTrimmed(lookup, v.key)
		if !ok {
			continue
		}
		parsed, err := parseDuration(value, positive, "must be > 0")
		if err != nil {
			warn(v.key, value, err)
			continue
		}
		*v.dst = parsed
	}

	return cfg, warnings
}

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	value, ok := lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}
