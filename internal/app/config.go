package app

import (
	"errors"
	"fmt"
	"time"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Драйверы шины уведомлений.
const (
	NotifyDriverMemory   = "memory"
	NotifyDriverKafka    = "kafka"
	NotifyDriverRabbitMQ = "rabbitmq"
)

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// JWTSecret подписывает и проверяет токены x-jwt.
	JWTSecret string

	NotifyDriver   string
	KafkaBrokers   []string
	KafkaGroup     string
	RabbitMQURL    string
	PublishTimeout time.Duration

	ShutdownTimeout time.Duration
	// SeedFile: JSON с пользователями, ресторанами и блюдами для стенда; пустой отключает загрузку.
	SeedFile string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		JWTSecret:           "dev-secret-change-me",
		NotifyDriver:        NotifyDriverMemory,
		KafkaGroup:          "fooddelivery-notify",
		PublishTimeout:      3 * time.Second,
		ShutdownTimeout:     5 * time.Second,
	}
}

// Validate проверяет согласованность настроек до старта компонентов.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres storage requires a DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver: %q", c.StorageDriver))
	}

	switch c.NotifyDriver {
	case NotifyDriverMemory:
	case NotifyDriverKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka notify driver requires brokers"))
		}
	case NotifyDriverRabbitMQ:
		if c.RabbitMQURL == "" {
			errs = append(errs, errors.New("rabbitmq notify driver requires a URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported notify driver: %q", c.NotifyDriver))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	return errors.Join(errs...)
}
