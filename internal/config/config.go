package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Rabbit   RabbitConfig
	Queue    QueueConfig
	Engine   EngineConfig
	Payment  PaymentConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	MaxConns int
}

type RabbitConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
}

type QueueConfig struct {
	// Driver selects the queue backend: "rabbitmq" or "memory"
	// (memory is single-process, for local development).
	Driver string

	Name              string
	VisibilityTimeout time.Duration

	// DeliveryLimit is the receive count after which the broker
	// dead-letters a message.
	DeliveryLimit int
}

type EngineConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	ReceiveWait     time.Duration
	StepTimeout     time.Duration
	ReprocessWindow time.Duration
	StatsWindow     time.Duration
}

type PaymentConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Load reads configuration from the environment, with an optional .env file
// for local development. Missing optional values fall back to defaults.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: getEnv("DB_NAME", "school_meals"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
		},
		Rabbit: RabbitConfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnvAsInt("RABBITMQ_PORT", 5672),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:    getEnv("RABBITMQ_VHOST", "/"),
		},
		Queue: QueueConfig{
			Driver:            getEnv("QUEUE_DRIVER", "rabbitmq"),
			Name:              getEnv("QUEUE_NAME", "order_fulfillment"),
			VisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 30*time.Second),
			DeliveryLimit:     getEnvAsInt("QUEUE_DELIVERY_LIMIT", 5),
		},
		Engine: EngineConfig{
			PollInterval:    getEnvAsDuration("ENGINE_POLL_INTERVAL", 5*time.Second),
			BatchSize:       getEnvAsInt("ENGINE_BATCH_SIZE", 10),
			ReceiveWait:     getEnvAsDuration("ENGINE_RECEIVE_WAIT", 5*time.Second),
			StepTimeout:     getEnvAsDuration("ENGINE_STEP_TIMEOUT", 10*time.Second),
			ReprocessWindow: getEnvAsDuration("ENGINE_REPROCESS_WINDOW", 24*time.Hour),
			StatsWindow:     getEnvAsDuration("ENGINE_STATS_WINDOW", 24*time.Hour),
		},
		Payment: PaymentConfig{
			BaseURL: getEnv("PAYMENT_BASE_URL", "http://localhost:8090"),
			APIKey:  os.Getenv("PAYMENT_API_KEY"),
			Timeout: getEnvAsDuration("PAYMENT_TIMEOUT", 5*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "" {
		return fmt.Errorf("database config incomplete")
	}
	switch c.Queue.Driver {
	case "rabbitmq":
		if c.Rabbit.Host == "" || c.Rabbit.User == "" {
			return fmt.Errorf("rabbitmq config incomplete")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown queue driver %q", c.Queue.Driver)
	}
	if c.Engine.BatchSize <= 0 {
		return fmt.Errorf("engine batch size must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
