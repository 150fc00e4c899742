package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

var ErrLiveKeyRejected = errors.New("stripe key must be a test-mode secret key (sk_test_)")

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint   string
	PushgatewayURL string

	Stripe     StripeConfig
	Sink       SinkConfig
	ClickHouse ClickHouseConfig
	Retry      RetryConfig
	Simulator  SimulatorConfig

	ScenarioFile string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	DBPath     string
}

type StripeConfig struct {
	SecretKey       string
	RequestInterval time.Duration
}

type SinkConfig struct {
	Driver    string
	BatchSize int
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type SimulatorConfig struct {
	Workers           int
	SettleDelay       time.Duration
	ClockReadyTimeout time.Duration
	ClockPollInterval time.Duration
}

const (
	SinkDriverClickHouse = "clickhouse"
	SinkDriverSQL        = "sql"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getenv("APP_SERVICE", "mrrlab"),
		AppVersion:     getenv("APP_VERSION", "0.1.0"),
		Environment:    getenv("ENVIRONMENT", "development"),
		OTLPEndpoint:   getenv("OTLP_ENDPOINT", "localhost:4317"),
		PushgatewayURL: strings.TrimSpace(getenv("PUSHGATEWAY_URL", "")),
		Stripe: StripeConfig{
			SecretKey:       strings.TrimSpace(getenv("STRIPE_TEST_SECRET_KEY", "")),
			RequestInterval: getenvDuration("STRIPE_REQUEST_INTERVAL", 300*time.Millisecond),
		},
		Sink: SinkConfig{
			Driver:    normalizeSinkDriver(getenv("SINK_DRIVER", SinkDriverClickHouse)),
			BatchSize: getenvInt("SINK_BATCH_SIZE", 500),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     getenv("CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getenv("CLICKHOUSE_DATABASE", "stripe_analytics"),
			Username: getenv("CLICKHOUSE_USERNAME", "default"),
			Password: getenv("CLICKHOUSE_PASSWORD", ""),
			Secure:   getenvBool("CLICKHOUSE_SECURE", false),
		},
		Retry: RetryConfig{
			MaxAttempts: getenvInt("RETRY_MAX_ATTEMPTS", 5),
			BaseDelay:   getenvDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:    getenvDuration("RETRY_MAX_DELAY", 60*time.Second),
		},
		Simulator: SimulatorConfig{
			Workers:           getenvInt("SIM_WORKERS", 8),
			SettleDelay:       getenvDuration("SIM_SETTLE_DELAY", 2*time.Second),
			ClockReadyTimeout: getenvDuration("SIM_CLOCK_READY_TIMEOUT", 2*time.Minute),
			ClockPollInterval: getenvDuration("SIM_CLOCK_POLL_INTERVAL", time.Second),
		},
		ScenarioFile: strings.TrimSpace(getenv("SCENARIO_FILE", "")),
		DBType:       getenv("DATABASE_TYPE", "postgres"),
		DBHost:       getenv("DATABASE_HOST", "localhost"),
		DBPort:       getenv("DATABASE_PORT", "5432"),
		DBName:       getenv("DATABASE_NAME", "stripe_analytics"),
		DBUser:       getenv("DATABASE_USER", "postgres"),
		DBPassword:   getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:    getenv("DATABASE_SSLMODE", "disable"),
		DBPath:       getenv("DATABASE_PATH", "mrrlab.db"),
	}

	return cfg
}

// ValidateStripeKey rejects missing keys and anything that is not a test-mode secret.
func (c Config) ValidateStripeKey() error {
	key := strings.TrimSpace(c.Stripe.SecretKey)
	if key == "" {
		return errors.New("STRIPE_TEST_SECRET_KEY is not set")
	}
	if !strings.HasPrefix(key, "sk_test_") {
		return ErrLiveKeyRejected
	}
	return nil
}

func normalizeSinkDriver(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case SinkDriverSQL, "postgres", "mysql", "sqlite":
		return SinkDriverSQL
	default:
		return SinkDriverClickHouse
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
