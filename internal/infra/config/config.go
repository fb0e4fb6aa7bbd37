package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env                   string
	HTTPAddr              string
	StorageDriver         string
	MongoURI              string
	MongoDB               string
	PostgresURL           string
	RedisAddr             string
	KafkaBrokers          []string
	KafkaTopicPrefix      string
	KafkaGatewayTopic     string
	KafkaConsumerGroup    string
	IdempotencyTTL        time.Duration
	OutboxPollInterval    time.Duration
	RetryBackoff          []time.Duration
	LockTimeout           time.Duration
	PaymentPendingTimeout time.Duration
	GatewayTimeout        time.Duration
	DefaultCurrency       string
	PaypalRate            string
	JWTSecret             string
	PropertyFixtures      string
	Gateways              GatewayConfig
}

// GatewayConfig carries credentials per payment gateway. An empty base URL
// disables the adapter.
type GatewayConfig struct {
	Mpesa   MpesaConfig
	Paypal  PaypalConfig
	Airtel  AirtelConfig
	Stripe  StripeConfig
	Sandbox bool
	// SandboxToken, when set, guards the sandbox webhook.
	SandboxToken string
}

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	CallbackToken  string
}

type PaypalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
	WebhookID    string
}

type AirtelConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	Country       string
	Currency      string
	CallbackToken string
}

type StripeConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
}

const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:                getEnv("APP_ENV", "dev"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		StorageDriver:      strings.ToLower(getEnv("STORAGE_DRIVER", DriverMemory)),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getEnv("MONGO_DB", "stayhub"),
		PostgresURL:        os.Getenv("POSTGRES_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		KafkaTopicPrefix:   getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGatewayTopic:  getEnv("KAFKA_GATEWAY_TOPIC", "payment.gateway-results.v1"),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "stayhub-reconciler"),
		DefaultCurrency:    strings.ToUpper(getEnv("DEFAULT_CURRENCY", "KES")),
		PaypalRate:         getEnv("PAYPAL_RATE", "0.0077"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		PropertyFixtures:   os.Getenv("PROPERTY_FIXTURES"),
		Gateways: GatewayConfig{
			Mpesa: MpesaConfig{
				BaseURL:        os.Getenv("MPESA_BASE_URL"),
				ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
				ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
				ShortCode:      os.Getenv("MPESA_SHORTCODE"),
				Passkey:        os.Getenv("MPESA_PASSKEY"),
				CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
				CallbackToken:  os.Getenv("MPESA_CALLBACK_TOKEN"),
			},
			Paypal: PaypalConfig{
				BaseURL:      os.Getenv("PAYPAL_BASE_URL"),
				ClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
				ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
				Currency:     strings.ToUpper(getEnv("PAYPAL_CURRENCY", "USD")),
				WebhookID:    os.Getenv("PAYPAL_WEBHOOK_ID"),
			},
			Airtel: AirtelConfig{
				BaseURL:       os.Getenv("AIRTEL_BASE_URL"),
				ClientID:      os.Getenv("AIRTEL_CLIENT_ID"),
				ClientSecret:  os.Getenv("AIRTEL_CLIENT_SECRET"),
				Country:       getEnv("AIRTEL_COUNTRY", "KE"),
				Currency:      strings.ToUpper(getEnv("AIRTEL_CURRENCY", "KES")),
				CallbackToken: os.Getenv("AIRTEL_CALLBACK_TOKEN"),
			},
			Stripe: StripeConfig{
				BaseURL:       getEnv("STRIPE_BASE_URL", ""),
				SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
				WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			},
			SandboxToken: os.Getenv("SANDBOX_CALLBACK_TOKEN"),
		},
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"IDEMP_TTL", 168 * time.Hour, &cfg.IdempotencyTTL},
		{"OUTBOX_POLL_INTERVAL", 500 * time.Millisecond, &cfg.OutboxPollInterval},
		{"LOCK_TIMEOUT", 10 * time.Second, &cfg.LockTimeout},
		{"PAYMENT_PENDING_TIMEOUT", 5 * time.Minute, &cfg.PaymentPendingTimeout},
		{"GATEWAY_TIMEOUT", 30 * time.Second, &cfg.GatewayTimeout},
	}
	for _, d := range durations {
		v, err := parseDurationEnv(d.key, d.def)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	sandbox, err := parseBoolEnv("SANDBOX_GATEWAY", cfg.Env == "dev" || cfg.Env == "local")
	if err != nil {
		return Config{}, err
	}
	cfg.Gateways.Sandbox = sandbox

	switch cfg.StorageDriver {
	case DriverMemory:
	case DriverMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required for STORAGE_DRIVER=mongo")
		}
	case DriverPostgres:
		if cfg.PostgresURL == "" {
			return Config{}, fmt.Errorf("POSTGRES_URL is required for STORAGE_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.JWTSecret == "" && cfg.Env != "dev" && cfg.Env != "local" {
		return Config{}, fmt.Errorf("JWT_SECRET is required outside dev")
	}
	return cfg, nil
}

// Fallback is used by main when Load fails in development.
func Fallback() Config {
	return Config{
		Env:                   "dev",
		HTTPAddr:              ":8080",
		StorageDriver:         DriverMemory,
		IdempotencyTTL:        168 * time.Hour,
		OutboxPollInterval:    500 * time.Millisecond,
		RetryBackoff:          []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
		LockTimeout:           10 * time.Second,
		PaymentPendingTimeout: 5 * time.Minute,
		GatewayTimeout:        30 * time.Second,
		DefaultCurrency:       "KES",
		PaypalRate:            "0.0077",
		KafkaGatewayTopic:     "payment.gateway-results.v1",
		KafkaConsumerGroup:    "stayhub-reconciler",
		Gateways:              GatewayConfig{Sandbox: true},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
