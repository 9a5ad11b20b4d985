package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Gateway           GatewayConfig
	Transactions      TransactionsConfig
	Jobs              JobsConfig
	Kafka             KafkaConfig
	Webhook           WebhookConfig
	Orders            OrdersConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

// GatewayConfig configures the generic REST gate adapter.
type GatewayConfig struct {
	Code                      string
	BaseURL                   string
	MerchantID                string
	Secret                    string
	CallbackBaseURL           string
	AmountUnit                string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type TransactionsConfig struct {
	GatewayTimeout     time.Duration
	VerifyClaimTTL     time.Duration
	InquiryClaimTTL    time.Duration
	InquiryMaxAttempts int32
	FlagFailedInquiry  bool
	JobBatchSize       int32
	EventTimeout       time.Duration
}

type JobsConfig struct {
	InquiryInterval      time.Duration
	ReleaseStaleInterval time.Duration
	ReconcileInterval    time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type WebhookConfig struct {
	EventsURL   string
	HTTPTimeout time.Duration
}

type OrdersConfig struct {
	LookupURL   string
	HTTPTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "transactions-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Gateway: GatewayConfig{
			Code:                      strings.ToLower(getEnv("GATEWAY_CODE", "rest")),
			BaseURL:                   getEnv("GATEWAY_BASE_URL", ""),
			MerchantID:                getEnv("GATEWAY_MERCHANT_ID", ""),
			Secret:                    getEnv("GATEWAY_SECRET", ""),
			CallbackBaseURL:           getEnv("TRANSACTIONS_CALLBACK_BASE_URL", ""),
			AmountUnit:                strings.ToLower(getEnv("GATEWAY_AMOUNT_UNIT", "minor")),
			SignatureToleranceSeconds: int64(getIntEnv("GATEWAY_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("GATEWAY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Transactions: TransactionsConfig{
			GatewayTimeout:     getSecondsEnv("TRANSACTIONS_GATEWAY_TIMEOUT_SECONDS", 15*time.Second),
			VerifyClaimTTL:     getMinutesEnv("TRANSACTIONS_VERIFY_CLAIM_TTL_MINUTES", 2*time.Minute),
			InquiryClaimTTL:    getMinutesEnv("TRANSACTIONS_INQUIRY_CLAIM_TTL_MINUTES", 5*time.Minute),
			InquiryMaxAttempts: int32(getIntEnv("TRANSACTIONS_INQUIRY_MAX_ATTEMPTS", 5)),
			FlagFailedInquiry:  getBoolEnv("TRANSACTIONS_FLAG_FAILED_INQUIRY", false),
			JobBatchSize:       int32(getIntEnv("TRANSACTIONS_JOB_BATCH_SIZE", 100)),
			EventTimeout:       getSecondsEnv("TRANSACTIONS_EVENT_TIMEOUT_SECONDS", 2*time.Second),
		},
		Jobs: JobsConfig{
			InquiryInterval:      getMinutesEnv("TRANSACTIONS_INQUIRY_INTERVAL_MINUTES", time.Minute),
			ReleaseStaleInterval: getMinutesEnv("TRANSACTIONS_RELEASE_STALE_INTERVAL_MINUTES", 5*time.Minute),
			ReconcileInterval:    getMinutesEnv("TRANSACTIONS_RECONCILE_INTERVAL_MINUTES", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: getListEnv("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TRANSACTION_EVENTS_TOPIC", "transaction-events"),
		},
		Webhook: WebhookConfig{
			EventsURL:   getEnv("TRANSACTIONS_EVENTS_WEBHOOK_URL", ""),
			HTTPTimeout: getSecondsEnv("TRANSACTIONS_EVENTS_WEBHOOK_TIMEOUT_SECONDS", 5*time.Second),
		},
		Orders: OrdersConfig{
			LookupURL:   getEnv("ORDERS_LOOKUP_URL", ""),
			HTTPTimeout: getSecondsEnv("ORDERS_LOOKUP_TIMEOUT_SECONDS", 5*time.Second),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
