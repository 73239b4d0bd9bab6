package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	ServiceName string
	HTTPAddr    string
	BaseURL     string

	DB            DBConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Stripe        StripeConfig
	Auth          AuthConfig
	Payments      PaymentsConfig
	Postmark      PostmarkConfig
	JaegerURL     string
	CartTTL       time.Duration
	ProductTTL    time.Duration
	Notifications bool
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	Currency       string
	MaxFailures    int
	ResetTimeout   time.Duration
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type PaymentsConfig struct {
	SimulatedDelay    time.Duration
	CardSuccessRate   float64
	WalletSuccessRate float64
}

type PostmarkConfig struct {
	ServerToken string
	From        string
}

// Load reads the process environment, after merging an optional .env file.
// Values already present in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Env:         getEnv("ENV", "production"),
		ServiceName: getEnv("SERVICE_NAME", "shop-service"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		BaseURL:     strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "shopdb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       p.int("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKER", "localhost:9092")),
			Topic:   getEnv("KAFKA_TOPIC", "order_events"),
			GroupID: getEnv("KAFKA_GROUP_ID", "shop-notifications"),
		},
		Stripe: StripeConfig{
			SecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			PublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			WebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:       strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),
			MaxFailures:    p.int("STRIPE_BREAKER_MAX_FAILURES", 5),
			ResetTimeout:   p.duration("STRIPE_BREAKER_RESET", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			TokenTTL:  p.duration("TOKEN_TTL", 72*time.Hour),
		},
		Payments: PaymentsConfig{
			SimulatedDelay:    p.duration("PAYMENT_SIMULATED_DELAY", time.Second),
			CardSuccessRate:   p.float("CARD_SUCCESS_RATE", 0.90),
			WalletSuccessRate: p.float("WALLET_SUCCESS_RATE", 0.95),
		},
		Postmark: PostmarkConfig{
			ServerToken: getEnv("POSTMARK_SERVER_TOKEN", ""),
			From:        getEnv("POSTMARK_FROM", "orders@shop.local"),
		},
		JaegerURL:     getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		CartTTL:       p.duration("CART_TTL", 14*24*time.Hour),
		ProductTTL:    p.duration("PRODUCT_CACHE_TTL", 5*time.Minute),
		Notifications: p.bool("NOTIFICATIONS_ENABLED", true),
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, rate := range map[string]float64{
		"CARD_SUCCESS_RATE":   c.Payments.CardSuccessRate,
		"WALLET_SUCCESS_RATE": c.Payments.WalletSuccessRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("config: %s must be within [0,1], got %v", name, rate)
		}
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: KAFKA_BROKER must name at least one broker")
	}
	return nil
}

// parser keeps the first conversion error so FromEnv can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid %s=%q: %w", key, value, err)
	}
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
