// Package config loads service configuration from defaults, an optional
// config file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string
	LogLevel        string
	PostgresURL     string
	JWTSecret       string
	TokenTTL        time.Duration
	KafkaBrokers    []string
	RedisAddr       string
	EmailServiceURL string
	OTLPEndpoint    string
	PublicBaseURL   string
	ShutdownTimeout time.Duration
	MigrationsPath  string
	Checkout        CheckoutConfig
}

type CheckoutConfig struct {
	RequireVerified bool
	TxTimeout       time.Duration
	PublishTimeout  time.Duration
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment are used. Environment keys are the upper-cased config
// keys with dots replaced by underscores (checkout.tx_timeout ->
// CHECKOUT_TX_TIMEOUT).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:            v.GetString("port"),
		LogLevel:        v.GetString("log_level"),
		PostgresURL:     v.GetString("postgres_url"),
		JWTSecret:       v.GetString("jwt_secret"),
		TokenTTL:        v.GetDuration("token_ttl"),
		KafkaBrokers:    splitList(v.GetString("kafka_brokers")),
		RedisAddr:       v.GetString("redis_addr"),
		EmailServiceURL: strings.TrimRight(v.GetString("email_service_url"), "/"),
		OTLPEndpoint:    v.GetString("otel_exporter_otlp_endpoint"),
		PublicBaseURL:   strings.TrimRight(v.GetString("public_base_url"), "/"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		MigrationsPath:  v.GetString("migrations_path"),
		Checkout: CheckoutConfig{
			RequireVerified: v.GetBool("checkout.require_verified"),
			TxTimeout:       v.GetDuration("checkout.tx_timeout"),
			PublishTimeout:  v.GetDuration("checkout.publish_timeout"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("postgres_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("email_service_url", "")
	v.SetDefault("otel_exporter_otlp_endpoint", "localhost:4317")
	v.SetDefault("public_base_url", "http://localhost:3000")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("migrations_path", "file://migrations")
	v.SetDefault("checkout.require_verified", false)
	v.SetDefault("checkout.tx_timeout", 15*time.Second)
	v.SetDefault("checkout.publish_timeout", 5*time.Second)
}

// ValidateAPI checks the settings the API server cannot start without.
func (c *Config) ValidateAPI() error {
	var errs []error
	if c.PostgresURL == "" {
		errs = append(errs, errors.New("POSTGRES_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Checkout.TxTimeout <= 0 {
		errs = append(errs, errors.New("CHECKOUT_TX_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateWorker checks the settings the receipt worker needs.
func (c *Config) ValidateWorker() error {
	var errs []error
	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if c.EmailServiceURL == "" {
		errs = append(errs, errors.New("EMAIL_SERVICE_URL is required"))
	}
	return errors.Join(errs...)
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
