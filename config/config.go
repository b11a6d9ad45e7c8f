package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/fetcher"
	"github.com/Ramsey-B/aster/pkg/httpclient"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/n2yo"
	"github.com/Ramsey-B/aster/pkg/notify"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/tracing/exporters"
)

type Config struct {
	AppName            string        `env:"APP_NAME" env-default:"aster"`
	AppVersion         string        `env:"APP_VERSION" env-default:"dev"`
	Port               int           `env:"PORT" env-default:"3000" validate:"min=1,max=65535"`
	LogLevel           string        `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs         bool          `env:"PRETTY_LOGS" env-default:"false"`
	HttpReadTimeout    time.Duration `env:"HTTP_SERVER_READ_TIMEOUT" env-default:"10s"`
	HttpWriteTimeout   time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT" env-default:"10s"`
	HttpIdleTimeout    time.Duration `env:"HTTP_SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
	StartupMaxAttempts int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost" validate:"required"`
	// Database port
	DatabasePort int `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:"postgres"`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD"`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"aster" validate:"required"`
	// Database SSL mode
	DatabaseSSLMode         string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	DatabaseMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`

	// Redis is optional for serve; run refuses to start without it
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"true"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	// Run lock outlives the longest possible run: refresh plus the approval wait
	RunLockTTL time.Duration `env:"RUN_LOCK_TTL" env-default:"12h"`

	// Kafka brokers (comma-separated); empty disables run events
	KafkaBrokers        string `env:"KAFKA_BROKERS"`
	KafkaRunEventsTopic string `env:"KAFKA_RUN_EVENTS_TOPIC" env-default:"aster.run-events"`

	// OTLP collector endpoint; empty disables trace export
	OTLPEndpoint string        `env:"OTLP_ENDPOINT"`
	OTLPProtocol string        `env:"OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	OTLPInsecure bool          `env:"OTLP_INSECURE" env-default:"true"`
	OTLPTimeout  time.Duration `env:"OTLP_TIMEOUT" env-default:"10s"`
	// key:value pairs, comma separated
	OTLPHeadersRaw string `env:"OTLP_HEADERS"`
	OTLPHeaders    map[string]string

	N2YOBaseURL       string             `env:"N2YO_BASE_URL" env-default:"https://api.n2yo.com/rest/v1/satellite" validate:"required,url"`
	N2YOKeys          []string           `env:"N2YO_KEYS" validate:"min=1,dive,required"`
	ProbePointsRaw    string             `env:"PROBE_POINTS"`
	ProbePoints       models.ProbePoints
	Categories        []int              `env:"CATEGORIES" env-default:"3,4,6,8,15,20,26,30,50,52" validate:"min=1,dive,min=0"`
	MaxNewPerCategory int                `env:"MAX_NEW_PER_CATEGORY" env-default:"10" validate:"min=1"`
	ObserverAltitude  float64            `env:"OBSERVER_ALTITUDE" env-default:"0"`
	SearchRadius      int                `env:"SEARCH_RADIUS" env-default:"70" validate:"min=0,max=90"`

	FetchMaxRetries int           `env:"FETCH_MAX_RETRIES" env-default:"8" validate:"min=1"`
	FetchBaseDelay  time.Duration `env:"FETCH_BASE_DELAY" env-default:"1s"`
	FetchMaxDelay   time.Duration `env:"FETCH_MAX_DELAY" env-default:"120s"`
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" env-default:"50s"`
	// Requests allowed per credential per window before it is skipped locally; 0 disables
	CredentialQuotaRequests int           `env:"CREDENTIAL_QUOTA_REQUESTS" env-default:"1000" validate:"min=0"`
	CredentialQuotaWindow   time.Duration `env:"CREDENTIAL_QUOTA_WINDOW" env-default:"1h"`

	ValidationDelay time.Duration `env:"VALIDATION_DELAY" env-default:"7s"`

	ApprovalTokenTTL     time.Duration `env:"APPROVAL_TOKEN_TTL" env-default:"8h"`
	ApprovalWaitTimeout  time.Duration `env:"APPROVAL_WAIT_TIMEOUT" env-default:"6h"`
	ApprovalPollInterval time.Duration `env:"APPROVAL_POLL_INTERVAL" env-default:"30s"`
	ApprovalBaseURL      string        `env:"APPROVAL_BASE_URL" env-default:"http://localhost:3000/api/v1/approvals/approve" validate:"required,url"`
	ApprovalEmailTo      []string      `env:"APPROVAL_EMAIL_TO" validate:"dive,email"`
	ApprovalEmailFrom    string        `env:"APPROVAL_EMAIL_FROM" validate:"omitempty,email"`

	GmailClientID     string `env:"GMAIL_CLIENT_ID"`
	GmailClientSecret string `env:"GMAIL_CLIENT_SECRET"`
	GmailRefreshToken string `env:"GMAIL_REFRESH_TOKEN"`
}

// LoadEnv loads whichever of envFiles exist. Variables already set in the
// environment win.
func LoadEnv(envFiles ...string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads envFiles, then the environment, and validates the result
func Load(envFiles ...string) (*Config, error) {
	if _, err := LoadEnv(envFiles...); err != nil {
		return nil, fmt.Errorf("error loading env files: %w", err)
	}

	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, fmt.Errorf("error binding environment: %w", err)
	}
	if err := cfg.parse(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse fills the fields the environment carries in a compound format
func (c *Config) parse() error {
	c.N2YOKeys = trimAll(c.N2YOKeys)
	c.ApprovalEmailTo = trimAll(c.ApprovalEmailTo)

	c.ProbePoints = models.DefaultProbePoints()
	if strings.TrimSpace(c.ProbePointsRaw) != "" {
		points, err := models.ParseProbePoints(c.ProbePointsRaw)
		if err != nil {
			return fmt.Errorf("invalid configuration: PROBE_POINTS: %w", err)
		}
		c.ProbePoints = points
	}

	c.OTLPHeaders = map[string]string{}
	for _, pair := range strings.Split(c.OTLPHeadersRaw, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			return fmt.Errorf("invalid configuration: OTLP_HEADERS entry %q is not key:value", pair)
		}
		c.OTLPHeaders[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

// Validate checks field constraints and the relations between durations
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.FetchBaseDelay > c.FetchMaxDelay {
		return errors.New("invalid configuration: FETCH_BASE_DELAY exceeds FETCH_MAX_DELAY")
	}
	if c.ApprovalPollInterval <= 0 {
		return errors.New("invalid configuration: APPROVAL_POLL_INTERVAL must be positive")
	}
	if c.ApprovalWaitTimeout > c.ApprovalTokenTTL {
		return errors.New("invalid configuration: APPROVAL_WAIT_TIMEOUT exceeds APPROVAL_TOKEN_TTL")
	}
	return nil
}

func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) RedisConfig() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) KafkaConfig() kafka.Config {
	return kafka.ParseConfig(c.KafkaBrokers, c.KafkaRunEventsTopic)
}

func (c *Config) OTLPConfig() exporters.OTLPConfig {
	return exporters.OTLPConfig{
		Endpoint:  c.OTLPEndpoint,
		Protocol:  c.OTLPProtocol,
		Insecure:  c.OTLPInsecure,
		Timeout:   c.OTLPTimeout,
		Headers:   c.OTLPHeaders,
		UserAgent: c.AppName + "/" + c.AppVersion,
	}
}

func (c *Config) HTTPClientConfig() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = c.FetchTimeout
	cfg.UserAgent = c.AppName + "/" + c.AppVersion
	return cfg
}

func (c *Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		MaxRetries: c.FetchMaxRetries,
		BaseDelay:  c.FetchBaseDelay,
		MaxDelay:   c.FetchMaxDelay,
		RejectWhen: n2yo.RejectExpression,
	}
}

func (c *Config) N2YOConfig() n2yo.Config {
	return n2yo.Config{
		BaseURL:          c.N2YOBaseURL,
		ObserverAltitude: c.ObserverAltitude,
		SearchRadius:     c.SearchRadius,
	}
}

func (c *Config) GmailConfig() notify.GmailConfig {
	return notify.GmailConfig{
		ClientID:     c.GmailClientID,
		ClientSecret: c.GmailClientSecret,
		RefreshToken: c.GmailRefreshToken,
		From:         c.ApprovalEmailFrom,
		To:           c.ApprovalEmailTo,
	}
}

type contextKey struct{}

// WithContext stores cfg on ctx for cobra subcommands
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext returns the config stored by WithContext, or nil
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}
