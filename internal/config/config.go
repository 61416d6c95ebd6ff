package config

import (
	"errors"
	"fmt"
	"time"

	"toolwatch/internal/tracker"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server     ServerConfig
	App        AppConfig
	Log        LogConfig
	Tracker    TrackerConfig
	Catalog    CatalogConfig
	Ingest     IngestConfig
	Journal    JournalConfig
	Cache      CacheConfig
	ClickHouse ClickHouseConfig
	MQTT       MQTTConfig
	Auth       AuthConfig
	Metrics    MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"toolwatch"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"` // json or console
}

// TrackerConfig holds drawer state machine timing.
type TrackerConfig struct {
	SettleWindow    time.Duration `envconfig:"TRACKER_SETTLE_WINDOW" default:"1s"`
	RetentionWindow time.Duration `envconfig:"TRACKER_RETENTION_WINDOW" default:"2s"`
	LookbackDelay   time.Duration `envconfig:"TRACKER_LOOKBACK_DELAY" default:"2s"`
	MaxItemsPerBin  int           `envconfig:"TRACKER_MAX_ITEMS_PER_BIN" default:"1"`
	UnseenWindow    time.Duration `envconfig:"TRACKER_UNSEEN_WINDOW" default:"168h"`
}

// CatalogConfig points at the drawer/tool/user catalog.
type CatalogConfig struct {
	Path        string `envconfig:"CATALOG_PATH" default:""`
	EmailDomain string `envconfig:"USER_EMAIL_DOMAIN" default:""`
}

// IngestConfig holds the tick queue settings.
type IngestConfig struct {
	QueueSize    int   `envconfig:"INGEST_QUEUE_SIZE" default:"1024"`
	MaxBodyBytes int64 `envconfig:"INGEST_MAX_BODY_BYTES" default:"1048576"`
	MaxBatch     int   `envconfig:"INGEST_MAX_BATCH" default:"500"`
}

// JournalConfig holds durable event journal settings.
type JournalConfig struct {
	Type            string        `envconfig:"JOURNAL_DB_TYPE" default:"sqlite"` // sqlite, postgres, mysql, mongodb or none
	Path            string        `envconfig:"JOURNAL_DB_PATH" default:"./data/journal.db"`
	Retention       time.Duration `envconfig:"JOURNAL_RETENTION" default:"2160h"`
	CleanupInterval time.Duration `envconfig:"JOURNAL_CLEANUP_INTERVAL" default:"24h"`
	QueueSize       int           `envconfig:"JOURNAL_QUEUE_SIZE" default:"256"`
	// PostgreSQL / MySQL settings
	Host     string `envconfig:"JOURNAL_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"JOURNAL_DB_PORT" default:"5432"`
	Name     string `envconfig:"JOURNAL_DB_NAME" default:"toolwatch"`
	User     string `envconfig:"JOURNAL_DB_USER" default:"postgres"`
	Password string `envconfig:"JOURNAL_DB_PASS" default:""`
	SSLMode  string `envconfig:"JOURNAL_DB_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"toolwatch"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"events"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (j *JournalConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		j.User, j.Password, j.Host, j.Port, j.Name, j.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (j *JournalConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		j.User, j.Password, j.Host, j.Port, j.Name)
}

// CacheConfig holds write-behind buffer settings.
type CacheConfig struct {
	Type          string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	FlushInterval time.Duration `envconfig:"CACHE_FLUSH_INTERVAL" default:"5s"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// ClickHouseConfig holds analytics export settings. Empty DSN disables export.
type ClickHouseConfig struct {
	DSN       string `envconfig:"CLICKHOUSE_DSN" default:""`
	Secure    bool   `envconfig:"CLICKHOUSE_SECURE" default:"false"`
	LogEvents bool   `envconfig:"EVENT_LOG" default:"false"`
}

// MQTTConfig holds sensor transport settings. Empty Broker disables the subscriber.
type MQTTConfig struct {
	Broker   string `envconfig:"MQTT_BROKER" default:""`
	ClientID string `envconfig:"MQTT_CLIENT_ID" default:"toolwatch"`
	Topic    string `envconfig:"MQTT_TOPIC" default:"toolwatch/ticks"`
	QoS      byte   `envconfig:"MQTT_QOS" default:"1"`
	Username string `envconfig:"MQTT_USERNAME" default:""`
	Password string `envconfig:"MQTT_PASSWORD" default:""`
}

// AuthConfig holds API key settings for the tick ingest endpoints.
type AuthConfig struct {
	APIKeys []string `envconfig:"INGEST_API_KEYS" default:""`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Path    string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// TrackerOptions converts the timing settings to tracker configuration.
func (t *TrackerConfig) TrackerOptions() tracker.Config {
	return tracker.Config{
		SettleWindow:    t.SettleWindow,
		RetentionWindow: t.RetentionWindow,
		LookbackDelay:   t.LookbackDelay,
		MaxItemsPerBin:  t.MaxItemsPerBin,
		UnseenWindow:    t.UnseenWindow,
	}
}

// Validate rejects settings the tracker cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Tracker.SettleWindow <= 0 {
		errs = append(errs, errors.New("TRACKER_SETTLE_WINDOW must be positive"))
	}
	if c.Tracker.RetentionWindow <= 0 {
		errs = append(errs, errors.New("TRACKER_RETENTION_WINDOW must be positive"))
	}
	if c.Tracker.LookbackDelay <= 0 {
		errs = append(errs, errors.New("TRACKER_LOOKBACK_DELAY must be positive"))
	}
	if c.Tracker.MaxItemsPerBin < 1 {
		errs = append(errs, errors.New("TRACKER_MAX_ITEMS_PER_BIN must be at least 1"))
	}
	if c.Tracker.UnseenWindow <= 0 {
		errs = append(errs, errors.New("TRACKER_UNSEEN_WINDOW must be positive"))
	}
	if c.Ingest.QueueSize < 1 {
		errs = append(errs, errors.New("INGEST_QUEUE_SIZE must be at least 1"))
	}
	switch c.Journal.Type {
	case "sqlite", "postgres", "postgresql", "mysql", "mongodb", "mongo", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown JOURNAL_DB_TYPE %q", c.Journal.Type))
	}
	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_TYPE %q", c.Cache.Type))
	}
	return errors.Join(errs...)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
