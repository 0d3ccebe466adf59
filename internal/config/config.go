package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Email        EmailConfig        `yaml:"email"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	SendGrid     SendGridConfig     `yaml:"sendgrid"`
	Firebase     FirebaseConfig     `yaml:"firebase"`
	Redis        RedisConfig        `yaml:"redis"`
	JWT          JWTConfig          `yaml:"jwt"`
	Geo          GeoConfig          `yaml:"geo"`
	Notification NotificationConfig `yaml:"notification"`
	Presence     PresenceConfig     `yaml:"presence"`
	Log          LogConfig          `yaml:"log"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC health server settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings. Driver "memory"
// keeps everything in process for local runs.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	// NativeGeo enables the earthdistance nearest-neighbour query instead
	// of in-process haversine filtering.
	NativeGeo bool `yaml:"native_geo"`
}

// EmailConfig selects the email backend and the async queue tuning
type EmailConfig struct {
	Provider    string  `yaml:"provider"` // "smtp", "sendgrid" or "none"
	TemplateDir string  `yaml:"template_dir"`
	Workers     int     `yaml:"workers"`
	QueueSize   int     `yaml:"queue_size"`
	MaxRetries  int     `yaml:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec"`
	FrontendURL string  `yaml:"frontend_url"`
}

// SMTPConfig contains email service settings
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// FirebaseConfig enables FCM pushes to donors without a live connection
type FirebaseConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	ProjectID       string `yaml:"project_id"`
}

// RedisConfig is optional. When Addr is empty, realtime events stay local
// to the process and scheduler runs are not locked across instances.
type RedisConfig struct {
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	EventsChannel string        `yaml:"events_channel"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	Issuer            string `yaml:"issuer"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// GeoConfig bounds donor matching
type GeoConfig struct {
	DefaultRadiusKm float64 `yaml:"default_radius_km"`
	MaxResults      int     `yaml:"max_results"`
	FallbackLimit   int     `yaml:"fallback_limit"`
}

type NotificationConfig struct {
	FanoutTimeout     time.Duration `yaml:"fanout_timeout"`
	BulkBatchSize     int           `yaml:"bulk_batch_size"`
	PushConcurrency   int           `yaml:"push_concurrency"`
	EmailOnNewRequest bool          `yaml:"email_on_new_request"`
}

type PresenceConfig struct {
	Shards            int           `yaml:"shards"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	Embedded                 bool   `yaml:"embedded"`
	SendEligibilityReminders string `yaml:"send_eligibility_reminders"`
	RefreshDonorAvailability string `yaml:"refresh_donor_availability"`
}

// Load reads configuration from a YAML file. A .env file next to the
// working directory, when present, is loaded into the environment first so
// its values take part in the overrides.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a validated Config from YAML bytes plus environment overrides
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Email
	if val := os.Getenv("EMAIL_PROVIDER"); val != "" {
		c.Email.Provider = val
	}
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.SMTP.Port)
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		c.SMTP.User = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.SMTP.Password = val
	}
	if val := os.Getenv("SMTP_FROM"); val != "" {
		c.SMTP.From = val
	}
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}

	// Firebase
	if val := os.Getenv("FIREBASE_CREDENTIALS_FILE"); val != "" {
		c.Firebase.CredentialsFile = val
		c.Firebase.Enabled = true
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}
	if val := os.Getenv("GRPC_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.GRPCPort)
	}

	// Geo
	if val := os.Getenv("GEO_FALLBACK_LIMIT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Geo.FallbackLimit)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	if c.Email.Provider == "" {
		c.Email.Provider = "smtp"
	}
	if c.Email.TemplateDir == "" {
		c.Email.TemplateDir = "templates/email"
	}
	if c.Email.Workers == 0 {
		c.Email.Workers = 3
	}
	if c.Email.QueueSize == 0 {
		c.Email.QueueSize = 1000
	}
	if c.Email.MaxRetries == 0 {
		c.Email.MaxRetries = 3
	}
	if c.Email.RatePerSec == 0 {
		c.Email.RatePerSec = 10
	}

	if c.Redis.EventsChannel == "" {
		c.Redis.EventsChannel = "bloodlink:events"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 10 * time.Minute
	}

	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "auth-service"
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	if c.Geo.DefaultRadiusKm == 0 {
		c.Geo.DefaultRadiusKm = 50
	}
	if c.Geo.MaxResults == 0 {
		c.Geo.MaxResults = 50
	}
	if c.Geo.FallbackLimit == 0 {
		c.Geo.FallbackLimit = 20
	}

	if c.Notification.FanoutTimeout == 0 {
		c.Notification.FanoutTimeout = 10 * time.Second
	}
	if c.Notification.BulkBatchSize == 0 {
		c.Notification.BulkBatchSize = 500
	}
	if c.Notification.PushConcurrency == 0 {
		c.Notification.PushConcurrency = 16
	}

	if c.Presence.Shards == 0 {
		c.Presence.Shards = 32
	}
	if c.Presence.HeartbeatInterval == 0 {
		c.Presence.HeartbeatInterval = 30 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Scheduler.SendEligibilityReminders == "" {
		c.Scheduler.SendEligibilityReminders = "0 0 8 * * *" // Daily at 8 AM UTC
	}
	if c.Scheduler.RefreshDonorAvailability == "" {
		c.Scheduler.RefreshDonorAvailability = "0 30 7 * * *" // Daily at 7:30 AM UTC
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch strings.ToLower(c.Email.Provider) {
	case "smtp":
		if c.SMTP.Host == "" {
			return fmt.Errorf("SMTP host is required")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return fmt.Errorf("invalid SMTP port: %d", c.SMTP.Port)
		}
	case "sendgrid":
		if c.SendGrid.APIKey == "" {
			return fmt.Errorf("sendgrid api key is required")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported email provider: %s", c.Email.Provider)
	}

	if c.Firebase.Enabled && c.Firebase.CredentialsFile == "" {
		return fmt.Errorf("firebase credentials file is required when firebase is enabled")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	if c.Geo.DefaultRadiusKm < 0 {
		return fmt.Errorf("invalid default radius: %v", c.Geo.DefaultRadiusKm)
	}
	if c.Geo.MaxResults < 0 || c.Geo.FallbackLimit < 0 {
		return fmt.Errorf("geo result limits must be positive")
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address; empty when disabled
func (c *Config) GetGRPCAddress() string {
	if c.Server.GRPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
