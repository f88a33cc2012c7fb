package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	VeriFactu  VeriFactuConfig
	Safeguards SafeguardsConfig
	Webhook    WebhookConfig
	Validation ValidationConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings. Driver selects between
// postgres (production) and sqlite (development and tests).
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file path, ":memory:" for tests
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// DSN builds the postgres connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address for the Redis client
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	MaxHeaderBytes     int
	MaxBodySize        int64
	RateLimitPerMinute int
	TrustedProxies     []string
	CORSAllowOrigins   []string
}

// VeriFactuConfig holds the remote tax-authority API connection settings
type VeriFactuConfig struct {
	APIKey       string
	CompanyTaxID string
	IsProduction bool
	BaseURL      string // override, mainly for tests
	MaxRetries   int
	RetryDelay   time.Duration
	Timeout      time.Duration
}

// SafeguardsConfig holds the protection-layer tuning knobs
type SafeguardsConfig struct {
	MaxDailyInvoices   int
	MaxHourlyInvoices  int
	RateLimitPerSecond int
	FailureThreshold   int
	RecoveryTimeout    time.Duration
	CanaryPercentage   int
	SampleCapacity     int
}

// WebhookConfig holds inbound webhook verification settings
type WebhookConfig struct {
	Secret string
}

// ValidationConfig holds invoice validation policy knobs
type ValidationConfig struct {
	// TotalTolerance is the allowed gap between the declared total and the
	// sum of line amounts, in currency units
	TotalTolerance string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with INVOO_ prefix (e.g., INVOO_VERIFACTU_API_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("INVOO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:        v.GetDuration("http.read_timeout"),
			WriteTimeout:       v.GetDuration("http.write_timeout"),
			IdleTimeout:        v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:     v.GetInt("http.max_header_bytes"),
			MaxBodySize:        v.GetInt64("http.max_body_size"),
			RateLimitPerMinute: v.GetInt("http.rate_limit_per_minute"),
			TrustedProxies:     v.GetStringSlice("http.trusted_proxies"),
			CORSAllowOrigins:   v.GetStringSlice("http.cors_allow_origins"),
		},
		VeriFactu: VeriFactuConfig{
			APIKey:       v.GetString("verifactu.api_key"),
			CompanyTaxID: v.GetString("verifactu.company_tax_id"),
			IsProduction: v.GetBool("verifactu.is_production"),
			BaseURL:      v.GetString("verifactu.base_url"),
			MaxRetries:   v.GetInt("verifactu.max_retries"),
			RetryDelay:   v.GetDuration("verifactu.retry_delay"),
			Timeout:      v.GetDuration("verifactu.timeout"),
		},
		Safeguards: SafeguardsConfig{
			MaxDailyInvoices:   v.GetInt("safeguards.max_daily_invoices"),
			MaxHourlyInvoices:  v.GetInt("safeguards.max_hourly_invoices"),
			RateLimitPerSecond: v.GetInt("safeguards.rate_limit_per_second"),
			FailureThreshold:   v.GetInt("safeguards.failure_threshold"),
			RecoveryTimeout:    v.GetDuration("safeguards.recovery_timeout"),
			CanaryPercentage:   v.GetInt("safeguards.canary_percentage"),
			SampleCapacity:     v.GetInt("safeguards.sample_capacity"),
		},
		Webhook: WebhookConfig{
			Secret: v.GetString("webhook.secret"),
		},
		Validation: ValidationConfig{
			TotalTolerance: v.GetString("validation.total_tolerance"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "invoo-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "invoo"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "invoo.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB, invoices are small
	}
	if cfg.HTTP.RateLimitPerMinute == 0 {
		cfg.HTTP.RateLimitPerMinute = 300
	}
	if cfg.VeriFactu.MaxRetries == 0 {
		cfg.VeriFactu.MaxRetries = 3
	}
	if cfg.VeriFactu.RetryDelay == 0 {
		cfg.VeriFactu.RetryDelay = time.Second
	}
	if cfg.VeriFactu.Timeout == 0 {
		cfg.VeriFactu.Timeout = 30 * time.Second
	}
	if cfg.Safeguards.MaxDailyInvoices == 0 {
		cfg.Safeguards.MaxDailyInvoices = 10000
	}
	if cfg.Safeguards.MaxHourlyInvoices == 0 {
		cfg.Safeguards.MaxHourlyInvoices = 1000
	}
	if cfg.Safeguards.RateLimitPerSecond == 0 {
		cfg.Safeguards.RateLimitPerSecond = 10
	}
	if cfg.Safeguards.FailureThreshold == 0 {
		cfg.Safeguards.FailureThreshold = 5
	}
	if cfg.Safeguards.RecoveryTimeout == 0 {
		cfg.Safeguards.RecoveryTimeout = 60 * time.Second
	}
	if cfg.Safeguards.CanaryPercentage == 0 {
		cfg.Safeguards.CanaryPercentage = 5
	}
	if cfg.Safeguards.SampleCapacity == 0 {
		cfg.Safeguards.SampleCapacity = 1000
	}
	if cfg.Validation.TotalTolerance == "" {
		cfg.Validation.TotalTolerance = "10"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns must not be negative")
	}
	if c.Safeguards.CanaryPercentage < 0 || c.Safeguards.CanaryPercentage > 100 {
		return fmt.Errorf("safeguards.canary_percentage must be between 0 and 100")
	}
	if c.IsProduction() {
		if c.VeriFactu.APIKey == "" {
			return fmt.Errorf("verifactu.api_key is required in production")
		}
		if c.Webhook.Secret == "" {
			return fmt.Errorf("webhook.secret is required in production")
		}
	}
	return nil
}

// IsProduction returns true if the app environment is production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsDevelopment returns true if the app environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}
