package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Mailbox    MailboxConfig    `mapstructure:"mailbox"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Validation ValidationConfig `mapstructure:"validation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	DryRun     bool             `mapstructure:"dry_run"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MailboxConfig selects and configures the mailbox the invoices arrive in
type MailboxConfig struct {
	Provider             string      `mapstructure:"provider"`
	SearchSubject        string      `mapstructure:"search_subject"`
	AttachmentExtensions []string    `mapstructure:"attachment_extensions"`
	IMAP                 IMAPConfig  `mapstructure:"imap"`
	Gmail                GmailConfig `mapstructure:"gmail"`
}

// IMAPConfig holds IMAP server configuration
type IMAPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Folder   string        `mapstructure:"folder"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
}

// NotifierConfig holds the notification sinks
type NotifierConfig struct {
	Slack SlackConfig `mapstructure:"slack"`
	Email EmailConfig `mapstructure:"email"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// SlackConfig holds Slack incoming webhook configuration
type SlackConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Channel    string        `mapstructure:"channel"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// EmailConfig holds SMTP report configuration
type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// KafkaConfig holds event stream configuration
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RetryConfig holds the retry policy for mailbox and database calls
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	ExponentialBase float64       `mapstructure:"exponential_base"`
}

// ValidationConfig holds the business rule bounds and reference files
type ValidationConfig struct {
	MinInvoiceAmount    float64 `mapstructure:"min_invoice_amount"`
	MaxInvoiceAmount    float64 `mapstructure:"max_invoice_amount"`
	MaxInvoiceAgeDays   int     `mapstructure:"max_invoice_age_days"`
	PONumbersFile       string  `mapstructure:"po_numbers_file"`
	ApprovedVendorsFile string  `mapstructure:"approved_vendors_file"`
}

// LoggingConfig holds log output configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// MetricsConfig holds the standalone metrics endpoint used by one-shot runs
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// LoadConfig loads configuration from .env, the config file, environment
// variables and command line flags, in increasing order of precedence.
// An empty path searches for config.yaml in . and ./config.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("error binding environment variables: %w", err)
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, fmt.Errorf("error binding flags: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.dbname", "invoices")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "invoices.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")

	v.SetDefault("mailbox.provider", "imap")
	v.SetDefault("mailbox.search_subject", "Invoice")
	v.SetDefault("mailbox.attachment_extensions", []string{".pdf"})
	v.SetDefault("mailbox.imap.host", "imap.gmail.com")
	v.SetDefault("mailbox.imap.port", 993)
	v.SetDefault("mailbox.imap.folder", "INBOX")
	v.SetDefault("mailbox.imap.timeout", "30s")

	v.SetDefault("notifier.slack.enabled", true)
	v.SetDefault("notifier.slack.timeout", "10s")
	v.SetDefault("notifier.slack.max_retries", 2)
	v.SetDefault("notifier.email.port", 587)
	v.SetDefault("notifier.kafka.topic", "invoice-events")
	v.SetDefault("notifier.kafka.write_timeout", "10s")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "60s")
	v.SetDefault("retry.exponential_base", 2.0)

	v.SetDefault("validation.min_invoice_amount", 0.01)
	v.SetDefault("validation.max_invoice_amount", 1000000.0)
	v.SetDefault("validation.max_invoice_age_days", 365)
	v.SetDefault("validation.po_numbers_file", "config/po_numbers.csv")
	v.SetDefault("validation.approved_vendors_file", "config/approved_vendors.csv")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_minutes", 5)

	v.SetDefault("dry_run", false)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		// Server
		"server.port": "SERVER_PORT",

		// Database
		"database.driver":   "DB_DRIVER",
		"database.host":     "DB_HOST",
		"database.port":     "DB_PORT",
		"database.user":     "DB_USER",
		"database.password": "DB_PASSWORD",
		"database.dbname":   "DB_NAME",
		"database.sslmode":  "DB_SSLMODE",
		"database.path":     "DB_PATH",

		// Mailbox
		"mailbox.provider":             "MAILBOX_PROVIDER",
		"mailbox.search_subject":       "MAILBOX_SEARCH_SUBJECT",
		"mailbox.imap.host":            "IMAP_HOST",
		"mailbox.imap.port":            "IMAP_PORT",
		"mailbox.imap.user":            "IMAP_USER",
		"mailbox.imap.password":        "IMAP_PASSWORD",
		"mailbox.imap.folder":          "IMAP_FOLDER",
		"mailbox.gmail.client_id":      "GMAIL_CLIENT_ID",
		"mailbox.gmail.client_secret":  "GMAIL_CLIENT_SECRET",
		"mailbox.gmail.refresh_token":  "GMAIL_REFRESH_TOKEN",
		"mailbox.gmail.user_email":     "GMAIL_USER_EMAIL",

		// Notifier
		"notifier.slack.webhook_url": "SLACK_WEBHOOK_URL",
		"notifier.slack.channel":     "SLACK_CHANNEL",
		"notifier.email.host":        "SMTP_HOST",
		"notifier.email.username":    "SMTP_USERNAME",
		"notifier.email.password":    "SMTP_PASSWORD",
		"notifier.kafka.topic":       "KAFKA_TOPIC",

		// Logging
		"logging.level": "LOG_LEVEL",

		// Scheduler
		"scheduler.interval_minutes": "SCHEDULER_INTERVAL_MINUTES",

		"dry_run": "DRY_RUN",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// bindFlags lets command line flags override the matching keys
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"dry_run":       "dry-run",
		"logging.level": "log-level",
	}
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	case "sqlite":
		return c.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	switch c.Mailbox.Provider {
	case "imap":
		if c.Mailbox.IMAP.Host == "" || c.Mailbox.IMAP.User == "" || c.Mailbox.IMAP.Password == "" {
			return fmt.Errorf("IMAP host and credentials are required when using IMAP")
		}
	case "gmail":
		g := c.Mailbox.Gmail
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required when using the Gmail API")
		}
	default:
		return fmt.Errorf("unsupported mailbox provider: %q", c.Mailbox.Provider)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay <= 0 {
		return fmt.Errorf("retry delays must be greater than 0")
	}
	if c.Retry.ExponentialBase < 1 {
		return fmt.Errorf("retry exponential_base must be at least 1")
	}

	if c.Validation.MinInvoiceAmount > c.Validation.MaxInvoiceAmount {
		return fmt.Errorf("validation min_invoice_amount exceeds max_invoice_amount")
	}
	if c.Validation.MaxInvoiceAgeDays < 1 {
		return fmt.Errorf("validation max_invoice_age_days must be at least 1")
	}

	if c.Notifier.Kafka.Enabled && (len(c.Notifier.Kafka.Brokers) == 0 || c.Notifier.Kafka.Topic == "") {
		return fmt.Errorf("kafka brokers and topic are required when kafka notifications are enabled")
	}
	if c.Notifier.Email.Enabled && (c.Notifier.Email.Host == "" || len(c.Notifier.Email.To) == 0) {
		return fmt.Errorf("SMTP host and recipients are required when email notifications are enabled")
	}

	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	return nil
}
