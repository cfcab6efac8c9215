package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Database: DatabaseConfig{
			Driver: "mysql",
			Host:   "localhost",
			User:   "test",
			DBName: "test",
		},
		Mailbox: MailboxConfig{
			Provider: "imap",
			IMAP: IMAPConfig{
				Host:     "imap.example.com",
				User:     "ap@example.com",
				Password: "secret",
			},
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			BaseDelay:       time.Second,
			MaxDelay:        time.Minute,
			ExponentialBase: 2,
		},
		Validation: ValidationConfig{
			MinInvoiceAmount:  0.01,
			MaxInvoiceAmount:  1000000,
			MaxInvoiceAgeDays: 365,
		},
		Scheduler: SchedulerConfig{
			IntervalMinutes: 5,
		},
	}
}

// chdir keeps a stray .env or config.yaml in the package directory out of the test
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestConfigValidation(t *testing.T) {
	// Test valid configuration
	assert.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"sqlite without path", func(c *Config) { c.Database.Driver = "sqlite"; c.Database.Path = "" }},
		{"imap without password", func(c *Config) { c.Mailbox.IMAP.Password = "" }},
		{"gmail without token", func(c *Config) { c.Mailbox.Provider = "gmail" }},
		{"unknown provider", func(c *Config) { c.Mailbox.Provider = "pop3" }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"zero delay", func(c *Config) { c.Retry.BaseDelay = 0 }},
		{"inverted amounts", func(c *Config) { c.Validation.MinInvoiceAmount = 10; c.Validation.MaxInvoiceAmount = 1 }},
		{"kafka without brokers", func(c *Config) { c.Notifier.Kafka.Enabled = true; c.Notifier.Kafka.Topic = "t" }},
		{"email without recipients", func(c *Config) { c.Notifier.Email.Enabled = true; c.Notifier.Email.Host = "smtp" }},
		{"zero interval", func(c *Config) { c.Scheduler.IntervalMinutes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	config := DatabaseConfig{
		Driver:   "mysql",
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	dsn := config.GetDSN()
	expected := "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	assert.Equal(t, expected, dsn)

	config.Driver = "postgres"
	config.Port = 5432
	config.SSLMode = "disable"
	assert.Equal(t, "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable", config.GetDSN())

	config.Driver = "sqlite"
	config.Path = "/tmp/invoices.db"
	assert.Equal(t, "/tmp/invoices.db", config.GetDSN())
}

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "imap", cfg.Mailbox.Provider)
	assert.Equal(t, "imap.gmail.com", cfg.Mailbox.IMAP.Host)
	assert.Equal(t, 993, cfg.Mailbox.IMAP.Port)
	assert.Equal(t, "INBOX", cfg.Mailbox.IMAP.Folder)
	assert.Equal(t, "Invoice", cfg.Mailbox.SearchSubject)
	assert.Equal(t, []string{".pdf"}, cfg.Mailbox.AttachmentExtensions)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, time.Minute, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.ExponentialBase)
	assert.Equal(t, 0.01, cfg.Validation.MinInvoiceAmount)
	assert.Equal(t, 1000000.0, cfg.Validation.MaxInvoiceAmount)
	assert.Equal(t, 365, cfg.Validation.MaxInvoiceAgeDays)
	assert.Equal(t, 5, cfg.Scheduler.IntervalMinutes)
	assert.False(t, cfg.DryRun)
}

func TestLoadConfigFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "relay.yaml")
	yaml := `
server:
  port: "9000"
database:
  driver: sqlite
  path: relay.db
mailbox:
  imap:
    user: ap@example.com
    password: from-file
retry:
  max_attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("IMAP_PASSWORD", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("dry-run", false, "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--dry-run", "--log-level=debug"}))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "relay.db", cfg.Database.GetDSN())
	assert.Equal(t, "ap@example.com", cfg.Mailbox.IMAP.User)
	assert.Equal(t, "from-env", cfg.Mailbox.IMAP.Password)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := LoadConfig(path, nil)
	assert.Error(t, err)
}
