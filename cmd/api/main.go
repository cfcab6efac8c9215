package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/app"
	"invoice-relay-go/internal/logging"
)

func main() {
	flags := pflag.NewFlagSet("invoice-relay-api", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to the YAML config file")
	flags.Bool("dry-run", false, "extract and validate only; skip storage, notifications and mailbox updates")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	// Configure logging until the config says otherwise
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig(*configPath, flags)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	if err := app.Run(cfg); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}
