package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/app"
	"invoice-relay-go/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("invoice-relay", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML config file")
	flags.Bool("dry-run", false, "extract and validate only; skip storage, notifications and mailbox updates")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	cfg, err := config.LoadConfig(*configPath, flags)
	if err != nil {
		logrus.Errorf("Failed to load configuration: %v", err)
		return 1
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		logrus.Errorf("Failed to configure logging: %v", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logrus.Errorf("Configuration validation failed: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := app.RunOnce(ctx, cfg)
	if report != nil {
		logrus.Infof("Pipeline complete: %d/%d successful", report.Successful, report.Total)
	}
	if err != nil {
		logrus.Errorf("Pipeline failed: %v", err)
		return 1
	}
	return 0
}
