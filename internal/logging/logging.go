package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"invoice-relay-go/config"
)

// Setup configures the standard logrus logger from cfg. When a file is
// configured, entries go to both stdout and a size-rotated log file.
func Setup(cfg config.LoggingConfig) error {
	return configure(logrus.StandardLogger(), cfg, os.Stdout)
}

func configure(l *logrus.Logger, cfg config.LoggingConfig, stdout io.Writer) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unsupported log format: %q", cfg.Format)
	}

	if cfg.File == "" {
		l.SetOutput(stdout)
		return nil
	}

	l.SetOutput(io.MultiWriter(stdout, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}))
	return nil
}
