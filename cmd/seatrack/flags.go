package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     layerList
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
	ListPorts       bool
}

// layerList collects repeated --config flags in order.
type layerList []string

func (l *layerList) String() string {
	return strings.Join(*l, ",")
}

func (l *layerList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.Var(&cfg.ConfigPaths, "config",
		"Configuration layer, repeatable; later layers override earlier ones (env: SEATRACK_CONFIG, comma separated)")
	flag.Var(&cfg.ConfigPaths, "c", "Shorthand for --config")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("SEATRACK_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SEATRACK_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("SEATRACK_LOG_FORMAT", "json"),
		"Log format: json, text (env: SEATRACK_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug", false, "Shorthand for --log-level=debug")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("SEATRACK_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: SEATRACK_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")
	flag.BoolVar(&cfg.ListPorts, "list-ports", false, "List serial ports and exit")

	flag.Usage = printDetailedHelp
	flag.Parse()

	if len(cfg.ConfigPaths) == 0 {
		for _, p := range strings.Split(os.Getenv("SEATRACK_CONFIG"), ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.ConfigPaths = append(cfg.ConfigPaths, p)
			}
		}
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp || cfg.ListPorts {
		return nil
	}

	for _, p := range cfg.ConfigPaths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config file not found: %s", p)
		}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - vessel tracking ingestion

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Without --config the built-in defaults apply: UDP on 0.0.0.0:10110 and the
HTTP gateway on :8080. SEATRACK_* variables override individual settings.

Examples:
  # Base config plus a site overlay
  %s --config=/etc/seatrack/base.json --config=/etc/seatrack/site.json

  # Serial receiver, text logs
  SEATRACK_SERIAL_PORT=/dev/ttyUSB1 %s --config=serial.json --log-format=text

  # Check a config without starting
  %s --config=site.json --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
