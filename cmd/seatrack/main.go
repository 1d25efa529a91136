// Package main runs a seatrack node: it loads the layered configuration,
// builds the engine and runs it until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/seatrack/component"
	"github.com/c360/seatrack/config"
	"github.com/c360/seatrack/engine"
	"github.com/c360/seatrack/input/serial"
	"github.com/c360/seatrack/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "seatrack"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	switch {
	case cliCfg.ShowVersion:
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	case cliCfg.ShowHelp:
		printDetailedHelp()
		return nil
	case cliCfg.ListPorts:
		return listPorts()
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPaths)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid", "layers", cliCfg.ConfigPaths)
		return nil
	}

	slog.Info("Starting seatrack",
		"version", Version,
		"build_time", BuildTime,
		"layers", cliCfg.ConfigPaths,
		"transports", cfg.EnabledTransports())
	slog.Debug("Effective configuration", "config", cfg.String())

	eng, err := engine.New(engine.Deps{
		Config: cfg,
		Dependencies: component.Dependencies{
			MetricsRegistry: metric.NewMetricsRegistry(),
			Logger:          logger,
		},
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	slog.Info("seatrack started")

	<-ctx.Done()
	slog.Info("Received shutdown signal")

	if err := eng.Stop(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("seatrack shutdown complete")
	return nil
}

// loadConfig applies the built-in defaults, every layer in order, then the
// SEATRACK_* environment overrides.
func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, p := range paths {
		loader.AddLayer(p)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func listPorts() error {
	ports, err := serial.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}
