// Package main is the entry point for the reproxy server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heymind/reproxy/internal/config"
	"github.com/heymind/reproxy/internal/observability"
	"github.com/heymind/reproxy/internal/router"
	"github.com/heymind/reproxy/internal/util"
)

// Version information (set at build time).
var (
	version   = "alpha"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	host        string
	port        int
	logLevel    string
	logFormat   string
	validate    bool
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	if flags.validate {
		os.Exit(validateConfig(flags.configPath, os.Stdout, os.Stderr))
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting reproxy",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)
	logger.Info("configuration loaded",
		observability.Int("rules", len(cfg.Rules)),
		observability.String("listen", cfg.Listen.Address()),
	)

	app := initApplication(cfg, logger)

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags. Every flag falls back to a
// REPROXY_* environment variable before its built-in default.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("REPROXY_CONFIG", "reproxy.yaml"),
		"Path to configuration file")
	host := flag.String("host", getEnvOrDefault("REPROXY_HOST", ""),
		"Listen host (overrides configuration)")
	port := flag.Int("port", getEnvInt("REPROXY_PORT", 0),
		"Listen port (overrides configuration)")
	logLevel := flag.String("log-level", getEnvOrDefault("REPROXY_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (overrides configuration)")
	logFormat := flag.String("log-format", getEnvOrDefault("REPROXY_LOG_FORMAT", ""),
		"Log format: json, console (overrides configuration)")
	validate := flag.Bool("validate", false, "Validate the configuration file and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		host:        *host,
		port:        *port,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		validate:    *validate,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("reproxy version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// validateConfig checks the configuration file and reports the result.
// It returns the process exit code.
func validateConfig(path string, out, errOut io.Writer) int {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, util.ErrConfigInvalid) {
			fmt.Fprintf(errOut, "invalid configuration: %v\n", err)
		} else {
			fmt.Fprintf(errOut, "failed to load configuration: %v\n", err)
		}
		return 1
	}

	if _, err := router.CompileRules(cfg.Rules); err != nil {
		fmt.Fprintf(errOut, "invalid configuration: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "configuration OK: %d rules\n", len(cfg.Rules))
	return 0
}

// loadConfig loads the configuration file and applies flag overrides.
func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if flags.host != "" {
		cfg.Listen.Host = flags.host
	}
	if flags.port != 0 {
		cfg.Listen.Port = flags.port
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}

	return cfg, nil
}

// initLogger initializes the logger.
func initLogger(cfg config.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// run starts the gateway and blocks until shutdown.
func run(app *application, configPath string, logger observability.Logger) {
	ctx := context.Background()

	if err := app.gateway.Start(ctx); err != nil {
		logger.Fatal("failed to start gateway", observability.Error(err))
	}
	app.metrics.SetRulesLoaded(app.gateway.Router().Snapshot().Len())

	if app.admin != nil {
		if err := app.admin.Start(ctx); err != nil {
			logger.Error("failed to start admin listener", observability.Error(err))
		}
	}

	watcher := startConfigWatcher(app, configPath, logger)

	waitForSignals(app, watcher, logger)
}

// waitForSignals blocks on the signal loop. SIGHUP forces a
// configuration reload; SIGINT and SIGTERM shut the proxy down.
func waitForSignals(app *application, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			logger.Info("received SIGHUP, reloading configuration")
			if watcher != nil {
				if err := watcher.ForceReload(); err != nil {
					logger.Error("forced reload failed", observability.Error(err))
				}
			}
			continue
		}

		logger.Info("received shutdown signal",
			observability.String("signal", sig.String()),
		)
		break
	}

	shutdown(app, watcher, logger)
}

// shutdown stops all components gracefully.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if app.admin != nil {
		if err := app.admin.Stop(ctx); err != nil {
			logger.Error("failed to stop admin listener", observability.Error(err))
		}
	}

	if err := app.gateway.Stop(ctx); err != nil {
		logger.Error("failed to stop gateway gracefully", observability.Error(err))
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("reproxy stopped")
}
