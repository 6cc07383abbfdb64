package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/app"
	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	enqueueFile  = flag.String("enqueue", "", "Push the JSON batch in this file onto the queue and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("tcsync version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("tcsync.toml"); err == nil {
			configFiles = append(configFiles, "tcsync.toml")
		} else if _, err := os.Stat("deployments/local/tcsync.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/tcsync.toml")
		}
	}

	// Startup order: config (defaults -> files -> env), logger, banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)

	if *enqueueFile != "" {
		if err := enqueue(config, logger, *enqueueFile); err != nil {
			logger.Error().Err(err).Str("file", *enqueueFile).Msg("Failed to enqueue batch")
			os.Exit(1)
		}
		os.Exit(0)
	}

	common.PrintBanner(config, logger)
	logger.Info().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
		return
	}

	var srv *server.Server
	if config.Server.Enabled {
		srv = server.New(application)
		common.SafeGo(logger, "http-server", func() {
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("HTTP server stopped unexpectedly")
			}
		})
	}

	logger.Info().Msg("Worker ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Server shutdown failed")
		}
	}
}
