package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/soundshare/internal/shared"
)

const envConfigPath = "SOUNDSHARE_CONFIG"

func main() {
	logger := shared.NewLogger(nil)

	configPath := "config.toml"
	if p := os.Getenv(envConfigPath); p != "" {
		configPath = p
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		}
	}

	if err := config.ApplyEnv(".env"); err != nil {
		logger.Warn("failed to load .env", "error", err)
	}
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:    "soundshare",
		Usage:   "Share music reviews with friends",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(logger, log.DebugLevel)
			}
			runner.serveMetricsInBackground(ctx)
			return ctx, nil
		},
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, os.Args)
	stop()

	if cerr := runner.Close(); cerr != nil {
		logger.Warn("failed to close stores", "error", cerr)
	}

	if err != nil {
		logger.Error(describe(err))
		os.Exit(1)
	}
}

// describe adds a next step to the errors a user can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrRefreshInvalid):
		return fmt.Sprintf("%v; run `soundshare auth login`", err)
	case errors.Is(err, shared.ErrAuthCancelled):
		return "login cancelled"
	case errors.Is(err, shared.ErrInvalidConfig):
		return fmt.Sprintf("%v; run `soundshare setup config` and fill in the missing settings", err)
	case errors.Is(err, shared.ErrGraphWriteFailed):
		return fmt.Sprintf("%v; run `soundshare friends audit` to inspect", err)
	default:
		return fmt.Sprintf("application error: %v", err)
	}
}
