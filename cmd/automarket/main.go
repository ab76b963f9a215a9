package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/rcliao/automarket/internal/cli"
	"github.com/rcliao/automarket/internal/config"
	"github.com/rcliao/automarket/internal/observability"
)

func main() {
	// A missing .env is fine; the environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	cli.Configure(cfg, logger)

	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
