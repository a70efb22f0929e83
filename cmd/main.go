package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/setlistsync/internal/shared"
)

func main() {
	config := shared.DefaultConfig()
	logger := shared.NewLogger(shared.NewLogWriter(config.Log))

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: "config.toml",
		Logger:     logger,
	})
	defer runner.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runner.app().Run(ctx, os.Args); err != nil {
		if isUsageError(err) {
			logger.Error(err)
			os.Exit(2)
		}
		logger.Fatalf("application error: %v", err)
	}
}
