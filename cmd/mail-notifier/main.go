package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/mail-notifier/internal/adapters/cache"
	"github.com/mikey/mail-notifier/internal/core"
	"github.com/mikey/mail-notifier/internal/di"
	"github.com/mikey/mail-notifier/internal/ports"
	"github.com/mikey/mail-notifier/internal/scheduler"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	frontend ports.ChatFrontend,
	sched *scheduler.Scheduler,
	llmClient core.LLMClient,
	scoreCache cache.Cache,
) error {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the chat frontend
	if err := frontend.Start(ctx); err != nil {
		logger.Error("Failed to start frontend", zap.Error(err))
		return err
	}

	// Start the triggers
	if err := sched.Start(); err != nil {
		logger.Error("Failed to start scheduler", zap.Error(err))
		_ = frontend.Stop()
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	sched.Stop()
	if err := frontend.Stop(); err != nil {
		logger.Error("Failed to stop frontend", zap.Error(err))
	}

	// Close any resources that need closing
	if closer, ok := llmClient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close LLM client", zap.Error(err))
		}
	}
	scoreCache.Stop()

	logger.Info("Shutdown complete")
	return nil
}
