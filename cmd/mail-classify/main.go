package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mikey/mail-notifier/internal/adapters/mailbox"
	"github.com/mikey/mail-notifier/internal/config"
	"github.com/mikey/mail-notifier/internal/core"
	"github.com/mikey/mail-notifier/internal/di"
	"go.uber.org/zap"
)

func main() {
	flags := di.ParseFlags()

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(func(
		logger *zap.Logger,
		cfg *config.Config,
		parser *mailbox.Parser,
		scorer *core.ImportanceService,
		llmClient core.LLMClient,
	) error {
		defer logger.Sync()
		defer func() {
			if closer, ok := llmClient.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
		}()
		return classify(flags, cfg, parser, scorer, logger)
	}); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// classify reads one message, scores it and prints the outcome
func classify(flags *di.CLIFlags, cfg *config.Config, parser *mailbox.Parser, scorer *core.ImportanceService, logger *zap.Logger) error {
	// Read email from file or stdin
	var emailReader io.Reader = os.Stdin
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		logger.Info("Reading email from stdin")
	}

	raw, err := io.ReadAll(emailReader)
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}

	record, err := parser.Parse(0, raw)
	if err != nil {
		return err
	}

	// Print email summary
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", record.Sender)
	fmt.Printf("Subject: %s\n", record.Subject)
	fmt.Printf("Size: %d bytes\n", record.RawLength)
	if flags.Verbose {
		fmt.Printf("\nBody preview:\n%s\n", record.Body)
	}

	fmt.Printf("\n=== Analysis ===\n")
	fmt.Printf("Provider: %s\n", cfg.GetLLM().Provider)

	startTime := time.Now()
	result := scorer.ScoreRecord(context.Background(), record)
	duration := time.Since(startTime)

	// Print results
	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Score: %.4f\n", result.Value())
	fmt.Printf("Band: %s\n", core.BandFor(result.Value()))
	fmt.Printf("Model used: %s\n", result.Model)
	if result.Failed() {
		fmt.Printf("Fallback: %s (%v)\n", result.Failure, result.Err)
	}
	fmt.Printf("Processing time: %v\n", duration)
	return nil
}
