// Package cli implements the bulkgrade command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-bulk-grader/internal/batch"
	"github.com/noah-isme/gema-bulk-grader/internal/config"
	"github.com/noah-isme/gema-bulk-grader/internal/dto"
	"github.com/noah-isme/gema-bulk-grader/internal/service"
	"github.com/noah-isme/gema-bulk-grader/pkg/lms"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	cfg    config.Config
	logger zerolog.Logger
	client *lms.Client

	gradingService    service.BulkGradingService
	discussionService service.DiscussionGradingService
)

var rootCmd = &cobra.Command{
	Use:   "bulkgrade",
	Short: "Bulk grading engine for a remote LMS backend",
	Long: `bulkgrade applies computed grades to large collections of remote records
(submissions, discussion participation) without issuing one uncontrolled
request per record: requests run in concurrency-capped, paced batches with
per-request retries, and per-item failures never abort the job.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("app", cfg.AppName).Logger()

		client, err = lms.New(lms.Config{
			BaseURL:    cfg.LMSBaseURL,
			Token:      cfg.LMSToken,
			Timeout:    cfg.RequestTimeout,
			PageSize:   cfg.PageSize,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		})
		if err != nil {
			return err
		}

		validate := validator.New(validator.WithRequiredStructEnabled())
		gradingService = service.NewBulkGradingService(client, validate, logger)
		discussionService = service.NewDiscussionGradingService(client, gradingService, validate, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// printSummary writes the caller-facing summary as JSON on stdout. Per-item
// failures are reported inside the summary, not as a process failure.
func printSummary(cmd *cobra.Command, summary batch.Summary) error {
	response := dto.NewBatchSummaryResponse(summary)
	encoded, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
