package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-bulk-grader/internal/models"
	"github.com/noah-isme/gema-bulk-grader/internal/service"
	"github.com/noah-isme/gema-bulk-grader/pkg/lms"
)

var (
	subCourseID     string
	subAssignmentID string
	subScoresPath   string
	subDryRun       bool
	subConcurrency  int
	subPause        time.Duration
)

// scoreFile is the on-disk input for grade-submissions: the declared rubric
// criteria with their point caps, and one score per student id. Students
// absent from the file are skipped.
type scoreFile struct {
	Criteria map[string]float64             `json:"criteria"`
	Scores   map[string]*models.ScoreResult `json:"scores"`
}

var gradeSubmissionsCmd = &cobra.Command{
	Use:   "grade-submissions",
	Short: "Apply precomputed grades to every submission of an assignment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		file, err := loadScoreFile(subScoresPath)
		if err != nil {
			return err
		}

		scores := make(map[int64]*models.ScoreResult, len(file.Scores))
		for key, result := range file.Scores {
			userID, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return fmt.Errorf("scores file: %q is not a valid user id", key)
			}
			scores[userID] = result
		}

		// An unresolvable assignment surfaces here and aborts the job before
		// any per-item work.
		records, err := client.ListSubmissions(ctx, subCourseID, subAssignmentID)
		if err != nil {
			return fmt.Errorf("fetch submissions: %w", err)
		}

		summary, err := gradingService.BulkGrade(ctx, service.BulkGradeParams{
			CourseID:     subCourseID,
			AssignmentID: subAssignmentID,
			Records:      records,
			Criteria:     file.Criteria,
			Score: func(record lms.Submission) (*models.ScoreResult, error) {
				return scores[record.UserID], nil
			},
			DryRun:      subDryRun,
			Concurrency: concurrencyOrDefault(subConcurrency),
			Pause:       pauseOrDefault(subPause),
		})
		if err != nil {
			return err
		}
		return printSummary(cmd, summary)
	},
}

func init() {
	gradeSubmissionsCmd.Flags().StringVar(&subCourseID, "course", "", "course identifier (required)")
	gradeSubmissionsCmd.Flags().StringVar(&subAssignmentID, "assignment", "", "assignment identifier (required)")
	gradeSubmissionsCmd.Flags().StringVar(&subScoresPath, "scores", "", "path to the JSON score file (required)")
	gradeSubmissionsCmd.Flags().BoolVar(&subDryRun, "dry-run", false, "classify every record without mutating the backend")
	gradeSubmissionsCmd.Flags().IntVar(&subConcurrency, "concurrency", 0, "max requests in flight per batch (default from config)")
	gradeSubmissionsCmd.Flags().DurationVar(&subPause, "pause", -1, "pause between batches (default from config)")
	_ = gradeSubmissionsCmd.MarkFlagRequired("course")
	_ = gradeSubmissionsCmd.MarkFlagRequired("assignment")
	_ = gradeSubmissionsCmd.MarkFlagRequired("scores")

	rootCmd.AddCommand(gradeSubmissionsCmd)
}

func loadScoreFile(path string) (scoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scoreFile{}, fmt.Errorf("read scores file: %w", err)
	}
	var file scoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return scoreFile{}, fmt.Errorf("parse scores file: %w", err)
	}
	return file, nil
}

func concurrencyOrDefault(flag int) int {
	if flag > 0 {
		return flag
	}
	return cfg.Concurrency
}

func pauseOrDefault(flag time.Duration) time.Duration {
	if flag >= 0 {
		return flag
	}
	return cfg.InterBatchPause
}
