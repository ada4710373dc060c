package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-bulk-grader/internal/models"
	"github.com/noah-isme/gema-bulk-grader/internal/service"
)

var (
	discCourseID      string
	discTopicID       string
	discAssignmentID  string
	discInitialPoints float64
	discPeerPoints    float64
	discRequired      int
	discMaxPeerPoints float64
	discDeadline      string
	discLatePenalty   float64
	discEnrolledOnly  bool
	discDryRun        bool
	discConcurrency   int
	discPause         time.Duration
)

var gradeDiscussionCmd = &cobra.Command{
	Use:   "grade-discussion",
	Short: "Score discussion participation and apply the derived grades",
	Long: `grade-discussion fetches the full reply graph of a discussion topic, derives
a participation record per author (initial post, peer reviews of other
authors' threads), scores it with the supplied policy, and applies the grades
to the topic's assignment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var penalty *models.LatePenalty
		if discDeadline != "" {
			deadline, err := time.Parse(time.RFC3339, discDeadline)
			if err != nil {
				return fmt.Errorf("invalid --deadline, want RFC3339: %w", err)
			}
			if discLatePenalty < 0 || discLatePenalty > 1 {
				return errors.New("--late-penalty must be between 0 and 1")
			}
			penalty = &models.LatePenalty{Deadline: deadline, Percentage: discLatePenalty}
		}

		summary, err := discussionService.BulkGradeDiscussion(cmd.Context(), service.DiscussionGradeParams{
			CourseID:     discCourseID,
			TopicID:      discTopicID,
			AssignmentID: discAssignmentID,
			Criteria: models.DiscussionCriteria{
				InitialPostPoints:    discInitialPoints,
				PeerReviewPointsEach: discPeerPoints,
				RequiredPeerReviews:  discRequired,
				MaxPeerReviewPoints:  discMaxPeerPoints,
			},
			LatePenalty:  penalty,
			EnrolledOnly: discEnrolledOnly,
			DryRun:       discDryRun,
			Concurrency:  concurrencyOrDefault(discConcurrency),
			Pause:        pauseOrDefault(discPause),
		})
		if err != nil {
			return err
		}
		return printSummary(cmd, summary)
	},
}

func init() {
	gradeDiscussionCmd.Flags().StringVar(&discCourseID, "course", "", "course identifier (required)")
	gradeDiscussionCmd.Flags().StringVar(&discTopicID, "topic", "", "discussion topic identifier (required)")
	gradeDiscussionCmd.Flags().StringVar(&discAssignmentID, "assignment", "", "assignment receiving the grades (required)")
	gradeDiscussionCmd.Flags().Float64Var(&discInitialPoints, "initial-points", 0, "points for an initial post")
	gradeDiscussionCmd.Flags().Float64Var(&discPeerPoints, "peer-points", 0, "points per counted peer review")
	gradeDiscussionCmd.Flags().IntVar(&discRequired, "required-reviews", 0, "number of peer reviews that count")
	gradeDiscussionCmd.Flags().Float64Var(&discMaxPeerPoints, "max-peer-points", 0, "cap on the peer-review component")
	gradeDiscussionCmd.Flags().StringVar(&discDeadline, "deadline", "", "RFC3339 deadline for the late penalty")
	gradeDiscussionCmd.Flags().Float64Var(&discLatePenalty, "late-penalty", 0, "fraction deducted from a late initial post (0-1)")
	gradeDiscussionCmd.Flags().BoolVar(&discEnrolledOnly, "enrolled-only", false, "skip authors who are not actively enrolled")
	gradeDiscussionCmd.Flags().BoolVar(&discDryRun, "dry-run", false, "classify every author without mutating the backend")
	gradeDiscussionCmd.Flags().IntVar(&discConcurrency, "concurrency", 0, "max requests in flight per batch (default from config)")
	gradeDiscussionCmd.Flags().DurationVar(&discPause, "pause", -1, "pause between batches (default from config)")
	_ = gradeDiscussionCmd.MarkFlagRequired("course")
	_ = gradeDiscussionCmd.MarkFlagRequired("topic")
	_ = gradeDiscussionCmd.MarkFlagRequired("assignment")

	rootCmd.AddCommand(gradeDiscussionCmd)
}
