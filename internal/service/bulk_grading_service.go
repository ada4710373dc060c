// Package service implements the bulk grading engine and the discussion
// participation analyzer on top of the batch scheduler and the LMS client.
package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-bulk-grader/internal/batch"
	"github.com/noah-isme/gema-bulk-grader/internal/models"
	"github.com/noah-isme/gema-bulk-grader/internal/observability"
	"github.com/noah-isme/gema-bulk-grader/pkg/lms"
)

// ScoringFunc computes the grade for one submission. It must be pure with
// respect to the batch target: no network I/O against the records being
// graded. A nil result means "skip, do not mutate"; an error fails the record
// without contacting the backend.
type ScoringFunc func(record lms.Submission) (*models.ScoreResult, error)

// SubmissionGrader is the slice of the LMS client the engine mutates through.
type SubmissionGrader interface {
	GradeSubmission(ctx context.Context, courseID, assignmentID string, userID int64, grade lms.GradePayload) error
}

// ValidationError reports a score that failed local pre-flight checks. It is
// classified as Failed without any network call.
type ValidationError struct {
	CriterionID string
	Detail      string
}

func (e *ValidationError) Error() string {
	if e.CriterionID != "" {
		return fmt.Sprintf("invalid score for criterion %s: %s", e.CriterionID, e.Detail)
	}
	return "invalid score: " + e.Detail
}

// BulkGradeParams describes one bulk grading job. Immutable during execution.
type BulkGradeParams struct {
	CourseID     string `validate:"required"`
	AssignmentID string `validate:"required"`
	Records      []lms.Submission
	// Criteria declares the valid rubric criterion ids and their point caps.
	// Score results referencing anything else fail validation.
	Criteria    map[string]float64
	Score       ScoringFunc `validate:"required"`
	DryRun      bool
	Concurrency int
	Pause       time.Duration
	// Kind labels the job in logs and metrics. Defaults to "submissions".
	Kind string
}

// BulkGradingService applies computed grades to a collection of submissions.
type BulkGradingService interface {
	BulkGrade(ctx context.Context, params BulkGradeParams) (batch.Summary, error)
}

type bulkGradingService struct {
	client    SubmissionGrader
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewBulkGradingService constructs the bulk grading engine.
func NewBulkGradingService(client SubmissionGrader, validate *validator.Validate, logger zerolog.Logger) BulkGradingService {
	return &bulkGradingService{
		client:    client,
		validator: validate,
		logger:    logger.With().Str("component", "bulk_grading_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-bulk-grader/internal/service/bulk_grading"),
	}
}

func (s *bulkGradingService) BulkGrade(ctx context.Context, params BulkGradeParams) (batch.Summary, error) {
	if err := s.validator.Struct(params); err != nil {
		return batch.Summary{}, err
	}

	kind := params.Kind
	if kind == "" {
		kind = "submissions"
	}

	jobID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "grading.bulk", trace.WithAttributes(
		attribute.String("grading.job_id", jobID),
		attribute.String("grading.kind", kind),
		attribute.String("grading.course_id", params.CourseID),
		attribute.String("grading.assignment_id", params.AssignmentID),
		attribute.Int("grading.records", len(params.Records)),
		attribute.Bool("grading.dry_run", params.DryRun),
	))
	defer span.End()

	logger := s.logger.With().
		Str("job_id", jobID).
		Str("course_id", params.CourseID).
		Str("assignment_id", params.AssignmentID).
		Logger()
	logger.Info().
		Int("records", len(params.Records)).
		Bool("dry_run", params.DryRun).
		Int("concurrency", params.Concurrency).
		Dur("pause", params.Pause).
		Msg("starting bulk grade job")

	start := time.Now()
	outcomes := batch.Run(ctx, params.Records, submissionOwner,
		func(ctx context.Context, record lms.Submission) (batch.Outcome, error) {
			return s.gradeOne(ctx, params, record)
		},
		batch.Options{Concurrency: params.Concurrency, Pause: params.Pause})

	summary := batch.Summarize(outcomes)
	recordJobMetrics(kind, summary, time.Since(start))
	span.SetAttributes(
		attribute.Int("grading.graded", summary.Graded),
		attribute.Int("grading.skipped", summary.Skipped),
		attribute.Int("grading.failed", summary.Failed),
	)
	logger.Info().
		Int("graded", summary.Graded).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("bulk grade job finished")

	return summary, nil
}

// gradeOne classifies a single record. Dry runs follow the exact same path
// with the mutation suppressed, so both modes classify identically.
func (s *bulkGradingService) gradeOne(ctx context.Context, params BulkGradeParams, record lms.Submission) (batch.Outcome, error) {
	owner := submissionOwner(record)

	result, err := params.Score(record)
	if err != nil {
		return batch.Outcome{}, fmt.Errorf("score: %w", err)
	}
	if result == nil {
		return batch.Skipped(owner), nil
	}

	if err := validateScoreResult(result, params.Criteria); err != nil {
		return batch.Failed(owner, err.Error()), nil
	}

	if params.DryRun {
		return batch.Graded(owner), nil
	}

	payload := lms.GradePayload{
		PostedGrade: result.Points,
		Comment:     result.Comment,
		Rubric:      rubricPayload(result.Criteria),
	}
	if err := s.client.GradeSubmission(ctx, params.CourseID, params.AssignmentID, record.UserID, payload); err != nil {
		return batch.Outcome{}, err
	}
	return batch.Graded(owner), nil
}

// submissionOwner reports the backend's native owner identifier, unchanged,
// so downstream identity mapping stays consistent across calls.
func submissionOwner(record lms.Submission) string {
	return strconv.FormatInt(record.UserID, 10)
}

func validateScoreResult(result *models.ScoreResult, declared map[string]float64) error {
	if !isFiniteNonNegative(result.Points) {
		return &ValidationError{Detail: fmt.Sprintf("total points %v must be a finite non-negative number", result.Points)}
	}
	for id, criterion := range result.Criteria {
		maxPoints, ok := declared[id]
		if !ok {
			return &ValidationError{CriterionID: id, Detail: "criterion is not declared for this assignment"}
		}
		if !isFiniteNonNegative(criterion.Points) {
			return &ValidationError{CriterionID: id, Detail: fmt.Sprintf("points %v must be a finite non-negative number", criterion.Points)}
		}
		if criterion.Points > maxPoints {
			return &ValidationError{CriterionID: id, Detail: fmt.Sprintf("points %v exceed the declared maximum %v", criterion.Points, maxPoints)}
		}
	}
	return nil
}

func isFiniteNonNegative(points float64) bool {
	return points >= 0 && !math.IsNaN(points) && !math.IsInf(points, 0)
}

func rubricPayload(criteria map[string]models.CriterionScore) map[string]lms.RubricScore {
	if len(criteria) == 0 {
		return nil
	}
	rubric := make(map[string]lms.RubricScore, len(criteria))
	for id, score := range criteria {
		rubric[id] = lms.RubricScore{
			Points:   score.Points,
			RatingID: score.RatingID,
			Comments: score.Comments,
		}
	}
	return rubric
}

func recordJobMetrics(kind string, summary batch.Summary, elapsed time.Duration) {
	observability.BatchJobs().WithLabelValues(kind).Inc()
	observability.BatchJobDuration().WithLabelValues(kind).Observe(elapsed.Seconds())
	observability.BatchItems().WithLabelValues(string(batch.StatusGraded)).Add(float64(summary.Graded))
	observability.BatchItems().WithLabelValues(string(batch.StatusSkipped)).Add(float64(summary.Skipped))
	observability.BatchItems().WithLabelValues(string(batch.StatusFailed)).Add(float64(summary.Failed))
}
