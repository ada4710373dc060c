package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-bulk-grader/internal/batch"
	"github.com/noah-isme/gema-bulk-grader/internal/models"
	"github.com/noah-isme/gema-bulk-grader/pkg/lms"
)

// ErrTopicUnavailable indicates the batch target itself could not be
// resolved. The job aborts before any per-item work since no individual
// retry can fix it.
var ErrTopicUnavailable = errors.New("discussion topic could not be resolved")

// EntryLister is the slice of the LMS client the analyzer reads through.
type EntryLister interface {
	ListDiscussionEntries(ctx context.Context, courseID, topicID string) ([]lms.DiscussionEntry, error)
	ListActiveStudents(ctx context.Context, courseID string) ([]lms.Student, error)
}

// DiscussionGradeParams describes one discussion participation grading job.
type DiscussionGradeParams struct {
	CourseID     string `validate:"required"`
	TopicID      string `validate:"required"`
	AssignmentID string `validate:"required"`
	Criteria     models.DiscussionCriteria
	LatePenalty  *models.LatePenalty
	// EnrolledOnly skips authors who are no longer actively enrolled instead
	// of grading them.
	EnrolledOnly bool
	DryRun       bool
	Concurrency  int
	Pause        time.Duration
}

// DiscussionGradingService scores discussion participation from a topic's
// reply graph and applies the derived grades through the grading engine.
type DiscussionGradingService interface {
	BulkGradeDiscussion(ctx context.Context, params DiscussionGradeParams) (batch.Summary, error)
}

type discussionGradingService struct {
	client    EntryLister
	engine    BulkGradingService
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewDiscussionGradingService constructs the discussion participation analyzer.
func NewDiscussionGradingService(client EntryLister, engine BulkGradingService, validate *validator.Validate, logger zerolog.Logger) DiscussionGradingService {
	return &discussionGradingService{
		client:    client,
		engine:    engine,
		validator: validate,
		logger:    logger.With().Str("component", "discussion_grading_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-bulk-grader/internal/service/discussion_grading"),
	}
}

func (s *discussionGradingService) BulkGradeDiscussion(ctx context.Context, params DiscussionGradeParams) (batch.Summary, error) {
	if err := s.validator.Struct(params); err != nil {
		return batch.Summary{}, err
	}

	ctx, span := s.tracer.Start(ctx, "grading.discussion", trace.WithAttributes(
		attribute.String("grading.course_id", params.CourseID),
		attribute.String("grading.topic_id", params.TopicID),
		attribute.Bool("grading.dry_run", params.DryRun),
	))
	defer span.End()

	entries, err := s.client.ListDiscussionEntries(ctx, params.CourseID, params.TopicID)
	if err != nil {
		span.RecordError(err)
		if lms.IsNotFound(err) || lms.IsUnauthorized(err) {
			return batch.Summary{}, fmt.Errorf("%w: %v", ErrTopicUnavailable, err)
		}
		return batch.Summary{}, fmt.Errorf("list discussion entries: %w", err)
	}

	var enrolled map[string]struct{}
	if params.EnrolledOnly {
		students, err := s.client.ListActiveStudents(ctx, params.CourseID)
		if err != nil {
			span.RecordError(err)
			return batch.Summary{}, fmt.Errorf("list active students: %w", err)
		}
		enrolled = make(map[string]struct{}, len(students))
		for _, student := range students {
			enrolled[strconv.FormatInt(student.ID, 10)] = struct{}{}
		}
	}

	participation := buildParticipation(entries)
	s.logger.Info().
		Str("topic_id", params.TopicID).
		Int("entries", len(entries)).
		Int("authors", len(participation)).
		Msg("built participation index")

	// One synthetic record per author, in stable id order so repeated runs
	// produce identical summaries.
	authorIDs := make([]int64, 0, len(participation))
	for id := range participation {
		authorIDs = append(authorIDs, id)
	}
	slices.Sort(authorIDs)

	records := make([]lms.Submission, 0, len(authorIDs))
	scores := make(map[string]*models.ScoreResult, len(authorIDs))
	for _, id := range authorIDs {
		records = append(records, lms.Submission{UserID: id})
		scores[strconv.FormatInt(id, 10)] = scoreParticipation(participation[id], params.Criteria, params.LatePenalty)
	}

	scoringFn := func(record lms.Submission) (*models.ScoreResult, error) {
		owner := strconv.FormatInt(record.UserID, 10)
		if enrolled != nil {
			if _, ok := enrolled[owner]; !ok {
				return nil, nil
			}
		}
		return scores[owner], nil
	}

	return s.engine.BulkGrade(ctx, BulkGradeParams{
		CourseID:     params.CourseID,
		AssignmentID: params.AssignmentID,
		Records:      records,
		Score:        scoringFn,
		DryRun:       params.DryRun,
		Concurrency:  params.Concurrency,
		Pause:        params.Pause,
		Kind:         "discussion",
	})
}

// buildParticipation derives one ParticipationRecord per author from the flat
// entry list. Two O(N) passes: entry id to author first, then per-entry
// classification, so no repeated scans of the reply graph.
func buildParticipation(entries []lms.DiscussionEntry) map[int64]*models.ParticipationRecord {
	authorOf := make(map[int64]int64, len(entries))
	for _, entry := range entries {
		authorOf[entry.ID] = entry.UserID
	}

	records := make(map[int64]*models.ParticipationRecord)
	get := func(userID int64) *models.ParticipationRecord {
		record, ok := records[userID]
		if !ok {
			record = &models.ParticipationRecord{AuthorID: strconv.FormatInt(userID, 10)}
			records[userID] = record
		}
		return record
	}

	for _, entry := range entries {
		record := get(entry.UserID)
		if entry.ParentID == nil {
			record.HasInitialPost = true
			if record.EarliestPostAt == nil || entry.CreatedAt.Before(*record.EarliestPostAt) {
				at := entry.CreatedAt
				record.EarliestPostAt = &at
			}
			continue
		}
		// Replies to one's own entry are not peer review. Replies to entries
		// missing from the list (deleted parents) do not count either.
		if parentAuthor, ok := authorOf[*entry.ParentID]; ok && parentAuthor != entry.UserID {
			record.PeerReviewCount++
		}
	}
	return records
}

// scoreParticipation computes the participation grade. The peer-review
// component alone is capped before the initial-post component is added, and
// only the initial-post component is reduced by a late penalty.
func scoreParticipation(record *models.ParticipationRecord, criteria models.DiscussionCriteria, penalty *models.LatePenalty) *models.ScoreResult {
	counted := record.PeerReviewCount
	if counted > criteria.RequiredPeerReviews {
		counted = criteria.RequiredPeerReviews
	}
	peer := float64(counted) * criteria.PeerReviewPointsEach
	if peer > criteria.MaxPeerReviewPoints {
		peer = criteria.MaxPeerReviewPoints
	}

	initial := 0.0
	late := false
	if record.HasInitialPost {
		initial = criteria.InitialPostPoints
		if penalty != nil && record.EarliestPostAt != nil && record.EarliestPostAt.After(penalty.Deadline) {
			initial *= 1 - penalty.Percentage
			late = true
		}
	}

	comment := fmt.Sprintf("Participation: initial post %s (%.4g pts), %d peer review(s) counted (%.4g pts).",
		boolWord(record.HasInitialPost), initial, counted, peer)
	if late {
		comment += " Late penalty applied to the initial post."
	}

	return &models.ScoreResult{Points: initial + peer, Comment: comment}
}

func boolWord(present bool) string {
	if present {
		return "yes"
	}
	return "no"
}
