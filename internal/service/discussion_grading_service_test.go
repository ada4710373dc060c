package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-bulk-grader/internal/models"
	"github.com/noah-isme/gema-bulk-grader/pkg/lms"
)

// fakeEntryLister serves a canned reply graph and enrollment list.
type fakeEntryLister struct {
	entries    []lms.DiscussionEntry
	students   []lms.Student
	entriesErr error
}

func (f *fakeEntryLister) ListDiscussionEntries(ctx context.Context, courseID, topicID string) ([]lms.DiscussionEntry, error) {
	if f.entriesErr != nil {
		return nil, f.entriesErr
	}
	return f.entries, nil
}

func (f *fakeEntryLister) ListActiveStudents(ctx context.Context, courseID string) ([]lms.Student, error) {
	return f.students, nil
}

func ptrInt64(v int64) *int64 { return &v }

func entryAt(id, userID int64, parent *int64, at time.Time) lms.DiscussionEntry {
	return lms.DiscussionEntry{ID: id, UserID: userID, ParentID: parent, CreatedAt: at}
}

func defaultCriteria() models.DiscussionCriteria {
	return models.DiscussionCriteria{
		InitialPostPoints:    10,
		PeerReviewPointsEach: 5,
		RequiredPeerReviews:  2,
		MaxPeerReviewPoints:  10,
	}
}

func newDiscussionFixture(lister *fakeEntryLister) (DiscussionGradingService, *fakeGrader) {
	grader := newFakeGrader()
	engine := NewBulkGradingService(grader, testValidator(), testLogger())
	svc := NewDiscussionGradingService(lister, engine, testValidator(), testLogger())
	return svc, grader
}

func TestBulkGradeDiscussionScoresParticipation(t *testing.T) {
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	// Author 1: initial post + 3 peer replies; only 2 count, capped at 10.
	// Author 2: no initial post, 1 peer reply.
	lister := &fakeEntryLister{entries: []lms.DiscussionEntry{
		entryAt(1, 1, nil, base),
		entryAt(2, 3, nil, base.Add(time.Minute)),
		entryAt(3, 4, nil, base.Add(2*time.Minute)),
		entryAt(4, 5, nil, base.Add(3*time.Minute)),
		entryAt(5, 1, ptrInt64(2), base.Add(4*time.Minute)),
		entryAt(6, 1, ptrInt64(3), base.Add(5*time.Minute)),
		entryAt(7, 1, ptrInt64(4), base.Add(6*time.Minute)),
		entryAt(8, 2, ptrInt64(1), base.Add(7*time.Minute)),
	}}
	svc, grader := newDiscussionFixture(lister)

	summary, err := svc.BulkGradeDiscussion(context.Background(), DiscussionGradeParams{
		CourseID:     "10",
		TopicID:      "20",
		AssignmentID: "30",
		Criteria:     defaultCriteria(),
	})
	require.NoError(t, err)
	require.Equal(t, 5, summary.Total)
	require.Equal(t, 5, summary.Graded)

	require.Equal(t, 20.0, grader.payloads[1].PostedGrade, "initial 10 + capped peer 10")
	require.Equal(t, 5.0, grader.payloads[2].PostedGrade, "no initial post, one peer reply")
}

func TestBulkGradeDiscussionSelfRepliesDoNotCount(t *testing.T) {
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	lister := &fakeEntryLister{entries: []lms.DiscussionEntry{
		entryAt(1, 1, nil, base),
		entryAt(2, 1, ptrInt64(1), base.Add(time.Minute)),
		entryAt(3, 1, ptrInt64(2), base.Add(2*time.Minute)),
	}}
	svc, grader := newDiscussionFixture(lister)

	summary, err := svc.BulkGradeDiscussion(context.Background(), DiscussionGradeParams{
		CourseID:     "10",
		TopicID:      "20",
		AssignmentID: "30",
		Criteria:     defaultCriteria(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Graded)
	require.Equal(t, 10.0, grader.payloads[1].PostedGrade, "initial post only, self-replies excluded")
}

func TestBulkGradeDiscussionLatePenaltyHitsInitialOnly(t *testing.T) {
	deadline := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	after := deadline.Add(6 * time.Hour)
	lister := &fakeEntryLister{entries: []lms.DiscussionEntry{
		entryAt(1, 2, nil, deadline.Add(-time.Hour)),
		entryAt(2, 1, nil, after),
		entryAt(3, 1, ptrInt64(1), after.Add(time.Minute)),
		entryAt(4, 1, ptrInt64(1), after.Add(2*time.Minute)),
	}}
	svc, grader := newDiscussionFixture(lister)

	summary, err := svc.BulkGradeDiscussion(context.Background(), DiscussionGradeParams{
		CourseID:     "10",
		TopicID:      "20",
		AssignmentID: "30",
		Criteria:     defaultCriteria(),
		LatePenalty:  &models.LatePenalty{Deadline: deadline, Percentage: 0.2},
	})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Graded)

	// Initial 10 * 0.8 = 8, peer component 2 * 5 = 10 untouched.
	require.Equal(t, 18.0, grader.payloads[1].PostedGrade)
	// On-time author keeps the full initial component.
	require.Equal(t, 10.0, grader.payloads[2].PostedGrade)
}

func TestBulkGradeDiscussionZeroParticipationStillGraded(t *testing.T) {
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	// Author 2's only entry replies to a parent missing from the list, so
	// neither component earns points.
	lister := &fakeEntryLister{entries: []lms.DiscussionEntry{
		entryAt(1, 1, nil, base),
		entryAt(2, 2, ptrInt64(99), base.Add(time.Minute)),
	}}
	svc, grader := newDiscussionFixture(lister)

	summary, err := svc.BulkGradeDiscussion(context.Background(), DiscussionGradeParams{
		CourseID:     "10",
		TopicID:      "20",
		AssignmentID: "30",
		Criteria:     defaultCriteria(),
	})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Graded)
	require.Equal(t, 0, summary.Skipped)
	require.Equal(t, 0.0, grader.payloads[2].PostedGrade)
}

func TestBulkGradeDiscussionEnrolledOnlySkips(t *testing.T) {
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	lister := &fakeEntryLister{
		entries: []lms.DiscussionEntry{
			entryAt(1, 1, nil, base),
			entryAt(2, 2, nil, base.Add(time.Minute)),
		},
		students: []lms.Student{{ID: 1, Name: "Enrolled Student"}},
	}
	svc, grader := newDiscussionFixture(lister)

	summary, err := svc.BulkGradeDiscussion(context.Background(), DiscussionGradeParams{
		CourseID:     "10",
		TopicID:      "20",
		AssignmentID: "30",
		Criteria:     defaultCriteria(),
		EnrolledOnly: true,
	})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 1, summary.Graded)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 1, grader.callCount())
}

func TestBulkGradeDiscussionDeterministic(t *testing.T) {
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	entries := []lms.DiscussionEntry{
		entryAt(1, 5, nil, base),
		entryAt(2, 6, nil, base.Add(time.Minute)),
		entryAt(3, 5, ptrInt64(2), base.Add(2*time.Minute)),
		entryAt(4, 6, ptrInt64(1), base.Add(3*time.Minute)),
		entryAt(5, 7, ptrInt64(1), base.Add(4*time.Minute)),
	}

	grades := func() map[int64]float64 {
		lister := &fakeEntryLister{entries: entries}
		svc, grader := newDiscussionFixture(lister)
		_, err := svc.BulkGradeDiscussion(context.Background(), DiscussionGradeParams{
			CourseID:     "10",
			TopicID:      "20",
			AssignmentID: "30",
			Criteria:     defaultCriteria(),
			Concurrency:  3,
		})
		require.NoError(t, err)
		result := make(map[int64]float64, len(grader.payloads))
		for userID, payload := range grader.payloads {
			result[userID] = payload.PostedGrade
		}
		return result
	}

	first := grades()
	for range 5 {
		require.Equal(t, first, grades())
	}
}

func TestBulkGradeDiscussionUnresolvableTopicAborts(t *testing.T) {
	lister := &fakeEntryLister{entriesErr: &lms.APIError{StatusCode: 404, Method: "GET", Path: "/x", Message: "topic not found"}}
	svc, grader := newDiscussionFixture(lister)

	_, err := svc.BulkGradeDiscussion(context.Background(), DiscussionGradeParams{
		CourseID:     "10",
		TopicID:      "999",
		AssignmentID: "30",
		Criteria:     defaultCriteria(),
	})
	require.ErrorIs(t, err, ErrTopicUnavailable)
	require.Equal(t, 0, grader.callCount())
}

func TestBuildParticipationEarliestPost(t *testing.T) {
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	earlier := base.Add(-2 * time.Hour)
	records := buildParticipation([]lms.DiscussionEntry{
		entryAt(1, 1, nil, base),
		entryAt(2, 1, nil, earlier),
	})

	require.True(t, records[1].HasInitialPost)
	require.Equal(t, earlier, *records[1].EarliestPostAt)
}
