package models

import "time"

// CriterionScore is the assessment of one rubric criterion.
type CriterionScore struct {
	Points   float64 `json:"points"`
	RatingID string  `json:"rating_id,omitempty"`
	Comments string  `json:"comments,omitempty"`
}

// ScoreResult is the grade a scoring function computed for one record. A nil
// *ScoreResult means "skip, do not mutate". Criteria keys must belong to the
// caller-declared criterion set and every points value must be finite and
// non-negative.
type ScoreResult struct {
	Points   float64                   `json:"points"`
	Criteria map[string]CriterionScore `json:"criteria,omitempty"`
	Comment  string                    `json:"comment,omitempty"`
}

// DiscussionCriteria is the participation scoring policy for one topic.
type DiscussionCriteria struct {
	InitialPostPoints    float64 `json:"initial_post_points" validate:"gte=0"`
	PeerReviewPointsEach float64 `json:"peer_review_points_each" validate:"gte=0"`
	RequiredPeerReviews  int     `json:"required_peer_reviews" validate:"gte=0"`
	MaxPeerReviewPoints  float64 `json:"max_peer_review_points" validate:"gte=0"`
}

// LatePenalty reduces the initial-post component of a participation score
// when the author's earliest top-level post came after the deadline. The
// peer-review component is never penalized.
type LatePenalty struct {
	Deadline   time.Time `json:"deadline" validate:"required"`
	Percentage float64   `json:"percentage" validate:"gte=0,lte=1"`
}

// ParticipationRecord is the per-author view derived from a topic's reply
// graph. It lives only for the duration of one batch job and is recomputed
// fresh on every invocation.
type ParticipationRecord struct {
	AuthorID        string
	HasInitialPost  bool
	PeerReviewCount int
	EarliestPostAt  *time.Time
}
