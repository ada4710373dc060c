package lms

import "time"

// Submission is a snapshot of one student submission as returned by the
// backend. Snapshots are fetched once per batch job and never mutated locally.
type Submission struct {
	ID            int64        `json:"id"`
	UserID        int64        `json:"user_id"`
	Score         *float64     `json:"score"`
	Grade         string       `json:"grade"`
	WorkflowState string       `json:"workflow_state"`
	SubmittedAt   *time.Time   `json:"submitted_at"`
	Late          bool         `json:"late"`
	Missing       bool         `json:"missing"`
	Attachments   []Attachment `json:"attachments"`
}

// Attachment is a file attached to a submission.
type Attachment struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	ContentType string `json:"content-type"`
	URL         string `json:"url"`
}

// DiscussionEntry is one post in a discussion topic. A nil ParentID marks a
// top-level post; replies carry the id of the entry they respond to.
type DiscussionEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ParentID  *int64    `json:"parent_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Student is an actively enrolled course member.
type Student struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SortableName string `json:"sortable_name"`
}

// RubricScore is the assessment of a single rubric criterion.
type RubricScore struct {
	Points   float64
	RatingID string
	Comments string
}

// GradePayload is the mutation applied to one submission. A payload with
// rubric scores is sent form-encoded; a flat grade goes out as JSON.
type GradePayload struct {
	PostedGrade float64
	Comment     string
	Rubric      map[string]RubricScore
}
