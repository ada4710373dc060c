package dto

import "github.com/noah-isme/gema-bulk-grader/internal/batch"

// FailureResponse attributes one failed item to its owner.
type FailureResponse struct {
	OwnerID string `json:"owner_id"`
	Reason  string `json:"reason"`
}

// BatchSummaryResponse is the caller-facing result of one bulk grading job.
type BatchSummaryResponse struct {
	Total    int               `json:"total"`
	Graded   int               `json:"graded"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Failures []FailureResponse `json:"failures"`
}

// NewBatchSummaryResponse converts a batch summary into its response shape.
func NewBatchSummaryResponse(summary batch.Summary) BatchSummaryResponse {
	failures := make([]FailureResponse, 0, len(summary.Failures))
	for _, failure := range summary.Failures {
		failures = append(failures, FailureResponse{OwnerID: failure.OwnerID, Reason: failure.Reason})
	}
	return BatchSummaryResponse{
		Total:    summary.Total,
		Graded:   summary.Graded,
		Skipped:  summary.Skipped,
		Failed:   summary.Failed,
		Failures: failures,
	}
}
