package batch

// Status classifies the result of processing one item.
type Status string

const (
	StatusGraded  Status = "graded"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is the terminal classification of one processed item. Exactly one
// outcome is produced per item in a run.
type Outcome struct {
	Status  Status
	OwnerID string
	Reason  string
}

// Graded marks an item whose mutation was applied (or would have been, in a
// dry run).
func Graded(ownerID string) Outcome {
	return Outcome{Status: StatusGraded, OwnerID: ownerID}
}

// Skipped marks an item the worker explicitly declined to touch.
func Skipped(ownerID string) Outcome {
	return Outcome{Status: StatusSkipped, OwnerID: ownerID}
}

// Failed marks an item that could not be processed.
func Failed(ownerID, reason string) Outcome {
	return Outcome{Status: StatusFailed, OwnerID: ownerID, Reason: reason}
}

// Failure pairs a failed item's owner with the reason it failed.
type Failure struct {
	OwnerID string
	Reason  string
}

// Summary is the aggregate result of one run. Graded + Skipped + Failed
// always equals Total.
type Summary struct {
	Total    int
	Graded   int
	Skipped  int
	Failed   int
	Failures []Failure
}

// Summarize folds ordered outcomes into a summary. Failure reasons keep the
// input order so callers can attribute them deterministically.
func Summarize(outcomes []Outcome) Summary {
	summary := Summary{Total: len(outcomes)}
	for _, outcome := range outcomes {
		switch outcome.Status {
		case StatusGraded:
			summary.Graded++
		case StatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			reason := outcome.Reason
			if reason == "" {
				reason = "unclassified outcome"
			}
			summary.Failures = append(summary.Failures, Failure{OwnerID: outcome.OwnerID, Reason: reason})
		}
	}
	return summary
}
