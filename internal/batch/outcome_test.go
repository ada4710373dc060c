package batch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarizeConservation(t *testing.T) {
	outcomes := []Outcome{
		Graded("1"),
		Skipped("2"),
		Failed("3", "network error"),
		Graded("4"),
		Failed("5", "validation failed"),
	}

	summary := Summarize(outcomes)
	require.Equal(t, 5, summary.Total)
	require.Equal(t, 2, summary.Graded)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 2, summary.Failed)
	require.Equal(t, summary.Total, summary.Graded+summary.Skipped+summary.Failed)
}

func TestSummarizeKeepsFailureOrder(t *testing.T) {
	outcomes := []Outcome{
		Failed("9", "first"),
		Graded("1"),
		Failed("3", "second"),
	}

	summary := Summarize(outcomes)
	require.Equal(t, []Failure{
		{OwnerID: "9", Reason: "first"},
		{OwnerID: "3", Reason: "second"},
	}, summary.Failures)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	require.Equal(t, Summary{}, summary)
}

func TestSummarizeUnclassifiedCountsAsFailed(t *testing.T) {
	summary := Summarize([]Outcome{{OwnerID: "8"}})
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, "unclassified outcome", summary.Failures[0].Reason)
}
