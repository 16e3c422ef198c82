package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryCount(t *testing.T) {
	var s Summary
	for _, status := range []CheckStatus{StatusPass, StatusPass, StatusFail, StatusNeedsReview, StatusNA} {
		s.Count(status)
	}

	assert.Equal(t, 5, s.TotalChecks)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.NeedsReview)
	assert.Equal(t, 1, s.NA)
}

func TestUsageAdd(t *testing.T) {
	total := Usage{InputTokens: 100, OutputTokens: 40}.Add(Usage{InputTokens: 25, OutputTokens: 5})
	assert.Equal(t, Usage{InputTokens: 125, OutputTokens: 45}, total)
}

func TestCheckResultVerdicts(t *testing.T) {
	r := CheckResult{
		Completeness: []CheckVerdict{{CheckID: "has_title"}},
		Compliance:   []CheckVerdict{{CheckID: "setback_compliance"}, {CheckID: "height_limit"}},
	}

	verdicts := r.Verdicts()
	assert.Len(t, verdicts, 3)
	assert.Equal(t, "has_title", verdicts[0].CheckID)
	assert.Equal(t, "height_limit", verdicts[2].CheckID)
}

func TestBatchRunStatusTerminal(t *testing.T) {
	tests := []struct {
		status BatchRunStatus
		want   bool
	}{
		{BatchPending, false},
		{BatchProcessing, false},
		{BatchCompleted, true},
		{BatchCompletedWithErrors, true},
		{BatchFailed, true},
		{BatchCancelled, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Terminal(), string(tt.status))
	}
}
