package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/planwise/plancheck/internal/types"
)

func TestPrintClassifications(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintClassifications([]types.PageClassification{
		{PageNumber: 1, PageType: "cover_sheet", Confidence: 90, Signals: []string{"DRAWING LIST"}},
		{PageNumber: 2, PageType: "site_plan", Confidence: 85},
	})

	out := buf.String()
	assert.Contains(t, out, "PAGE CLASSIFICATIONS")
	assert.Contains(t, out, "cover_sheet (90%)")
	assert.Contains(t, out, "DRAWING LIST")
}

func TestPrintClassifications_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintClassifications(nil)
	assert.Empty(t, buf.String())
}

func TestPrintCheckResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintCheckResult(&types.CheckResult{
		RunNumber: 2,
		Completeness: []types.CheckVerdict{
			{CheckID: "has_title", PageNumber: 1, Status: types.StatusPass},
			{CheckID: "has_date", PageNumber: 1, Status: types.StatusFail, Notes: "Not evaluated"},
		},
		Summary: types.Summary{TotalChecks: 2, Passed: 1, Failed: 1},
		Usage:   types.Usage{InputTokens: 120, OutputTokens: 30},
	})

	out := buf.String()
	assert.Contains(t, out, "CHECK RESULT")
	assert.Contains(t, out, "Run:      #2")
	assert.Contains(t, out, "p1 has_date")
	assert.Contains(t, out, "Not evaluated")
	assert.NotContains(t, out, "has_title", "passed checks are not itemized")
}

func TestPrintBatchRun(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintBatchRun(&types.BatchCheckRun{
		Status:             types.BatchCompletedWithErrors,
		TotalDocuments:     5,
		CompletedDocuments: 3,
		FailedDocuments:    1,
		SkippedDocuments:   1,
		TotalPassed:        12,
		TotalFailed:        4,
		ErrorMessage:       strings.Repeat("x", 60),
	})

	out := buf.String()
	assert.Contains(t, out, "BATCH CHECK RUN")
	assert.Contains(t, out, "completed_with_errors")
	assert.Contains(t, out, "12 passed / 4 failed")
	assert.Contains(t, out, "...", "long error messages truncate")
}

func TestPrintBoxLineTruncation(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.printBox("TITLE", strings.Repeat("z", 200))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
}
