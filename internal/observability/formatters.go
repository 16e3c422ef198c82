// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/planwise/plancheck/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintClassifications outputs the page-type assignment for each page.
func (p *Printer) PrintClassifications(classifications []types.PageClassification) {
	if len(classifications) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Classified %d pages:\n\n", len(classifications)))

	count := min(len(classifications), maxItemsToShow)
	for i := 0; i < count; i++ {
		c := classifications[i]
		sb.WriteString(fmt.Sprintf("Page %-3d %s (%d%%)\n", c.PageNumber, c.PageType, c.Confidence))
		if len(c.Signals) > 0 {
			signals := strings.Join(c.Signals, ", ")
			if len(signals) > 45 {
				signals = signals[:42] + "..."
			}
			sb.WriteString(fmt.Sprintf("         %s\n", signals))
		}
	}
	if len(classifications) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more pages", len(classifications)-maxItemsToShow))
	}

	p.printBox("PAGE CLASSIFICATIONS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintCheckResult outputs a run's summary and its failed checks.
func (p *Printer) PrintCheckResult(result *types.CheckResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      #%d\n", result.RunNumber))
	sb.WriteString(fmt.Sprintf("Checks:   %d total\n", result.Summary.TotalChecks))
	sb.WriteString(fmt.Sprintf("Passed:   %d\n", result.Summary.Passed))
	sb.WriteString(fmt.Sprintf("Failed:   %d\n", result.Summary.Failed))
	sb.WriteString(fmt.Sprintf("Review:   %d\n", result.Summary.NeedsReview))
	sb.WriteString(fmt.Sprintf("N/A:      %d\n", result.Summary.NA))
	sb.WriteString(fmt.Sprintf("Tokens:   %d in / %d out\n", result.Usage.InputTokens, result.Usage.OutputTokens))

	var failed []types.CheckVerdict
	for _, v := range result.Verdicts() {
		if v.Status == types.StatusFail {
			failed = append(failed, v)
		}
	}
	if len(failed) > 0 {
		sb.WriteString("\nFailed checks:\n")
		count := min(len(failed), maxItemsToShow)
		for i := 0; i < count; i++ {
			v := failed[i]
			sb.WriteString(fmt.Sprintf("  ⚠ p%d %s\n", v.PageNumber, v.CheckID))
			if v.Notes != "" {
				notes := v.Notes
				if len(notes) > 45 {
					notes = notes[:42] + "..."
				}
				sb.WriteString(fmt.Sprintf("    %s\n", notes))
			}
		}
		if len(failed) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(failed)-maxItemsToShow))
		}
	}

	p.printBox("CHECK RESULT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBatchRun outputs a batch job's progress counters and totals.
func (p *Printer) PrintBatchRun(run *types.BatchCheckRun) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:     %s\n", run.Status))
	sb.WriteString(fmt.Sprintf("Documents:  %d total\n", run.TotalDocuments))
	sb.WriteString(fmt.Sprintf("  Completed: %d\n", run.CompletedDocuments))
	sb.WriteString(fmt.Sprintf("  Failed:    %d\n", run.FailedDocuments))
	sb.WriteString(fmt.Sprintf("  Skipped:   %d\n", run.SkippedDocuments))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Verdicts:   %d passed / %d failed / %d review\n",
		run.TotalPassed, run.TotalFailed, run.TotalNeedsReview))
	sb.WriteString(fmt.Sprintf("Tokens:     %d in / %d out", run.Usage.InputTokens, run.Usage.OutputTokens))
	if run.ErrorMessage != "" {
		msg := run.ErrorMessage
		if len(msg) > 45 {
			msg = msg[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("\n\n⚠ %s", msg))
	}

	p.printBox("BATCH CHECK RUN", sb.String())
}
