// Package batching groups classified pages into content-bounded batches, one
// page type per batch, so each batch fits a single evaluation call.
package batching

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/planwise/plancheck/internal/types"
)

// DefaultContentBudget is the character budget for one batch's combined page
// content. It tracks the evaluation prompt's content cap.
const DefaultContentBudget = 50000

// Batch is an ephemeral grouping of same-type pages destined for one
// evaluation call. Batches are never persisted.
type Batch struct {
	PageType      string
	Pages         []int // ascending page numbers
	ContentLength int   // combined character count of the pages' content
}

// Planner plans batches under a content budget.
type Planner struct {
	budget int
}

// NewPlanner creates a Planner with the given character budget; zero or
// negative uses DefaultContentBudget.
func NewPlanner(budget int) *Planner {
	if budget <= 0 {
		budget = DefaultContentBudget
	}
	return &Planner{budget: budget}
}

// Budget returns the planner's character budget.
func (p *Planner) Budget() int {
	return p.budget
}

// Plan groups pages of identical type into batches whose combined content
// length stays within the budget. Pages within a type accumulate greedily in
// ascending page order; a page whose content alone exceeds the budget still
// forms its own batch rather than being dropped or split. Output order is
// deterministic: types in typeOrder first, then any classified types the
// order does not name, alphabetically; pages ascend within each type.
func (p *Planner) Plan(classifications []types.PageClassification, pageContent map[int]string, typeOrder []string) []Batch {
	pagesByType := make(map[string][]int)
	for _, c := range classifications {
		pagesByType[c.PageType] = append(pagesByType[c.PageType], c.PageNumber)
	}
	for _, pages := range pagesByType {
		sort.Ints(pages)
	}

	ordered := make([]string, 0, len(pagesByType))
	seen := make(map[string]bool)
	for _, pt := range typeOrder {
		if _, ok := pagesByType[pt]; ok && !seen[pt] {
			ordered = append(ordered, pt)
			seen[pt] = true
		}
	}
	var extras []string
	for pt := range pagesByType {
		if !seen[pt] {
			extras = append(extras, pt)
		}
	}
	sort.Strings(extras)
	ordered = append(ordered, extras...)

	var batches []Batch
	for _, pt := range ordered {
		current := Batch{PageType: pt}
		for _, page := range pagesByType[pt] {
			// Budget counts characters, not bytes, so multi-byte markdown
			// fills batches the same as ASCII.
			length := utf8.RuneCountInString(pageContent[page])
			if len(current.Pages) > 0 && current.ContentLength+length > p.budget {
				batches = append(batches, current)
				current = Batch{PageType: pt}
			}
			current.Pages = append(current.Pages, page)
			current.ContentLength += length
		}
		if len(current.Pages) > 0 {
			batches = append(batches, current)
		}
	}
	return batches
}

// PageContent builds the page number to combined chunk content lookup the
// planner and evaluator share. Chunks concatenate in slice order, separated
// by blank lines.
func PageContent(chunks []types.Chunk) map[int]string {
	parts := make(map[int][]string)
	for _, ch := range chunks {
		if ch.Markdown == "" {
			continue
		}
		parts[ch.PageNumber] = append(parts[ch.PageNumber], ch.Markdown)
	}
	content := make(map[int]string, len(parts))
	for page, ps := range parts {
		content[page] = strings.Join(ps, "\n\n")
	}
	return content
}
