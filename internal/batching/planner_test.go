package batching

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwise/plancheck/internal/types"
)

func classified(pages map[int]string) []types.PageClassification {
	var out []types.PageClassification
	for page, pt := range pages {
		out = append(out, types.PageClassification{PageNumber: page, PageType: pt})
	}
	return out
}

func TestPlan(t *testing.T) {
	typeOrder := []string{"cover_sheet", "site_plan", "floor_plan"}

	tests := []struct {
		name     string
		budget   int
		pages    map[int]string // page -> type
		content  map[int]string
		validate func(t *testing.T, batches []Batch)
	}{
		{
			name:   "single type single batch",
			budget: 100,
			pages:  map[int]string{1: "site_plan", 2: "site_plan"},
			content: map[int]string{
				1: strings.Repeat("a", 40),
				2: strings.Repeat("b", 40),
			},
			validate: func(t *testing.T, batches []Batch) {
				require.Len(t, batches, 1)
				assert.Equal(t, "site_plan", batches[0].PageType)
				assert.Equal(t, []int{1, 2}, batches[0].Pages)
				assert.Equal(t, 80, batches[0].ContentLength)
			},
		},
		{
			name:   "budget overflow closes the batch",
			budget: 100,
			pages:  map[int]string{1: "site_plan", 2: "site_plan", 3: "site_plan"},
			content: map[int]string{
				1: strings.Repeat("a", 60),
				2: strings.Repeat("b", 60),
				3: strings.Repeat("c", 30),
			},
			validate: func(t *testing.T, batches []Batch) {
				require.Len(t, batches, 2)
				assert.Equal(t, []int{1}, batches[0].Pages)
				assert.Equal(t, []int{2, 3}, batches[1].Pages)
			},
		},
		{
			name:    "oversized page forms its own batch",
			budget:  100,
			pages:   map[int]string{1: "site_plan", 2: "site_plan"},
			content: map[int]string{1: strings.Repeat("a", 250), 2: "small"},
			validate: func(t *testing.T, batches []Batch) {
				require.Len(t, batches, 2)
				assert.Equal(t, []int{1}, batches[0].Pages)
				assert.Equal(t, 250, batches[0].ContentLength)
				assert.Equal(t, []int{2}, batches[1].Pages)
			},
		},
		{
			name:   "types emit in catalog order with unknown last",
			budget: 1000,
			pages: map[int]string{
				1: "floor_plan",
				2: "cover_sheet",
				3: "unknown",
				4: "site_plan",
			},
			content: map[int]string{1: "a", 2: "b", 3: "c", 4: "d"},
			validate: func(t *testing.T, batches []Batch) {
				require.Len(t, batches, 4)
				assert.Equal(t, "cover_sheet", batches[0].PageType)
				assert.Equal(t, "site_plan", batches[1].PageType)
				assert.Equal(t, "floor_plan", batches[2].PageType)
				assert.Equal(t, "unknown", batches[3].PageType)
			},
		},
		{
			name:    "pages ascend within a type regardless of input order",
			budget:  1000,
			pages:   map[int]string{9: "site_plan", 2: "site_plan", 5: "site_plan"},
			content: map[int]string{2: "a", 5: "b", 9: "c"},
			validate: func(t *testing.T, batches []Batch) {
				require.Len(t, batches, 1)
				assert.Equal(t, []int{2, 5, 9}, batches[0].Pages)
			},
		},
		{
			name:     "no classifications yields no batches",
			budget:   100,
			pages:    map[int]string{},
			content:  map[int]string{},
			validate: func(t *testing.T, batches []Batch) { assert.Empty(t, batches) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := NewPlanner(tt.budget)
			batches := planner.Plan(classified(tt.pages), tt.content, typeOrder)
			tt.validate(t, batches)
		})
	}
}

func TestPlan_BudgetInvariant(t *testing.T) {
	// Multi-page batches never exceed the budget; only single oversized
	// pages may.
	planner := NewPlanner(100)
	pages := map[int]string{}
	content := map[int]string{}
	for p := 1; p <= 20; p++ {
		pages[p] = "floor_plan"
		content[p] = strings.Repeat("x", 7*p) // 7..140 chars
	}

	batches := planner.Plan(classified(pages), content, []string{"floor_plan"})
	seen := map[int]int{}
	for _, b := range batches {
		if len(b.Pages) > 1 {
			assert.LessOrEqual(t, b.ContentLength, 100)
		}
		for _, p := range b.Pages {
			seen[p]++
		}
	}
	for p := 1; p <= 20; p++ {
		assert.Equal(t, 1, seen[p], "page %d must appear in exactly one batch", p)
	}
}

func TestPlan_BudgetCountsCharactersNotBytes(t *testing.T) {
	// Two pages of multi-byte markdown: 6 + 4 = 10 characters fit a budget of
	// 10 even though the byte length is 20.
	planner := NewPlanner(10)
	pages := map[int]string{1: "site_plan", 2: "site_plan"}
	content := map[int]string{
		1: strings.Repeat("§", 6),
		2: strings.Repeat("§", 4),
	}

	batches := planner.Plan(classified(pages), content, []string{"site_plan"})
	require.Len(t, batches, 1)
	assert.Equal(t, []int{1, 2}, batches[0].Pages)
	assert.Equal(t, 10, batches[0].ContentLength)
}

func TestPlan_Deterministic(t *testing.T) {
	planner := NewPlanner(50)
	pages := map[int]string{1: "site_plan", 2: "floor_plan", 3: "site_plan", 4: "floor_plan"}
	content := map[int]string{1: "aaaa", 2: "bbbb", 3: "cccc", 4: "dddd"}
	order := []string{"floor_plan", "site_plan"}

	first := planner.Plan(classified(pages), content, order)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, planner.Plan(classified(pages), content, order))
	}
}

func TestPageContent(t *testing.T) {
	chunks := []types.Chunk{
		{PageNumber: 1, Markdown: "first"},
		{PageNumber: 1, Markdown: "second"},
		{PageNumber: 2, Markdown: "other page"},
		{PageNumber: 3, Markdown: ""},
	}
	content := PageContent(chunks)

	assert.Equal(t, "first\n\nsecond", content[1])
	assert.Equal(t, "other page", content[2])
	_, ok := content[3]
	assert.False(t, ok, "empty chunks contribute no content")
}
