package run

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwise/plancheck/internal/batching"
	"github.com/planwise/plancheck/internal/catalog"
	"github.com/planwise/plancheck/internal/checks"
	"github.com/planwise/plancheck/internal/classify"
	"github.com/planwise/plancheck/internal/llm"
	"github.com/planwise/plancheck/internal/types"
)

// scenarioCatalog declares exactly the checks the tests reason about:
// cover_sheet has two checks, site_plan one, floor_plan one.
const scenarioCatalog = `{
  "version": "test",
  "page_types": {
    "cover_sheet": {"name": "Cover Sheet", "description": "Title page", "classification_signals": ["TITLE"]},
    "site_plan": {"name": "Site Plan", "description": "Site layout", "classification_signals": ["SITE PLAN"]},
    "floor_plan": {"name": "Floor Plan", "description": "Floor layout", "classification_signals": ["FLOOR PLAN"]}
  },
  "checks": [
    {"id": "has_title", "name": "Has Title", "question": "Is there a title?", "category": "completeness", "page_types": ["cover_sheet"]},
    {"id": "has_date", "name": "Has Date", "question": "Is there a date?", "category": "completeness", "page_types": ["cover_sheet"]},
    {"id": "has_scale_bar", "name": "Has Scale Bar", "question": "Is there a scale bar?", "category": "compliance", "page_types": ["site_plan"]},
    {"id": "room_labels", "name": "Room Labels", "question": "Are rooms labeled?", "category": "completeness", "page_types": ["floor_plan"]}
  ],
  "document_types": {}
}`

// memStore implements both the aggregator's and the classifier's store
// surfaces in memory.
type memStore struct {
	docs            map[uuid.UUID]*types.Document
	parses          map[uuid.UUID]*types.ParseResult
	chunks          map[uuid.UUID][]types.Chunk
	classifications map[uuid.UUID][]types.PageClassification
	results         map[uuid.UUID][]*types.CheckResult
	usage           map[uuid.UUID]types.Usage

	failCreateResult bool
}

func newMemStore() *memStore {
	return &memStore{
		docs:            map[uuid.UUID]*types.Document{},
		parses:          map[uuid.UUID]*types.ParseResult{},
		chunks:          map[uuid.UUID][]types.Chunk{},
		classifications: map[uuid.UUID][]types.PageClassification{},
		results:         map[uuid.UUID][]*types.CheckResult{},
		usage:           map[uuid.UUID]types.Usage{},
	}
}

func (s *memStore) GetDocument(_ context.Context, id uuid.UUID) (*types.Document, error) {
	return s.docs[id], nil
}

func (s *memStore) LatestCompletedParseResult(_ context.Context, documentID uuid.UUID) (*types.ParseResult, error) {
	return s.parses[documentID], nil
}

func (s *memStore) ChunksForParseResult(_ context.Context, parseResultID uuid.UUID) ([]types.Chunk, error) {
	return s.chunks[parseResultID], nil
}

func (s *memStore) CreateCheckResult(_ context.Context, result *types.CheckResult) error {
	if s.failCreateResult {
		return fmt.Errorf("commit failed")
	}
	result.RunNumber = len(s.results[result.DocumentID]) + 1
	result.ID = uuid.New()
	s.results[result.DocumentID] = append(s.results[result.DocumentID], result)
	return nil
}

func (s *memStore) AddProjectUsage(_ context.Context, projectID uuid.UUID, usage types.Usage) error {
	s.usage[projectID] = s.usage[projectID].Add(usage)
	return nil
}

func (s *memStore) SavePageClassifications(_ context.Context, rows []types.PageClassification) error {
	if len(rows) == 0 {
		return nil
	}
	id := rows[0].ParseResultID
	if len(s.classifications[id]) > 0 {
		return fmt.Errorf("classifications already exist")
	}
	s.classifications[id] = append([]types.PageClassification(nil), rows...)
	return nil
}

func (s *memStore) DeletePageClassifications(_ context.Context, parseResultID uuid.UUID) error {
	delete(s.classifications, parseResultID)
	return nil
}

func (s *memStore) PageClassifications(_ context.Context, parseResultID uuid.UUID) ([]types.PageClassification, error) {
	return s.classifications[parseResultID], nil
}

func (s *memStore) addDocument(pages map[int]string) (uuid.UUID, uuid.UUID) {
	docID, parseID := uuid.New(), uuid.New()
	s.docs[docID] = &types.Document{ID: docID, ProjectID: uuid.New()}
	parse := &types.ParseResult{ID: parseID, DocumentID: docID, PageCount: len(pages), Status: types.ParseCompleted}
	s.parses[docID] = parse
	for p := 1; p <= len(pages); p++ {
		s.chunks[parseID] = append(s.chunks[parseID], types.Chunk{
			ParseResultID: parseID,
			ChunkID:       fmt.Sprintf("chunk-%d", p),
			Markdown:      pages[p],
			PageNumber:    p,
		})
	}
	return docID, parseID
}

// scriptedClient answers classification calls (lite tier) and evaluation
// calls (standard tier) separately. Evaluation responses are keyed by a
// substring of the prompt.
type scriptedClient struct {
	classification string
	evaluations    map[string]string // prompt substring -> response
	evalErr        map[string]error  // prompt substring -> error
	evalCalls      int
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	if req.Tier == llm.TierLite {
		return &llm.Completion{Text: c.classification, Model: "mock-lite", InputTokens: 10, OutputTokens: 5}, nil
	}
	c.evalCalls++
	for substr, err := range c.evalErr {
		if strings.Contains(req.Prompt, substr) {
			return nil, err
		}
	}
	for substr, resp := range c.evaluations {
		if strings.Contains(req.Prompt, substr) {
			return &llm.Completion{Text: resp, Model: "mock-standard", InputTokens: 100, OutputTokens: 40}, nil
		}
	}
	return &llm.Completion{Text: `{"verdicts": []}`, Model: "mock-standard", InputTokens: 100, OutputTokens: 40}, nil
}

func (c *scriptedClient) GetModel(llm.ModelTier) string { return "mock-standard" }
func (c *scriptedClient) Close() error                  { return nil }

func newAggregator(t *testing.T, store *memStore, client llm.Client) *Aggregator {
	t.Helper()
	cat, err := catalog.Parse([]byte(scenarioCatalog))
	require.NoError(t, err)
	classifier := classify.New(client, store, cat)
	return New(store, classifier, checks.NewEvaluator(client), batching.NewPlanner(0), cat)
}

func classificationJSON(pageTypes ...string) string {
	type entry struct {
		Page       int    `json:"page"`
		PageType   string `json:"page_type"`
		Confidence int    `json:"confidence"`
	}
	var entries []entry
	for i, pt := range pageTypes {
		entries = append(entries, entry{Page: i + 1, PageType: pt, Confidence: 90})
	}
	data, _ := json.Marshal(map[string]any{"classifications": entries})
	return string(data)
}

func TestRun_ConcreteScenario(t *testing.T) {
	// Page 1 is a cover sheet with two applicable checks, page 2 a site
	// plan with one. The model answers has_title and has_scale_bar but
	// omits has_date, which must default to a failed "Not evaluated".
	store := newMemStore()
	client := &scriptedClient{
		classification: classificationJSON("cover_sheet", "site_plan"),
		evaluations: map[string]string{
			"Cover Sheet": `{"verdicts": [{"page": 1, "check_id": "has_title", "status": "pass", "confidence": 95}]}`,
			"Site Plan":   `{"verdicts": [{"page": 2, "check_id": "has_scale_bar", "status": "needs_review", "confidence": 60}]}`,
		},
	}
	agg := newAggregator(t, store, client)
	docID, _ := store.addDocument(map[int]string{1: "PROJECT ALPHA", 2: "SITE PLAN 1:200"})

	result, err := agg.Run(context.Background(), docID, Options{})
	require.NoError(t, err)

	require.Len(t, result.Completeness, 2)
	require.Len(t, result.Compliance, 1)

	byID := map[string]types.CheckVerdict{}
	for _, v := range result.Verdicts() {
		byID[v.CheckID] = v
	}
	assert.Equal(t, types.StatusPass, byID["has_title"].Status)
	assert.Equal(t, types.StatusFail, byID["has_date"].Status)
	assert.Equal(t, "Not evaluated", byID["has_date"].Notes)
	assert.Equal(t, types.StatusNeedsReview, byID["has_scale_bar"].Status)
	assert.Equal(t, 2, byID["has_scale_bar"].PageNumber)
	assert.Equal(t, "site_plan", byID["has_scale_bar"].PageType)

	assert.Equal(t, types.Summary{TotalChecks: 3, Passed: 1, Failed: 1, NeedsReview: 1, NA: 0}, result.Summary)
	assert.Equal(t, 2, client.evalCalls, "one call per batch")
	assert.Equal(t, 1, result.RunNumber)
	assert.Equal(t, types.CheckCompleted, result.Status)
}

func TestRun_CompletenessInvariant(t *testing.T) {
	// Every page whose type has applicable checks gets exactly one verdict
	// per applicable check, regardless of what the model returns.
	store := newMemStore()
	client := &scriptedClient{
		classification: classificationJSON("cover_sheet", "cover_sheet", "floor_plan"),
	}
	agg := newAggregator(t, store, client)
	docID, _ := store.addDocument(map[int]string{1: "a", 2: "b", 3: "c"})

	result, err := agg.Run(context.Background(), docID, Options{})
	require.NoError(t, err)

	counts := map[string]int{}
	for _, v := range result.Verdicts() {
		counts[fmt.Sprintf("%d/%s", v.PageNumber, v.CheckID)]++
	}
	expected := []string{"1/has_title", "1/has_date", "2/has_title", "2/has_date", "3/room_labels"}
	require.Len(t, counts, len(expected))
	for _, key := range expected {
		assert.Equal(t, 1, counts[key], key)
	}
}

func TestRun_SkipsTypesWithoutChecks(t *testing.T) {
	// Unknown pages have no applicable checks, so no evaluation call is
	// made for them.
	store := newMemStore()
	client := &scriptedClient{classification: classificationJSON("unknown", "unknown")}
	agg := newAggregator(t, store, client)
	docID, _ := store.addDocument(map[int]string{1: "a", 2: "b"})

	result, err := agg.Run(context.Background(), docID, Options{})
	require.NoError(t, err)
	assert.Zero(t, client.evalCalls)
	assert.Empty(t, result.Verdicts())
	assert.Equal(t, 0, result.Summary.TotalChecks)
}

func TestRun_BatchFailureIsolation(t *testing.T) {
	// A provider failure for the site_plan batch fails only its verdicts;
	// the floor_plan batch still evaluates normally.
	store := newMemStore()
	client := &scriptedClient{
		classification: classificationJSON("site_plan", "floor_plan"),
		evalErr:        map[string]error{"Site Plan": fmt.Errorf("overloaded")},
		evaluations: map[string]string{
			"Floor Plan": `{"verdicts": [{"page": 2, "check_id": "room_labels", "status": "pass", "confidence": 90}]}`,
		},
	}
	agg := newAggregator(t, store, client)
	docID, _ := store.addDocument(map[int]string{1: "site", 2: "floor"})

	result, err := agg.Run(context.Background(), docID, Options{})
	require.NoError(t, err)

	byID := map[string]types.CheckVerdict{}
	for _, v := range result.Verdicts() {
		byID[v.CheckID] = v
	}
	assert.Equal(t, types.StatusFail, byID["has_scale_bar"].Status)
	assert.Contains(t, byID["has_scale_bar"].Notes, "overloaded")
	assert.Equal(t, types.StatusPass, byID["room_labels"].Status)
}

func TestRun_RunNumbersAreSequential(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{classification: classificationJSON("cover_sheet")}
	agg := newAggregator(t, store, client)
	docID, _ := store.addDocument(map[int]string{1: "a"})

	for expected := 1; expected <= 3; expected++ {
		result, err := agg.Run(context.Background(), docID, Options{})
		require.NoError(t, err)
		assert.Equal(t, expected, result.RunNumber)
	}
	require.Len(t, store.results[docID], 3)
}

func TestRun_UsageAccumulatesOntoProject(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{classification: classificationJSON("cover_sheet")}
	agg := newAggregator(t, store, client)
	docID, _ := store.addDocument(map[int]string{1: "a"})

	result, err := agg.Run(context.Background(), docID, Options{})
	require.NoError(t, err)

	// classification 10/5 plus one evaluation call 100/40
	assert.Equal(t, types.Usage{InputTokens: 110, OutputTokens: 45}, result.Usage)
	projectID := store.docs[docID].ProjectID
	assert.Equal(t, result.Usage, store.usage[projectID])
}

func TestRun_ForceReclassify(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{classification: classificationJSON("cover_sheet")}
	agg := newAggregator(t, store, client)
	docID, parseID := store.addDocument(map[int]string{1: "a"})

	_, err := agg.Run(context.Background(), docID, Options{})
	require.NoError(t, err)
	_, err = agg.Run(context.Background(), docID, Options{ForceReclassify: true})
	require.NoError(t, err)

	rows, err := store.PageClassifications(context.Background(), parseID)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "reclassification must not accumulate rows")
}

func TestRun_Preconditions(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{classification: classificationJSON("cover_sheet")}
	agg := newAggregator(t, store, client)

	t.Run("missing document", func(t *testing.T) {
		_, err := agg.Run(context.Background(), uuid.New(), Options{})
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})

	t.Run("unparsed document", func(t *testing.T) {
		docID := uuid.New()
		store.docs[docID] = &types.Document{ID: docID, ProjectID: uuid.New()}
		_, err := agg.Run(context.Background(), docID, Options{})
		assert.ErrorIs(t, err, ErrNotParsed)
	})
}

func TestRun_PersistenceFailurePropagates(t *testing.T) {
	store := newMemStore()
	store.failCreateResult = true
	client := &scriptedClient{classification: classificationJSON("cover_sheet")}
	agg := newAggregator(t, store, client)
	docID, _ := store.addDocument(map[int]string{1: "a"})

	_, err := agg.Run(context.Background(), docID, Options{})
	require.Error(t, err)
	assert.Empty(t, store.results[docID], "no half-written result")
}

func TestRun_LinksBatchRun(t *testing.T) {
	store := newMemStore()
	client := &scriptedClient{classification: classificationJSON("cover_sheet")}
	agg := newAggregator(t, store, client)
	docID, _ := store.addDocument(map[int]string{1: "a"})

	batchRunID := uuid.New()
	result, err := agg.Run(context.Background(), docID, Options{BatchRunID: &batchRunID})
	require.NoError(t, err)
	require.NotNil(t, result.BatchRunID)
	assert.Equal(t, batchRunID, *result.BatchRunID)
}
