package batchrun

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/run"
	"github.com/planwise/plancheck/internal/types"
)

// memStore is an in-memory Store with the same counter semantics as the
// database layer.
type memStore struct {
	mu sync.Mutex

	projects map[uuid.UUID]*types.Project
	docs     map[uuid.UUID][]*types.Document // by project
	parses   map[uuid.UUID]*types.ParseResult
	existing map[uuid.UUID]bool // documents with a prior CheckResult
	runs     map[uuid.UUID]*types.BatchCheckRun
}

func newMemStore() *memStore {
	return &memStore{
		projects: map[uuid.UUID]*types.Project{},
		docs:     map[uuid.UUID][]*types.Document{},
		parses:   map[uuid.UUID]*types.ParseResult{},
		existing: map[uuid.UUID]bool{},
		runs:     map[uuid.UUID]*types.BatchCheckRun{},
	}
}

func (s *memStore) GetProject(_ context.Context, id uuid.UUID) (*types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[id], nil
}

func (s *memStore) ListDocuments(_ context.Context, projectID uuid.UUID) ([]*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[projectID], nil
}

func (s *memStore) LatestCompletedParseResult(_ context.Context, documentID uuid.UUID) (*types.ParseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parses[documentID], nil
}

func (s *memStore) HasCheckResult(_ context.Context, documentID, _ uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[documentID], nil
}

func (s *memStore) CreateBatchRun(_ context.Context, r *types.BatchCheckRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	if r.Status == "" {
		r.Status = types.BatchPending
	}
	copied := *r
	s.runs[r.ID] = &copied
	return nil
}

func (s *memStore) GetBatchRun(_ context.Context, id uuid.UUID) (*types.BatchCheckRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (s *memStore) MarkBatchRunProcessing(_ context.Context, id uuid.UUID, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[id]
	if r.Status == types.BatchPending {
		r.Status = types.BatchProcessing
		r.TotalDocuments = total
	}
	return nil
}

func (s *memStore) IncrementBatchRunCounter(_ context.Context, id uuid.UUID, counter db.BatchRunCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[id]
	switch counter {
	case db.CounterCompleted:
		r.CompletedDocuments++
	case db.CounterFailed:
		r.FailedDocuments++
	case db.CounterSkipped:
		r.SkippedDocuments++
	}
	return nil
}

func (s *memStore) AddBatchRunTotals(_ context.Context, id uuid.UUID, summary types.Summary, usage types.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[id]
	r.TotalPassed += summary.Passed
	r.TotalFailed += summary.Failed
	r.TotalNeedsReview += summary.NeedsReview
	r.Usage = r.Usage.Add(usage)
	return nil
}

func (s *memStore) FinalizeBatchRun(_ context.Context, id uuid.UUID, status types.BatchRunStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[id]
	if r.Status.Terminal() {
		return nil
	}
	r.Status = status
	r.ErrorMessage = errorMessage
	return nil
}

func (s *memStore) CancelBatchRun(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok || r.Status.Terminal() {
		return false, nil
	}
	r.Status = types.BatchCancelled
	return true, nil
}

// addDocument registers a document; parsed controls whether it has a
// completed parse result.
func (s *memStore) addDocument(projectID uuid.UUID, parsed bool) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	docID := uuid.New()
	s.docs[projectID] = append(s.docs[projectID], &types.Document{ID: docID, ProjectID: projectID})
	if parsed {
		s.parses[docID] = &types.ParseResult{ID: uuid.New(), DocumentID: docID, Status: types.ParseCompleted}
	}
	return docID
}

func (s *memStore) addProject() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.projects[id] = &types.Project{ID: id, Name: "test"}
	return id
}

// mockRunner succeeds unless the document is listed in failFor.
type mockRunner struct {
	mu      sync.Mutex
	failFor map[uuid.UUID]bool
	calls   []uuid.UUID
	active  int
	peak    int
	block   time.Duration
}

func (m *mockRunner) Run(_ context.Context, documentID uuid.UUID, opts run.Options) (*types.CheckResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, documentID)
	m.active++
	if m.active > m.peak {
		m.peak = m.active
	}
	m.mu.Unlock()

	if m.block > 0 {
		time.Sleep(m.block)
	}

	m.mu.Lock()
	m.active--
	fail := m.failFor[documentID]
	m.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("aggregator error")
	}
	return &types.CheckResult{
		DocumentID: documentID,
		BatchRunID: opts.BatchRunID,
		Summary:    types.Summary{TotalChecks: 3, Passed: 2, Failed: 1},
		Usage:      types.Usage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func TestExecute_PartialFailureAccounting(t *testing.T) {
	// Five documents: one unparsed, one with an existing result, three
	// eligible of which one fails in the aggregator.
	store := newMemStore()
	projectID := store.addProject()

	store.addDocument(projectID, false)
	withResult := store.addDocument(projectID, true)
	store.existing[withResult] = true
	store.addDocument(projectID, true)
	store.addDocument(projectID, true)
	failing := store.addDocument(projectID, true)

	runner := &mockRunner{failFor: map[uuid.UUID]bool{failing: true}}
	orch := New(store, runner, nil)

	batchRun := &types.BatchCheckRun{ProjectID: projectID, Status: types.BatchPending}
	require.NoError(t, store.CreateBatchRun(context.Background(), batchRun))
	orch.Execute(context.Background(), batchRun.ID, Options{ProjectID: projectID})

	final, err := store.GetBatchRun(context.Background(), batchRun.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompletedWithErrors, final.Status)
	assert.Equal(t, 5, final.TotalDocuments)
	assert.Equal(t, 2, final.SkippedDocuments)
	assert.Equal(t, 2, final.CompletedDocuments)
	assert.Equal(t, 1, final.FailedDocuments)
	assert.Equal(t, 5, final.CompletedDocuments+final.FailedDocuments+final.SkippedDocuments)

	// Totals come only from the two completed documents.
	assert.Equal(t, 4, final.TotalPassed)
	assert.Equal(t, 2, final.TotalFailed)
	assert.Equal(t, types.Usage{InputTokens: 200, OutputTokens: 100}, final.Usage)
}

func TestExecute_AllDocumentsSucceed(t *testing.T) {
	store := newMemStore()
	projectID := store.addProject()
	for i := 0; i < 3; i++ {
		store.addDocument(projectID, true)
	}

	runner := &mockRunner{}
	orch := New(store, runner, nil)

	batchRun := &types.BatchCheckRun{ProjectID: projectID}
	require.NoError(t, store.CreateBatchRun(context.Background(), batchRun))
	orch.Execute(context.Background(), batchRun.ID, Options{ProjectID: projectID})

	final, _ := store.GetBatchRun(context.Background(), batchRun.ID)
	assert.Equal(t, types.BatchCompleted, final.Status)
	assert.Equal(t, 3, final.CompletedDocuments)
	assert.Len(t, runner.calls, 3)
}

func TestExecute_ForceRerun(t *testing.T) {
	store := newMemStore()
	projectID := store.addProject()
	docID := store.addDocument(projectID, true)
	store.existing[docID] = true

	runner := &mockRunner{}
	orch := New(store, runner, nil)

	batchRun := &types.BatchCheckRun{ProjectID: projectID}
	require.NoError(t, store.CreateBatchRun(context.Background(), batchRun))
	orch.Execute(context.Background(), batchRun.ID, Options{ProjectID: projectID, ForceRerun: true})

	final, _ := store.GetBatchRun(context.Background(), batchRun.ID)
	assert.Equal(t, 1, final.CompletedDocuments)
	assert.Equal(t, 0, final.SkippedDocuments)
}

func TestExecute_DocumentFilter(t *testing.T) {
	store := newMemStore()
	projectID := store.addProject()
	wanted := store.addDocument(projectID, true)
	store.addDocument(projectID, true)
	store.addDocument(projectID, true)

	runner := &mockRunner{}
	orch := New(store, runner, nil)

	batchRun := &types.BatchCheckRun{ProjectID: projectID}
	require.NoError(t, store.CreateBatchRun(context.Background(), batchRun))
	orch.Execute(context.Background(), batchRun.ID, Options{ProjectID: projectID, DocumentIDs: []uuid.UUID{wanted}})

	final, _ := store.GetBatchRun(context.Background(), batchRun.ID)
	assert.Equal(t, 1, final.TotalDocuments)
	assert.Equal(t, []uuid.UUID{wanted}, runner.calls)
}

func TestExecute_ConcurrencyCeiling(t *testing.T) {
	store := newMemStore()
	projectID := store.addProject()
	for i := 0; i < 8; i++ {
		store.addDocument(projectID, true)
	}

	runner := &mockRunner{block: 20 * time.Millisecond}
	orch := New(store, runner, nil)

	batchRun := &types.BatchCheckRun{ProjectID: projectID}
	require.NoError(t, store.CreateBatchRun(context.Background(), batchRun))
	orch.Execute(context.Background(), batchRun.ID, Options{ProjectID: projectID, Concurrency: 2})

	assert.LessOrEqual(t, runner.peak, 2, "in-flight documents must respect the ceiling")
	final, _ := store.GetBatchRun(context.Background(), batchRun.ID)
	assert.Equal(t, 8, final.CompletedDocuments)
}

func TestExecute_CancellationSkipsRemaining(t *testing.T) {
	store := newMemStore()
	projectID := store.addProject()
	for i := 0; i < 4; i++ {
		store.addDocument(projectID, true)
	}

	runner := &mockRunner{}
	orch := New(store, runner, nil)

	batchRun := &types.BatchCheckRun{ProjectID: projectID}
	require.NoError(t, store.CreateBatchRun(context.Background(), batchRun))

	// Cancel before execution starts: every document is skipped and the
	// run stays cancelled.
	ok, err := orch.Cancel(context.Background(), batchRun.ID)
	require.NoError(t, err)
	require.True(t, ok)

	orch.Execute(context.Background(), batchRun.ID, Options{ProjectID: projectID})

	final, _ := store.GetBatchRun(context.Background(), batchRun.ID)
	assert.Equal(t, types.BatchCancelled, final.Status)
	assert.Equal(t, 4, final.SkippedDocuments)
	assert.Empty(t, runner.calls)
}

func TestStart_SubmitsToQueue(t *testing.T) {
	store := newMemStore()
	projectID := store.addProject()
	store.addDocument(projectID, true)

	queue := NewQueue(4)
	defer queue.Close()

	runner := &mockRunner{}
	orch := New(store, runner, queue)

	batchRun, err := orch.Start(context.Background(), Options{ProjectID: projectID})
	require.NoError(t, err)
	assert.Equal(t, types.BatchPending, batchRun.Status)

	require.Eventually(t, func() bool {
		current, _ := store.GetBatchRun(context.Background(), batchRun.ID)
		return current != nil && current.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	final, _ := store.GetBatchRun(context.Background(), batchRun.ID)
	assert.Equal(t, types.BatchCompleted, final.Status)
	assert.Equal(t, 1, final.CompletedDocuments)
}

func TestStart_UnknownProject(t *testing.T) {
	store := newMemStore()
	queue := NewQueue(1)
	defer queue.Close()
	orch := New(store, &mockRunner{}, queue)

	_, err := orch.Start(context.Background(), Options{ProjectID: uuid.New()})
	assert.Error(t, err)
}
