package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/planwise/plancheck/internal/batchrun"
)

// startBatchRequest is the optional body of POST /projects/{id}/batch-checks.
type startBatchRequest struct {
	DocumentIDs []uuid.UUID `json:"document_ids,omitempty"`
	ForceRerun  bool        `json:"force_rerun,omitempty"`
	Concurrency int         `json:"concurrency,omitempty"`
}

// handleStartBatchRun starts a background batch check run over a project.
func (s *Server) handleStartBatchRun(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.pathUUID(w, r, "project")
	if !ok {
		return
	}

	var req startBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	project, err := s.store.GetProject(r.Context(), projectID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if project == nil {
		s.errorResponse(w, http.StatusNotFound, "Project not found")
		return
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.batchConcurrency
	}

	batchRun, err := s.batches.Start(r.Context(), batchrun.Options{
		ProjectID:   projectID,
		DocumentIDs: req.DocumentIDs,
		ForceRerun:  req.ForceRerun,
		Concurrency: concurrency,
	})
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to start batch run: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusAccepted, batchRun)
}

// handleListBatchRuns lists a project's batch runs, newest first.
func (s *Server) handleListBatchRuns(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.pathUUID(w, r, "project")
	if !ok {
		return
	}

	runs, err := s.store.ListBatchRuns(r.Context(), projectID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"batch_runs": runs,
		"count":      len(runs),
	})
}

// handleGetBatchRun returns the live progress counters for one batch run.
func (s *Server) handleGetBatchRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathUUID(w, r, "batch run")
	if !ok {
		return
	}

	batchRun, err := s.store.GetBatchRun(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if batchRun == nil {
		s.errorResponse(w, http.StatusNotFound, "Batch run not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, batchRun)
}

// handleCancelBatchRun requests cancellation of a pending or processing run.
func (s *Server) handleCancelBatchRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathUUID(w, r, "batch run")
	if !ok {
		return
	}

	cancelled, err := s.batches.Cancel(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to cancel: "+err.Error())
		return
	}
	if !cancelled {
		s.errorResponse(w, http.StatusConflict, "Batch run is not pending or processing")
		return
	}

	batchRun, err := s.store.GetBatchRun(r.Context(), runID)
	if err != nil || batchRun == nil {
		s.jsonResponse(w, http.StatusOK, map[string]string{"status": "cancelled"})
		return
	}

	s.jsonResponse(w, http.StatusOK, batchRun)
}
