package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/planwise/plancheck/internal/run"
)

// runChecksRequest is the optional body of POST /documents/{id}/checks.
type runChecksRequest struct {
	ForceReclassify bool `json:"force_reclassify,omitempty"`
}

// handleRunChecks runs the full check pipeline for one document and returns
// the persisted result. The call is synchronous; batch endpoints cover
// fire-and-forget.
func (s *Server) handleRunChecks(w http.ResponseWriter, r *http.Request) {
	documentID, ok := s.pathUUID(w, r, "document")
	if !ok {
		return
	}

	var req runChecksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.checks.Run(r.Context(), documentID, run.Options{
		ForceReclassify: req.ForceReclassify,
	})
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusCreated, result)
}

// handleCheckHistory lists a document's check results, newest run first.
func (s *Server) handleCheckHistory(w http.ResponseWriter, r *http.Request) {
	documentID, ok := s.pathUUID(w, r, "document")
	if !ok {
		return
	}

	results, err := s.store.ListCheckHistory(r.Context(), documentID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// handleLatestCheckResult returns the most recent check result with verdicts.
func (s *Server) handleLatestCheckResult(w http.ResponseWriter, r *http.Request) {
	documentID, ok := s.pathUUID(w, r, "document")
	if !ok {
		return
	}

	result, err := s.store.LatestCheckResult(r.Context(), documentID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if result == nil {
		s.errorResponse(w, http.StatusNotFound, "No check results for document")
		return
	}

	s.jsonResponse(w, http.StatusOK, result)
}

// handleGetCheckResult retrieves one check result by ID with verdicts.
func (s *Server) handleGetCheckResult(w http.ResponseWriter, r *http.Request) {
	resultID, ok := s.pathUUID(w, r, "check result")
	if !ok {
		return
	}

	result, err := s.store.GetCheckResult(r.Context(), resultID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if result == nil {
		s.errorResponse(w, http.StatusNotFound, "Check result not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, result)
}

// handleGetClassifications returns the page classifications for a document's
// latest completed parse.
func (s *Server) handleGetClassifications(w http.ResponseWriter, r *http.Request) {
	documentID, ok := s.pathUUID(w, r, "document")
	if !ok {
		return
	}

	parse, err := s.store.LatestCompletedParseResult(r.Context(), documentID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if parse == nil {
		s.errorResponse(w, http.StatusNotFound, "Document has no completed parse")
		return
	}

	classifications, err := s.store.PageClassifications(r.Context(), parse.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"parse_result_id": parse.ID,
		"classifications": classifications,
		"count":           len(classifications),
	})
}
