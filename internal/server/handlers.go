package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/planwise/plancheck/internal/blob"
	"github.com/planwise/plancheck/internal/types"
)

// maxUploadBytes caps document uploads at 64 MiB.
const maxUploadBytes = 64 << 20

// pathUUID parses the {id} path segment, writing a 400 on failure.
func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// createProjectRequest is the body of POST /projects.
type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// handleCreateProject creates a project
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		s.errorResponse(w, http.StatusBadRequest, "Project name is required")
		return
	}

	project, err := s.store.CreateProject(r.Context(), req.Name, req.Description)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusCreated, project)
}

// handleGetProject retrieves a project by ID
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.pathUUID(w, r, "project")
	if !ok {
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

	s.jsonResponse(w, http.StatusOK, project)
}

// handleListDocuments lists a project's documents
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.pathUUID(w, r, "project")
	if !ok {
		return
	}

	documents, err := s.store.ListDocuments(r.Context(), projectID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"documents": documents,
		"count":     len(documents),
	})
}

// handleUploadDocument accepts a multipart upload, stores the file in the
// blob store and records the document.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.pathUUID(w, r, "project")
	if !ok {
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

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "A 'file' form field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Failed to read upload: "+err.Error())
		return
	}
	if len(data) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "Uploaded file is empty")
		return
	}

	filename := filepath.Base(header.Filename)
	hash := sha256.Sum256(data)

	// The blob key gets its own UUID; the document row ID is assigned on
	// insert.
	key := blob.DocumentKey(projectID, uuid.New(), filename)
	if _, err := s.blobs.Put(r.Context(), key, data); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to store file: "+err.Error())
		return
	}

	doc := &types.Document{
		ProjectID:        projectID,
		Filename:         filename,
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		FileSize:         int64(len(data)),
		FileHash:         hex.EncodeToString(hash[:]),
		BlobKey:          key,
	}
	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusCreated, doc)
}

// handleGetDocument retrieves a document by ID
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := s.pathUUID(w, r, "document")
	if !ok {
		return
	}

	doc, err := s.store.GetDocument(r.Context(), documentID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if doc == nil {
		s.errorResponse(w, http.StatusNotFound, "Document not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, doc)
}

// handleParseDocument runs vision extraction on a document synchronously.
func (s *Server) handleParseDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := s.pathUUID(w, r, "document")
	if !ok {
		return
	}

	doc, err := s.store.GetDocument(r.Context(), documentID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if doc == nil {
		s.errorResponse(w, http.StatusNotFound, "Document not found")
		return
	}

	result, err := s.parses.ParseDocument(r.Context(), documentID)
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, "Parse failed: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, result)
}
