// Package blob stores original uploads and parse output as flat files keyed
// by a project/document/parser path scheme.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store is a minimal keyed byte store.
type Store interface {
	// Put writes bytes under key, creating parent directories as needed,
	// and returns the key.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get reads the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the bytes stored under key. Deleting a missing key
	// is not an error.
	Delete(ctx context.Context, key string) error
}

// DocumentKey is where a document's original upload lives.
func DocumentKey(projectID, documentID uuid.UUID, filename string) string {
	return fmt.Sprintf("projects/%s/documents/%s/original/%s", projectID, documentID, filepath.Base(filename))
}

// ParseKey is where a parse result's full JSON output lives.
func ParseKey(projectID, documentID uuid.UUID, parser string, parseResultID uuid.UUID) string {
	return fmt.Sprintf("projects/%s/documents/%s/parses/%s/%s.json", projectID, documentID, parser, parseResultID)
}

// FSStore is a filesystem-backed Store rooted at a directory.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns a store.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes data under key.
func (s *FSStore) Put(_ context.Context, key string, data []byte) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return key, nil
}

// Get reads data under key.
func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Delete removes data under key.
func (s *FSStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}
