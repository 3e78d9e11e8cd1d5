// Package docstore provides the narrow read/write contract over training
// document storage. Documents live under a configured root directory and
// are addressed by slash-separated paths (e.g. /training/emails-2024).
package docstore

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrDocumentNotFound is returned when no document exists at the path.
var ErrDocumentNotFound = errors.New("document not found")

// ErrInvalidPath is returned for paths escaping the storage root.
var ErrInvalidPath = errors.New("invalid document path")

// Store is a filesystem-backed document store.
type Store struct {
	root string
}

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

// resolve maps a document path to a filesystem path under the root.
func (s *Store) resolve(docPath string) (string, error) {
	cleaned := path.Clean("/" + docPath)
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, docPath)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Read returns the document content at the path.
func (s *Store) Read(docPath string) (string, error) {
	fsPath, err := s.resolve(docPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(fsPath)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, docPath)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", docPath, err)
	}
	return string(data), nil
}

// Write stores content at the path, creating parent directories as needed.
func (s *Store) Write(docPath, content string) error {
	fsPath, err := s.resolve(docPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fsPath), 0o755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := os.WriteFile(fsPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", docPath, err)
	}
	return nil
}
