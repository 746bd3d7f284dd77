package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shopping-planner/internal/shopping"
)

// DocumentStore writes printable shopping list documents to a directory.
type DocumentStore struct {
	basePath string
}

// NewDocumentStore creates a new DocumentStore and ensures the base directory exists.
func NewDocumentStore(basePath string) (*DocumentStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &DocumentStore{basePath: basePath}, nil
}

// sanitizeTimestamp makes the timestamp safe for filenames.
func sanitizeTimestamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format(time.RFC3339), ":", "-")
}

// rangePrefix is shared by every version of a list for the same range.
func rangePrefix(start, end shopping.Date) string {
	return fmt.Sprintf("shopping_%s_%s", start, end)
}

// getVersionedPath returns the full path for a list generated at generatedAt.
func (s *DocumentStore) getVersionedPath(list *shopping.ShoppingList) string {
	filename := fmt.Sprintf("%s_%s.html",
		rangePrefix(list.Summary.DateRangeStart, list.Summary.DateRangeEnd),
		sanitizeTimestamp(list.GeneratedAt.Time))
	return filepath.Join(s.basePath, filename)
}

// Save stores the printable document for list, replacing older versions for
// the same range, and returns the file path.
func (s *DocumentStore) Save(list *shopping.ShoppingList, document string) (string, error) {
	if list == nil {
		return "", fmt.Errorf("no shopping list to save")
	}
	if err := s.RemoveStaleVersions(list.Summary.DateRangeStart, list.Summary.DateRangeEnd); err != nil {
		return "", err
	}

	filePath := s.getVersionedPath(list)
	if err := os.WriteFile(filePath, []byte(document), 0644); err != nil {
		return "", fmt.Errorf("failed to write document file: %w", err)
	}
	return filePath, nil
}

// Exists checks if the document for this exact generation was saved.
func (s *DocumentStore) Exists(list *shopping.ShoppingList) bool {
	_, err := os.Stat(s.getVersionedPath(list))
	return !os.IsNotExist(err)
}

// RemoveStaleVersions removes all documents saved for the range.
func (s *DocumentStore) RemoveStaleVersions(start, end shopping.Date) error {
	pattern := filepath.Join(s.basePath, rangePrefix(start, end)+"_*.html")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("failed to glob stale files: %w", err)
	}

	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			return fmt.Errorf("failed to remove stale file %s: %w", match, err)
		}
	}
	return nil
}
