// Package storage keeps converted markdown documents on local disk between
// conversion and upload to the workflow service.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type MarkdownStore struct {
	baseDir string
}

func NewMarkdownStore(dir string) (*MarkdownStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", baseDir, err)
	}
	return &MarkdownStore{baseDir: baseDir}, nil
}

func (s *MarkdownStore) path(name string) string {
	// Uploaded file names come from clients; keep them inside baseDir.
	return filepath.Join(s.baseDir, filepath.Base(name))
}

func (s *MarkdownStore) Save(name, content string) (string, error) {
	if !strings.HasSuffix(name, ".md") {
		return "", fmt.Errorf("refusing to store non-markdown file %q", name)
	}

	path := s.path(name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func (s *MarkdownStore) Read(name string) ([]byte, error) {
	contents, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path(name), err)
	}
	return contents, nil
}

// Clear removes every stored document. The upload flow calls this once the
// remote service holds the converted copy.
func (s *MarkdownStore) Clear() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", s.baseDir, err)
	}
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}
