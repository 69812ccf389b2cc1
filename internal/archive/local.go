package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type localObjectStore struct {
	root string
}

// NewLocalObjectStore writes objects below root, creating it if needed.
func NewLocalObjectStore(root string) (ObjectStore, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, errors.New("archive directory is required")
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &localObjectStore{root: trimmed}, nil
}

func (s *localObjectStore) Backend() string {
	return "local"
}

func (s *localObjectStore) PutObject(ctx context.Context, objectPath, _ string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := cleanObjectPath(objectPath)
	if err != nil {
		return err
	}
	target := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write object %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object %q: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("publish object %q: %w", name, err)
	}
	return nil
}
