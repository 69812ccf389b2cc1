package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"brandhub/backend/internal/research"
)

// ObjectStore is the blob backend behind the archive.
type ObjectStore interface {
	Backend() string
	PutObject(ctx context.Context, objectPath, contentType string, data []byte) error
}

// Archiver writes finished sessions as JSON documents.
type Archiver struct {
	store  ObjectStore
	prefix string
}

func NewArchiver(store ObjectStore, prefix string) *Archiver {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "research"
	}
	return &Archiver{store: store, prefix: prefix}
}

func (a *Archiver) Backend() string {
	if a == nil || a.store == nil {
		return "none"
	}
	return a.store.Backend()
}

// Put stores session at <prefix>/<yyyy>/<mm>/<id>.json, keyed by the month
// the session started, and returns the object path.
func (a *Archiver) Put(ctx context.Context, session *research.Session) (string, error) {
	if a == nil || a.store == nil {
		return "", nil
	}
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return "", errors.New("session id is required")
	}

	payload, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	objectPath := ObjectPath(a.prefix, session.ID, session.StartedAt)
	if err := a.store.PutObject(ctx, objectPath, "application/json", payload); err != nil {
		return "", err
	}
	return objectPath, nil
}

func ObjectPath(prefix, id string, startedAt time.Time) string {
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	startedAt = startedAt.UTC()
	return path.Join(prefix, startedAt.Format("2006"), startedAt.Format("01"), id+".json")
}

func cleanObjectPath(objectPath string) (string, error) {
	name := strings.Trim(strings.TrimSpace(objectPath), "/")
	if name == "" {
		return "", errors.New("object path is required")
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("object path %q escapes the archive", objectPath)
	}
	return cleaned, nil
}

func contentTypeOrDefault(contentType string) string {
	if trimmed := strings.TrimSpace(contentType); trimmed != "" {
		return trimmed
	}
	return "application/octet-stream"
}
