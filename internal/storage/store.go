package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Read when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("storage: invalid key")

// Store is a flat key/value object store. Keys use forward slashes.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// List returns every key with the given prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

const (
	uploadsPrefix = "uploads/"
	workPrefix    = "work/"
	resultsPrefix = "results/"
)

// ResultsPrefix is the prefix shared by all result documents.
func ResultsPrefix() string { return resultsPrefix }

// WorkspacePrefix is the root of a job's transient artifacts.
func WorkspacePrefix(workspace string) string {
	return workPrefix + workspace + "/"
}

// FrameKey is where extracted frame index is stored.
func FrameKey(workspace string, index int) string {
	return fmt.Sprintf("%sframes/%05d.jpg", WorkspacePrefix(workspace), index)
}

// StageKey is where a stage's output artifact is stored for resume.
func StageKey(workspace, stage string) string {
	return WorkspacePrefix(workspace) + "stages/" + stage + ".json"
}

// ResultKey is where the final result document for a job is stored.
func ResultKey(jobID string) string {
	return resultsPrefix + jobID + ".json"
}

// UploadKey is where the uploaded source media is stored.
func UploadKey(jobID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		name = "media"
	}
	return uploadsPrefix + jobID + "/" + name
}

// CleanKey validates a key and returns its canonical form. Keys containing
// ".." segments are rejected.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// DeletePrefix removes every key under prefix and returns how many were removed.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", prefix, err)
	}
	removed := 0
	var errs []error
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
