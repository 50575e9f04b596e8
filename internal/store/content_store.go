package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"basegraph.app/harmony/common"
	"basegraph.app/harmony/internal/model"
)

const (
	// MaxContentSize is the maximum allowed artifact content size in bytes.
	MaxContentSize = 1024 * 1024 // 1MB

	contentExt = ".md"
)

var (
	ErrContentNotFound      = errors.New("artifact content not found")
	ErrContentTooLarge      = errors.New("artifact content exceeds maximum size")
	ErrInvalidContentPath   = errors.New("invalid content path")
	ErrContentPathTraversal = errors.New("path traversal not allowed")
)

// ContentStore keeps the materialized content of executed artifacts.
type ContentStore interface {
	Write(ctx context.Context, runID int64, artifactID, content string) (model.ContentRef, error)
	Read(ctx context.Context, ref model.ContentRef) (string, error)
	Exists(ctx context.Context, ref model.ContentRef) (bool, error)
}

// LocalContentStore implements ContentStore on the local filesystem, one
// directory per run.
type LocalContentStore struct {
	rootDir string
}

func NewLocalContentStore(rootDir string) (*LocalContentStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("content root directory is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating content root directory: %w", err)
	}
	return &LocalContentStore{rootDir: rootDir}, nil
}

func (s *LocalContentStore) Read(ctx context.Context, ref model.ContentRef) (string, error) {
	if err := validatePath(ref.Path); err != nil {
		return "", err
	}

	content, err := os.ReadFile(filepath.Join(s.rootDir, ref.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrContentNotFound
		}
		return "", fmt.Errorf("reading content: %w", err)
	}

	if ref.SHA256 != "" {
		if actual := sha256Hash(content); actual != ref.SHA256 {
			return "", fmt.Errorf("content hash mismatch: expected %s, got %s", ref.SHA256, actual)
		}
	}
	return string(content), nil
}

// Write stores content at run_<id>/<artifact slug>.md, replacing any earlier
// content for the same artifact.
func (s *LocalContentStore) Write(ctx context.Context, runID int64, artifactID, content string) (model.ContentRef, error) {
	if len(content) > MaxContentSize {
		return model.ContentRef{}, ErrContentTooLarge
	}
	if len(content) == 0 {
		return model.ContentRef{}, fmt.Errorf("artifact content cannot be empty")
	}

	name, err := common.Slugify(artifactID, "artifact")
	if err != nil {
		return model.ContentRef{}, fmt.Errorf("naming content file: %w", err)
	}
	dirName := fmt.Sprintf("run_%d", runID)
	relPath := filepath.Join(dirName, name+contentExt)
	if err := validatePath(relPath); err != nil {
		return model.ContentRef{}, err
	}

	fullPath := filepath.Join(s.rootDir, relPath)
	if err := os.MkdirAll(filepath.Join(s.rootDir, dirName), 0o755); err != nil {
		return model.ContentRef{}, fmt.Errorf("creating run directory: %w", err)
	}

	// Atomic write: write to temp file, then rename
	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return model.ContentRef{}, fmt.Errorf("writing temp content: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return model.ContentRef{}, fmt.Errorf("renaming content: %w", err)
	}

	return model.ContentRef{
		Backend:    "local",
		Path:       relPath,
		RunID:      runID,
		ArtifactID: artifactID,
		Size:       len(content),
		SHA256:     sha256Hash([]byte(content)),
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

func (s *LocalContentStore) Exists(ctx context.Context, ref model.ContentRef) (bool, error) {
	if err := validatePath(ref.Path); err != nil {
		return false, err
	}

	if _, err := os.Stat(filepath.Join(s.rootDir, ref.Path)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking content existence: %w", err)
	}
	return true, nil
}

// validatePath ensures the path is safe (no traversal, stays under root).
func validatePath(path string) error {
	if path == "" {
		return ErrInvalidContentPath
	}
	if strings.Contains(path, "..") || filepath.IsAbs(path) {
		return ErrContentPathTraversal
	}
	if strings.HasPrefix(filepath.Clean(path), "..") {
		return ErrContentPathTraversal
	}
	return nil
}

func sha256Hash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
