package store

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// File store: one gob snapshot per token, written atomically
// ---------------------------------------------------------------------------

// FileStore persists entries as gob files under a directory.
type FileStore struct {
	dir string
	ttl time.Duration
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, ttl time.Duration) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: file driver needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	return &FileStore{dir: dir, ttl: ttl}, nil
}

func (s *FileStore) path(token string) string {
	return filepath.Join(s.dir, normalize(token)+".gob")
}

// Get loads the snapshot for token. Expired snapshots are reported as
// ErrNotFound and left for the next Put to overwrite.
func (s *FileStore) Get(_ context.Context, token string) (*Entry, error) {
	path := s.path(token)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: open snapshot: %w", err)
	}
	defer f.Close()

	var e Entry
	if err := gob.NewDecoder(f).Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			log.Warn().Str("path", path).Msg("store: empty snapshot, ignoring")
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	if expired(&e, s.ttl, time.Now()) {
		return nil, ErrNotFound
	}
	return &e, nil
}

// Put writes the snapshot to a temp file, then renames it into place.
func (s *FileStore) Put(_ context.Context, e *Entry) error {
	path := s.path(e.Token)
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("store: create snapshot file: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(e); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("store: rename snapshot: %w", err)
	}

	log.Debug().
		Str("token", e.Token).
		Int("nodes", len(e.Dataset.Nodes)).
		Int("links", len(e.Dataset.Links)).
		Str("path", path).
		Msg("store: snapshot saved")
	return nil
}

func (s *FileStore) Delete(_ context.Context, token string) error {
	if err := os.Remove(s.path(token)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: delete snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// SnapshotInfo describes a snapshot file without loading it.
type SnapshotInfo struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
	Exists    bool      `json:"exists"`
}

// Info stats the snapshot of token.
func (s *FileStore) Info(token string) SnapshotInfo {
	path := s.path(token)
	info, err := os.Stat(path)
	if err != nil {
		return SnapshotInfo{Path: path}
	}
	return SnapshotInfo{Path: path, SizeBytes: info.Size(), ModTime: info.ModTime(), Exists: true}
}
