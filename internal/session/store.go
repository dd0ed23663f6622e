// Package session persists and restores whole-session snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoSnapshot reports that no snapshot file exists at the configured path.
var ErrNoSnapshot = errors.New("session: no snapshot found")

// FileStore writes the snapshot as JSON to a single file. Saves go
// through a temp file and rename so a crash mid-write never corrupts the
// previous snapshot.
type FileStore struct {
	path string
	log  *zap.Logger
}

var _ schemas.SnapshotStore = (*FileStore)(nil)

func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, log: logger.Named("session")}
}

func (s *FileStore) Save(ctx context.Context, snap schemas.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}

	s.log.Info("session saved",
		zap.String("path", s.path),
		zap.Int("turns", len(snap.Turns)),
		zap.Int("agents", len(snap.Roster)))
	return nil
}

func (s *FileStore) Load(ctx context.Context) (schemas.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return schemas.Snapshot{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return schemas.Snapshot{}, fmt.Errorf("%w: %s", ErrNoSnapshot, s.path)
		}
		return schemas.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snap schemas.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return schemas.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}

	s.log.Info("session loaded",
		zap.String("path", s.path),
		zap.Int("turns", len(snap.Turns)),
		zap.Int("agents", len(snap.Roster)))
	return snap, nil
}
