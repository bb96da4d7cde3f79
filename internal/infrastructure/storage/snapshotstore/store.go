package snapshotstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vetpath/vetpath-client/internal/core/domain"
)

const snapshotFile = "processing.json"

// Store keeps the best-effort processing mirror as a small JSON file, the
// client-side analog of page-scoped storage. It is never the source of truth
// while the client is live.
type Store struct {
	basePath string
}

func New(basePath string) (*Store, error) {
	if basePath == "" {
		basePath = "./data/session"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) Save(_ context.Context, snap domain.ProcessingSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(s.basePath, snapshotFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load returns a zero snapshot when none has been written yet.
func (s *Store) Load(_ context.Context) (domain.ProcessingSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, snapshotFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ProcessingSnapshot{}, nil
		}
		return domain.ProcessingSnapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap domain.ProcessingSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.ProcessingSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
