// Package artifact names, serializes, and dually persists trained model
// bundles. The file store is primary; the relational blob column is a
// portability backup.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/seriesclust/trainqueue/internal/store"
	"github.com/seriesclust/trainqueue/pkg/models"
)

// ErrPersistence means both the file write and the blob write failed.
// Terminal for the job; the queue itself is unaffected.
var ErrPersistence = errors.New("artifact could not be persisted to any location")

// Manager handles artifact naming, dual persistence, and validation.
type Manager struct {
	dir string
	st  store.Store
	log *slog.Logger
}

func NewManager(dir string, st store.Store, log *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Manager{dir: dir, st: st, log: log}, nil
}

// Filename derives the deterministic, filesystem-safe artifact name for a
// parameter set. Identical parameters always map to the same name, so a
// retrain overwrites its predecessor instead of accumulating files.
func Filename(p models.TrainingParams) string {
	raw := fmt.Sprintf("model_%s_%s_%s_%s_%s.json",
		p.Metric, p.StartMonth, p.EndMonth, p.Region, p.Category)

	var b strings.Builder
	for _, c := range raw {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.':
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Save serializes the bundle, writes it to the file store, and mirrors the
// exact bytes into the blob column. One successful location is enough; the
// failed one is logged. Both failing is ErrPersistence.
func (m *Manager) Save(ctx context.Context, id uuid.UUID, b *models.Bundle) (string, error) {
	name := Filename(b.Params)
	path := filepath.Join(m.dir, name)

	payload, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}

	fileErr := os.WriteFile(path, payload, 0o644)
	if fileErr == nil {
		// Read back so the blob carries the bytes actually on disk.
		if onDisk, err := os.ReadFile(path); err == nil {
			payload = onDisk
		}
		m.log.Info("artifact written to file store", "path", path)
	} else {
		m.log.Error("artifact file write failed", "path", path, "error", fileErr)
	}

	blobErr := m.st.StoreArtifactBlob(ctx, id, name, payload)
	if blobErr != nil {
		m.log.Warn("artifact blob write failed", "request_id", id, "error", blobErr)
	}

	if fileErr != nil && blobErr != nil {
		return "", fmt.Errorf("%w: file: %v; blob: %v", ErrPersistence, fileErr, blobErr)
	}
	return name, nil
}

// Validate deserializes the named artifact and checks its required fields.
// A missing cleaning-statistics block is a compatibility warning, not a
// failure: older artifacts predate it.
func (m *Manager) Validate(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name is empty")
	}
	raw, err := os.ReadFile(filepath.Join(m.dir, name))
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	var b models.Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return fmt.Errorf("decode artifact %s: %w", name, err)
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("artifact %s: %w", name, err)
	}
	if b.CleaningStats == nil {
		m.log.Warn("artifact has no cleaning stats (written by an older version)", "name", name)
	}
	return nil
}

// Sweep keeps the newest keep artifacts on the file store and deletes the
// rest. Deletion failures are logged and non-fatal.
func (m *Manager) Sweep(keep int) error {
	paths, err := filepath.Glob(filepath.Join(m.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}
	if len(paths) <= keep {
		return nil
	}

	type entry struct {
		path  string
		mtime int64
	}
	entries := make([]entry, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: p, mtime: info.ModTime().UnixNano()})
	}
	// Files can vanish between Glob and Stat; re-check against the survivors.
	if len(entries) <= keep {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mtime < entries[j].mtime })

	for _, e := range entries[:len(entries)-keep] {
		if err := os.Remove(e.path); err != nil {
			m.log.Warn("failed to remove old artifact", "path", e.path, "error", err)
			continue
		}
		m.log.Info("removed old artifact", "path", e.path)
	}
	return nil
}
