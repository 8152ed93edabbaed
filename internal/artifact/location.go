package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocationKind says where an artifact can be read from.
type LocationKind int

const (
	LocationMissing LocationKind = iota
	LocationFile
	LocationBlob
)

func (k LocationKind) String() string {
	switch k {
	case LocationFile:
		return "file"
	case LocationBlob:
		return "blob"
	default:
		return "missing"
	}
}

// Location is the resolved source of one artifact. Resolved once at load
// time instead of re-checking existence at every call site.
type Location struct {
	Kind LocationKind
	Path string
	ID   uuid.UUID
}

// Resolve finds where the named artifact lives: the file store first, then
// the blob column, then nowhere.
func (m *Manager) Resolve(ctx context.Context, name string, id uuid.UUID) Location {
	if name != "" {
		path := filepath.Join(m.dir, name)
		if _, err := os.Stat(path); err == nil {
			return Location{Kind: LocationFile, Path: path, ID: id}
		}
	}
	if _, err := m.st.FetchArtifactBlob(ctx, id); err == nil {
		return Location{Kind: LocationBlob, ID: id}
	}
	return Location{Kind: LocationMissing, ID: id}
}

// Open returns the serialized bundle bytes at a resolved location.
func (m *Manager) Open(ctx context.Context, loc Location) ([]byte, error) {
	switch loc.Kind {
	case LocationFile:
		raw, err := os.ReadFile(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("read artifact file: %w", err)
		}
		return raw, nil
	case LocationBlob:
		raw, err := m.st.FetchArtifactBlob(ctx, loc.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch artifact blob: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("artifact is missing from both file store and blob column")
	}
}
