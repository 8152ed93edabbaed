package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/seriesclust/trainqueue/internal/store"
	"github.com/seriesclust/trainqueue/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// blobStore is an in-memory store.Store covering only the blob operations the
// artifact manager touches.
type blobStore struct {
	blobs   map[uuid.UUID][]byte
	failPut error
	failGet error
}

func newBlobStore() *blobStore {
	return &blobStore{blobs: make(map[uuid.UUID][]byte)}
}

func (s *blobStore) StoreArtifactBlob(_ context.Context, id uuid.UUID, _ string, blob []byte) error {
	if s.failPut != nil {
		return s.failPut
	}
	s.blobs[id] = append([]byte(nil), blob...)
	return nil
}

func (s *blobStore) FetchArtifactBlob(_ context.Context, id uuid.UUID) ([]byte, error) {
	if s.failGet != nil {
		return nil, s.failGet
	}
	b, ok := s.blobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (s *blobStore) Ping(context.Context) error { return nil }
func (s *blobStore) UpsertRequest(context.Context, models.TrainingParams) (uuid.UUID, error) {
	return uuid.Nil, errors.New("not implemented")
}
func (s *blobStore) GetRequest(context.Context, uuid.UUID) (*models.Request, error) {
	return nil, store.ErrNotFound
}
func (s *blobStore) GetRequestByParams(context.Context, models.TrainingParams) (*models.Request, error) {
	return nil, store.ErrNotFound
}
func (s *blobStore) ListByStatus(context.Context, string) ([]*models.Request, error) {
	return nil, nil
}
func (s *blobStore) ClaimNextPending(context.Context) (*models.Request, error) {
	return nil, store.ErrNotFound
}
func (s *blobStore) SetStatus(context.Context, uuid.UUID, string, ...store.StatusOption) error {
	return nil
}

func testParams() models.TrainingParams {
	return models.TrainingParams{
		Metric:     models.MetricEuclidean,
		StartMonth: "2023-01",
		EndMonth:   "2023-06",
		Region:     "north",
		Category:   "burglary",
	}
}

func testBundle() *models.Bundle {
	return &models.Bundle{
		Model: &models.ClusterModel{
			Metric:    models.MetricEuclidean,
			K:         2,
			Centroids: [][]float64{{0, 1}, {1, 0}},
		},
		Scaler:       "robust",
		K:            2,
		Silhouette:   0.7,
		Params:       testParams(),
		EntityLabels: []string{"alfa", "bravo"},
		CleaningStats: &models.CleaningStats{
			OriginalRows: 3,
			OriginalCols: 2,
		},
	}
}

func TestFilename(t *testing.T) {
	name := Filename(testParams())
	assert.Equal(t, "model_euclidean_2023-01_2023-06_north_burglary.json", name)

	// Deterministic.
	assert.Equal(t, name, Filename(testParams()))
}

func TestFilename_SanitizesUnsafeCharacters(t *testing.T) {
	p := testParams()
	p.Region = "north/../etc"
	p.Category = "theft of vehicle"

	name := Filename(p)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, " ")
	assert.Equal(t, "model_euclidean_2023-01_2023-06_north..etc_theftofvehicle.json", name)
}

func TestSave_WritesFileAndBlob(t *testing.T) {
	dir := t.TempDir()
	st := newBlobStore()
	m, err := NewManager(dir, st, discard)
	require.NoError(t, err)

	id := uuid.New()
	name, err := m.Save(context.Background(), id, testBundle())
	require.NoError(t, err)

	onDisk, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	blob, err := st.FetchArtifactBlob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, onDisk, blob)

	var b models.Bundle
	require.NoError(t, json.Unmarshal(onDisk, &b))
	assert.Equal(t, 2, b.K)
	assert.Equal(t, []string{"alfa", "bravo"}, b.EntityLabels)
}

func TestSave_BlobFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	st := newBlobStore()
	st.failPut = errors.New("connection refused")
	m, err := NewManager(dir, st, discard)
	require.NoError(t, err)

	name, err := m.Save(context.Background(), uuid.New(), testBundle())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, name))
	assert.NoError(t, err)
}

func TestSave_FileFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	st := newBlobStore()
	m, err := NewManager(dir, st, discard)
	require.NoError(t, err)

	// A directory squatting on the artifact name makes the file half fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, Filename(testParams())), 0o755))

	id := uuid.New()
	name, err := m.Save(context.Background(), id, testBundle())
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	_, err = st.FetchArtifactBlob(context.Background(), id)
	assert.NoError(t, err)
}

func TestSave_BothLocationsFailing(t *testing.T) {
	dir := t.TempDir()
	st := newBlobStore()
	st.failPut = errors.New("connection refused")
	m, err := NewManager(dir, st, discard)
	require.NoError(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(dir, Filename(testParams())), 0o755))

	_, err = m.Save(context.Background(), uuid.New(), testBundle())
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, newBlobStore(), discard)
	require.NoError(t, err)

	name, err := m.Save(context.Background(), uuid.New(), testBundle())
	require.NoError(t, err)

	assert.NoError(t, m.Validate(name))
	assert.Error(t, m.Validate(""))
	assert.Error(t, m.Validate("no_such_artifact.json"))
}

func TestValidate_RejectsBrokenBundle(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, newBlobStore(), discard)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0o644))
	assert.Error(t, m.Validate("garbage.json"))

	empty, err := json.Marshal(&models.Bundle{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.json"), empty, 0o644))
	assert.Error(t, m.Validate("empty.json"))
}

func TestValidate_MissingCleaningStatsIsAccepted(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, newBlobStore(), discard)
	require.NoError(t, err)

	b := testBundle()
	b.CleaningStats = nil
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), raw, 0o644))

	assert.NoError(t, m.Validate("old.json"))
}

func TestResolve_PrefersFileOverBlob(t *testing.T) {
	dir := t.TempDir()
	st := newBlobStore()
	m, err := NewManager(dir, st, discard)
	require.NoError(t, err)

	ctx := context.Background()
	id := uuid.New()
	name, err := m.Save(ctx, id, testBundle())
	require.NoError(t, err)

	loc := m.Resolve(ctx, name, id)
	assert.Equal(t, LocationFile, loc.Kind)

	raw, err := m.Open(ctx, loc)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestResolve_FallsBackToBlob(t *testing.T) {
	dir := t.TempDir()
	st := newBlobStore()
	m, err := NewManager(dir, st, discard)
	require.NoError(t, err)

	ctx := context.Background()
	id := uuid.New()
	name, err := m.Save(ctx, id, testBundle())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, name)))

	loc := m.Resolve(ctx, name, id)
	assert.Equal(t, LocationBlob, loc.Kind)

	raw, err := m.Open(ctx, loc)
	require.NoError(t, err)

	var b models.Bundle
	require.NoError(t, json.Unmarshal(raw, &b))
	assert.NoError(t, b.Validate())
}

func TestResolve_Missing(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, newBlobStore(), discard)
	require.NoError(t, err)

	loc := m.Resolve(context.Background(), "nothing.json", uuid.New())
	assert.Equal(t, LocationMissing, loc.Kind)

	_, err = m.Open(context.Background(), loc)
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, newBlobStore(), discard)
	require.NoError(t, err)

	names := []string{"a.json", "b.json", "c.json", "d.json"}
	base := time.Now().Add(-time.Hour)
	for i, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
		mtime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}

	require.NoError(t, m.Sweep(2))

	left, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Contains(t, left, filepath.Join(dir, "c.json"))
	assert.Contains(t, left, filepath.Join(dir, "d.json"))
}

func TestSweep_SkipsVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, newBlobStore(), discard)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "keeper.json"), []byte("{}"), 0o644))
	// Dangling symlinks glob like artifacts but fail to stat, the same as
	// files deleted between listing and inspection.
	for _, n := range []string{"gone1.json", "gone2.json", "gone3.json"} {
		require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, n)))
	}

	require.NoError(t, m.Sweep(2))

	_, err = os.Stat(filepath.Join(dir, "keeper.json"))
	assert.NoError(t, err)
}

func TestSweep_NothingToRemove(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, newBlobStore(), discard)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "only.json"), []byte("{}"), 0o644))
	require.NoError(t, m.Sweep(5))

	left, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
