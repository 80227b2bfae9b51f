package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fsec/internal/storage"
)

func sampleRecord(name, alias string, score int, at time.Time) Record {
	return Record{
		Name:         name,
		Alias:        alias,
		PresentScore: score,
		FuzzyScore:   score,
		Method:       "lookup",
		Source:       "test",
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// backends returns a fresh pair of stores per backend that share durable
// storage, so one can write what the other reads.
func backends(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	mr := miniredis.RunT(t)

	return map[string]func() Store{
		"json": func() Store {
			return NewFileStore(filepath.Join(dir, "registry.json"), FormatJSON, zap.NewNop())
		},
		"yaml": func() Store {
			return NewFileStore(filepath.Join(dir, "registry.yaml"), FormatYAML, zap.NewNop())
		},
		"sqlite": func() Store {
			s, err := Open(ctx, Config{Backend: "sqlite", Path: filepath.Join(dir, "registry.db")}, zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func() Store {
			s, err := Open(ctx, Config{Backend: "redis", RedisURL: "redis://" + mr.Addr()}, zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestIndexLookupExists(t *testing.T) {
	x := NewIndex()
	now := time.Now()
	x.Add("Acme Energy", sampleRecord("Acme Energy", "ACME", 80, now))

	rec, ok := x.Lookup("acme energy")
	require.True(t, ok)
	assert.Equal(t, "acme energy", rec.NormalizedName)
	assert.Equal(t, "ACME", rec.Alias)

	assert.True(t, x.Exists("acme"))
	assert.True(t, x.Exists("ACME"))
	assert.False(t, x.Exists("zenith"))

	x.Add("acme energy", sampleRecord("Acme Energy", "ACME ENERGY", 95, now))
	assert.False(t, x.Exists("acme"), "replaced alias must no longer count")
	assert.True(t, x.Exists("acme energy"))

	x.Remove("ACME ENERGY")
	_, ok = x.Lookup("acme energy")
	assert.False(t, ok)
	assert.Equal(t, 0, x.Len())
	assert.Equal(t, []string{"acme energy"}, x.pendingRemovals())
}

func TestIndexReplaceCollapsesCollisions(t *testing.T) {
	x := NewIndex()
	now := time.Now()
	low := sampleRecord("ACME ENERGY", "LOW", 60, now)
	low.NormalizedName = "ACME ENERGY"
	high := sampleRecord("acme energy", "HIGH", 90, now)
	high.NormalizedName = "acme energy"

	x.replace([]Record{low, high})
	require.Equal(t, 1, x.Len())
	rec, _ := x.Lookup("acme energy")
	assert.Equal(t, "HIGH", rec.Alias)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			w := open()
			w.Add("Acme Energy", sampleRecord("Acme Energy", "ACME", 80, at))
			w.Add("Zenith Oil & Gas", sampleRecord("Zenith Oil & Gas", "ZENITH", 92, at))
			require.NoError(t, w.Save(ctx))

			r := open()
			require.NoError(t, r.Load(ctx))
			assert.Equal(t, []string{"acme energy", "zenith oil gas"}, r.Keys())

			rec, ok := r.Lookup("acme energy")
			require.True(t, ok)
			assert.Equal(t, "ACME", rec.Alias)
			assert.Equal(t, 80, rec.PresentScore)
			assert.True(t, rec.UpdatedAt.Equal(at))
			assert.True(t, r.Exists("zenith"))

			r.Remove("zenith oil gas")
			require.NoError(t, r.Save(ctx))

			again := open()
			require.NoError(t, again.Load(ctx))
			assert.Equal(t, []string{"acme energy"}, again.Keys())
		})
	}
}

func TestStoreRefreshMergesNewer(t *testing.T) {
	ctx := context.Background()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := old.Add(time.Hour)

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a := open()
			a.Add("acme energy", sampleRecord("Acme Energy", "ACME", 80, old))
			require.NoError(t, a.Save(ctx))

			b := open()
			require.NoError(t, b.Load(ctx))

			a.Add("acme energy", sampleRecord("Acme Energy", "ACME CORP", 95, newer))
			a.Add("apex midstream", sampleRecord("Apex Midstream", "APEX", 91, newer))
			require.NoError(t, a.Save(ctx))

			require.NoError(t, b.Refresh(ctx))
			rec, ok := b.Lookup("acme energy")
			require.True(t, ok)
			assert.Equal(t, "ACME CORP", rec.Alias)
			_, ok = b.Lookup("apex midstream")
			assert.True(t, ok)
		})
	}
}

func TestFileStoreLoadFailsSoft(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	missing := NewFileStore(filepath.Join(dir, "absent.json"), FormatJSON, zap.NewNop())
	missing.Add("leftover", sampleRecord("leftover", "X", 10, time.Now()))
	err := missing.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, missing.Len())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	broken := NewFileStore(bad, FormatJSON, zap.NewNop())
	broken.Add("kept", sampleRecord("kept", "K", 10, time.Now()))
	err = broken.Load(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	_, ok := broken.Lookup("kept")
	assert.True(t, ok, "a decode failure leaves memory untouched")
}

func TestSQLStoreSkipsBadTimestamps(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	s, err := OpenSQLStore(ctx, storage.SQLite, filepath.Join(t.TempDir(), "registry.db"), zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	s.Add("acme energy", sampleRecord("Acme Energy", "ACME", 80, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, s.Save(ctx))
	_, err = s.conn.ExecContext(ctx, `INSERT INTO operators (normalized_name, name, alias, created_at, updated_at) VALUES ('zenith', 'Zenith', 'ZEN', 'yesterday', 'yesterday')`)
	require.NoError(t, err)

	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 1, s.Len())
	_, ok := s.Lookup("zenith")
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("skipping registry row with bad timestamp").Len())
	assert.True(t, s.newest().Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := NewFileStore(filepath.Join(dir, "src.yaml"), FormatYAML, zap.NewNop())
	src.Add("acme energy", sampleRecord("Acme Energy", "ACME", 80, time.Now()))
	require.NoError(t, src.Save(ctx))

	dst := NewFileStore(filepath.Join(dir, "dst.json"), FormatJSON, zap.NewNop())
	n, err := Copy(ctx, NewFileStore(filepath.Join(dir, "src.yaml"), FormatYAML, zap.NewNop()), dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	check := NewFileStore(filepath.Join(dir, "dst.json"), FormatJSON, zap.NewNop())
	require.NoError(t, check.Load(ctx))
	assert.True(t, check.Exists("acme"))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "mongo"}, zap.NewNop())
	require.ErrorIs(t, err, ErrUnknownBackend)
}
