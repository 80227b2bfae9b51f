package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsec/internal/pipeline"
)

type fakeRunner struct {
	calls [][]string
	limit int
}

func (f *fakeRunner) Run(ctx context.Context, paths []string) (pipeline.BatchResult, error) {
	f.calls = append(f.calls, paths)
	res := pipeline.BatchResult{RunID: "run"}
	for i, p := range paths {
		if f.limit > 0 && i >= f.limit {
			return res, context.Canceled
		}
		res.Files = append(res.Files, pipeline.FileResult{Path: p})
	}
	return res, nil
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestRunCycleSkipsKnownFiles(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(t.TempDir(), "download_log.yaml")
	touch(t, filepath.Join(dir, "b_schedule.xlsx"))
	touch(t, filepath.Join(dir, "a_schedule.csv"))
	touch(t, filepath.Join(dir, "readme.txt"))
	touch(t, filepath.Join(dir, "archive", "old.xlsx"))

	dl, err := LoadDownloadLog(logPath)
	require.NoError(t, err)
	runner := &fakeRunner{}
	svc := NewService(runner, dl, Config{Dir: dir}, nil)

	n, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{filepath.Join(dir, "a_schedule.csv"), filepath.Join(dir, "b_schedule.xlsx")}, runner.calls[0])

	n, err = svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, runner.calls, 1, "no batch when nothing is new")

	reloaded, err := LoadDownloadLog(logPath)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
	assert.True(t, reloaded.Has(filepath.Join(dir, "a_schedule.csv")))
}

func TestRunCycleRecursive(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "archive", "old.xlsx"))
	dl, err := LoadDownloadLog(filepath.Join(t.TempDir(), "log.yaml"))
	require.NoError(t, err)

	svc := NewService(&fakeRunner{}, dl, Config{Dir: dir, Recursive: true}, nil)
	n, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunCycleRecordsOnlyReachedFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.csv"))
	touch(t, filepath.Join(dir, "b.csv"))
	dl, err := LoadDownloadLog(filepath.Join(t.TempDir(), "log.yaml"))
	require.NoError(t, err)

	svc := NewService(&fakeRunner{limit: 1}, dl, Config{Dir: dir}, nil)
	n, err := svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
	assert.False(t, dl.Has(filepath.Join(dir, "b.csv")))
}

func TestRunCycleMissingDir(t *testing.T) {
	dl, err := LoadDownloadLog(filepath.Join(t.TempDir(), "log.yaml"))
	require.NoError(t, err)
	svc := NewService(&fakeRunner{}, dl, Config{Dir: filepath.Join(t.TempDir(), "nope")}, nil)
	n, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	dl, err := LoadDownloadLog(filepath.Join(t.TempDir(), "log.yaml"))
	require.NoError(t, err)
	svc := NewService(&fakeRunner{}, dl, Config{Dir: t.TempDir(), Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, svc.Run(ctx))
}

func TestDownloadLogPrune(t *testing.T) {
	dl, err := LoadDownloadLog(filepath.Join(t.TempDir(), "log.yaml"))
	require.NoError(t, err)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	dl.Add(now.AddDate(0, 0, -60), "/in/old.xlsx")
	dl.Add(now, "/in/new.xlsx")

	assert.Equal(t, []string{"/in/old.xlsx"}, dl.Prune(now.AddDate(0, 0, -42)))
	assert.Equal(t, 1, dl.Len())
	require.NoError(t, dl.Save())

	reloaded, err := LoadDownloadLog(dl.path)
	require.NoError(t, err)
	assert.True(t, reloaded.Known[`/in/new.xlsx`].Equal(now))
}
