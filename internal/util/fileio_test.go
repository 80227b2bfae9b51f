package util

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.yaml")

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "a: b\n")
		return err
	})
	require.NoError(t, err)

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a: b\n", string(blob))
}

func TestWriteFileAtomicKeepsOriginalOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.New("encoder failed")
	})
	require.Error(t, err)

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "original", string(blob))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must be cleaned up")
}
