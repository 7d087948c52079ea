package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("reports/out.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.Equal(t, "reports/out.csv", rel)

	file, err := store.Open(rel)
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	require.Equal(t, "a,b\n1,2\n", string(data))

	require.NoError(t, store.Delete(rel))
	_, err = store.Open(rel)
	require.Error(t, err)

	// Deleting twice is fine.
	require.NoError(t, store.Delete(rel))
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.csv", []byte("x"))
	require.Error(t, err)

	_, err = store.Open("/etc/passwd")
	require.Error(t, err)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("old.csv", []byte("old"))
	require.NoError(t, err)
	_, err = store.Save("fresh.csv", []byte("fresh"))
	require.NoError(t, err)

	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.csv"), stale, stale))

	deleted, err := store.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, []string{"old.csv"}, deleted)

	_, err = store.Open("fresh.csv")
	require.NoError(t, err)
}
