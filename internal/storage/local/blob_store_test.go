// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gameresult-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "snapshots")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		require.NotNil(t, store)
		require.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	path := "tai_xiu/2024/01/abc.json"
	uri, err := store.PutObject(context.Background(), path, "application/json", []byte(`{"result":"tai"}`))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, path), uri)

	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(filepath.Join(dir, path))
	require.NoError(t, err)
	require.JSONEq(t, `{"result":"tai"}`, string(got))

	_, err = store.PutObject(context.Background(), "", "text/plain", nil)
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "../escape.txt", "text/plain", []byte("x"))
	require.Error(t, err)
}
