package arena

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func testKey(stage string) Key {
	return Key{Revision: "abc123", Profile: "alpine|musl|gcc|g++|openmp=true|blas=none|linkage=static|static_libs=", Stage: stage}
}

func TestKeyHash(t *testing.T) {
	a := testKey("library")
	b := testKey("library")
	assert.Equal(t, a.Hash(), b.Hash(), "identical keys must hash identically")

	c := testKey("consumer")
	assert.NotEqual(t, a.Hash(), c.Hash(), "different stage must produce a different namespace")

	d := a
	d.Revision = "def456"
	assert.NotEqual(t, a.Hash(), d.Hash(), "different revision must produce a different namespace")
}

func TestPublishAndGet(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "arena"))
	require.NoError(t, err)
	defer a.Close()

	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"lib/lib_lightgbm.a":         "archive-bytes",
		"include/LightGBM/c_api.h":   "// c api",
		"include/LightGBM/config.h":  "// config",
	})

	key := testKey("library")
	record, err := a.Publish(key, src, []string{
		"lib/lib_lightgbm.a",
		"include/LightGBM/c_api.h",
		"include/LightGBM/config.h",
	})
	require.NoError(t, err)
	assert.Equal(t, key.Hash(), record.Key)
	assert.Equal(t, "library", record.Stage)
	assert.Len(t, record.Files, 3)
	assert.Positive(t, record.TotalSize)

	got, err := a.Get(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.Files, got.Files)

	assert.FileExists(t, filepath.Join(a.Dir(key), "lib", "lib_lightgbm.a"))
}

func TestGetMiss(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "arena"))
	require.NoError(t, err)
	defer a.Close()

	got, err := a.Get(testKey("library"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepublishReplacesPayload(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "arena"))
	require.NoError(t, err)
	defer a.Close()

	key := testKey("library")

	src1 := t.TempDir()
	writeFiles(t, src1, map[string]string{"old.a": "old"})
	_, err = a.Publish(key, src1, []string{"old.a"})
	require.NoError(t, err)

	src2 := t.TempDir()
	writeFiles(t, src2, map[string]string{"new.a": "new"})
	record, err := a.Publish(key, src2, []string{"new.a"})
	require.NoError(t, err)

	assert.Equal(t, []string{"new.a"}, record.Files)
	assert.NoFileExists(t, filepath.Join(a.Dir(key), "old.a"), "stale payload must be dropped on regeneration")
}

func TestMaterialize(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "arena"))
	require.NoError(t, err)
	defer a.Close()

	src := t.TempDir()
	writeFiles(t, src, map[string]string{"lib/lib_lightgbm.a": "bytes"})

	key := testKey("library")
	_, err = a.Publish(key, src, []string{"lib/lib_lightgbm.a"})
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, a.Materialize(key, dest))
	assert.FileExists(t, filepath.Join(dest, "lib", "lib_lightgbm.a"))

	// Hand-off is by copy: the arena payload must still be present.
	assert.FileExists(t, filepath.Join(a.Dir(key), "lib", "lib_lightgbm.a"))
}

func TestMaterializeMissing(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "arena"))
	require.NoError(t, err)
	defer a.Close()

	err = a.Materialize(testKey("library"), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no artifact published")
}

func TestPublishEmptyPayloadCreatesDir(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "arena"))
	require.NoError(t, err)
	defer a.Close()

	key := testKey("bundle")

	// A record with no files still owns a real payload directory, so Dir
	// is always a valid path once Get reports a hit.
	record, err := a.Publish(key, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Zero(t, record.TotalSize)
	assert.DirExists(t, a.Dir(key))
}

func TestClearAndStats(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "arena"))
	require.NoError(t, err)
	defer a.Close()

	src := t.TempDir()
	writeFiles(t, src, map[string]string{"f.a": "data"})
	_, err = a.Publish(testKey("library"), src, []string{"f.a"})
	require.NoError(t, err)

	count, size, err := a.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(4), size)

	require.NoError(t, a.Clear())

	count, size, err = a.Stats()
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, size)
}

func TestEnumerateFilesSorted(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"include/LightGBM/c_api.h":   "",
		"include/LightGBM/boosting.h": "",
		"include/LightGBM/dataset.h": "",
	})

	files, err := EnumerateFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"include/LightGBM/boosting.h",
		"include/LightGBM/c_api.h",
		"include/LightGBM/dataset.h",
	}, files)
}

func TestCopyArtifactsPreservesMode(t *testing.T) {
	src := t.TempDir()
	bin := filepath.Join(src, "testapp")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	dest := t.TempDir()
	require.NoError(t, CopyArtifacts(src, dest, []string{"testapp"}))

	info, err := os.Stat(filepath.Join(dest, "testapp"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}
