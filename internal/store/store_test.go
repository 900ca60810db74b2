package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sttstudio/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{DataRoot: t.TempDir()}
}

func TestNewCreatesAllRoots(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg)
	require.NoError(t, err)

	for _, dir := range []string{cfg.UploadsDir(), cfg.TmpDir(), cfg.OutputsDir(), cfg.MetaDir(), cfg.LocksDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestStorePathHelpers(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.UploadsDir(), "job-1"), s.UploadDir("job-1"))
	assert.Equal(t, filepath.Join(cfg.TmpDir(), "job-1"), s.TmpDir("job-1"))
	assert.Equal(t, filepath.Join(cfg.TmpDir(), "job-1", "segments"), s.SegmentsDir("job-1"))
	assert.Equal(t, filepath.Join(cfg.TmpDir(), "job-1", "normalized.wav"), s.NormalizedWav("job-1"))
	assert.Equal(t, filepath.Join(cfg.OutputsDir(), "job-1.srt"), s.OutputPath("job-1"))
	assert.Equal(t, filepath.Join(cfg.MetaDir(), "job-1.json"), s.MetaPath("job-1"))
	assert.Equal(t, filepath.Join(cfg.LocksDir(), "job-1.lock"), s.LockPath("job-1"))
}

func TestAtomicWriteTextCreatesParentAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.txt")

	require.NoError(t, AtomicWriteText(path, "first"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	require.NoError(t, AtomicWriteText(path, "second"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestSafeUnlinkIgnoresMissingFile(t *testing.T) {
	SafeUnlink(filepath.Join(t.TempDir(), "missing"))
}

func TestSecureDeleteFileRemovesRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("sensitive"), 0o644))

	SecureDeleteFile(path, 2)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSecureRemoveTreeDeletesEverything(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "job-1")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.wav"), []byte("data"), 0o644))

	SecureRemoveTree(sub, 1)

	_, err := os.Stat(sub)
	assert.True(t, os.IsNotExist(err))
}

func TestSecureRemoveTreeOnMissingDirIsNoop(t *testing.T) {
	SecureRemoveTree(filepath.Join(t.TempDir(), "missing"), 1)
}
