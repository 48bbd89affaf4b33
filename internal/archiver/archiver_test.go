package archiver

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
)

func newTestArchiver(t *testing.T, cfg Config) *Archiver {
	t.Helper()
	log := logging.New(logging.LevelCrit, logging.LevelCrit)
	a, err := New(context.Background(), cfg, log)
	require.NoError(t, err)
	return a
}

func TestNewWithoutS3BucketSkipsClient(t *testing.T) {
	a := newTestArchiver(t, Config{})
	require.Nil(t, a.client)
}

func TestArchiveGzipsAndRemovesOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rotation.dat")
	require.NoError(t, os.WriteFile(path, []byte("hello rotation"), 0o644))

	a := newTestArchiver(t, Config{Gzip: true})
	finalPath, err := a.Archive(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, path+".gz", finalPath)

	require.NoFileExists(t, path)
	require.FileExists(t, finalPath)

	f, err := os.Open(finalPath)
	require.NoError(t, err)
	defer f.Close()
	gr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gr)
	require.NoError(t, err)
	require.Equal(t, "hello rotation", string(data))
}

func TestArchiveWithoutGzipLeavesFileInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rotation.dat")
	require.NoError(t, os.WriteFile(path, []byte("raw"), 0o644))

	a := newTestArchiver(t, Config{})
	finalPath, err := a.Archive(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, path, finalPath)
	require.FileExists(t, path)
}

func TestBaseName(t *testing.T) {
	require.Equal(t, "rotation.dat.gz", baseName("/var/log/selkie/rotation.dat.gz"))
	require.Equal(t, "rotation.dat", baseName("rotation.dat"))
}
