package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

func newTestWriter(t *testing.T) (*Writer, *fifo.FIFO, *signals.Flags) {
	t.Helper()
	q := fifo.New()
	flags := signals.New()
	log := logging.New(logging.LevelCrit, logging.LevelCrit)
	w := New(t.TempDir(), "test", "dat", q, flags, log, nil, nil)
	return w, q, flags
}

func TestOpenNextFileIsExclusiveAndSerialised(t *testing.T) {
	w, _, _ := newTestWriter(t)
	require.NoError(t, w.openNextFile())
	first := w.file.Name()
	require.NoError(t, w.openNextFile())
	second := w.file.Name()
	require.NotEqual(t, first, second)
	require.FileExists(t, first)
	require.FileExists(t, second)
}

func TestRunDrainsAndShutsDownCleanly(t *testing.T) {
	w, q, flags := newTestWriter(t)
	q.Push(message.NewFloat(1, 4, 3.5))
	q.Push(message.NewTimestamp(2, 2, 42))
	flags.RequestShutdown()

	require.NoError(t, w.Run())
	require.Equal(t, 0, q.Count())

	entries, err := os.ReadDir(w.Directory)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(w.Directory, entries[0].Name()))
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestOnRotateCalledOnClose(t *testing.T) {
	w, q, flags := newTestWriter(t)
	var closedPaths []string
	w.OnRotate = func(path string) { closedPaths = append(closedPaths, path) }

	flags.RequestShutdown()
	require.NoError(t, w.Run())
	_ = q
	require.Len(t, closedPaths, 1)
}
