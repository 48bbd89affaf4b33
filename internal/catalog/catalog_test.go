package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
)

func TestOpenAppliesMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	log := logging.New(logging.LevelCrit, logging.LevelCrit)

	c, err := Open(dbPath, log)
	require.NoError(t, err)
	defer c.Close()

	require.FileExists(t, dbPath)
}

func TestRecordOpenAndClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	log := logging.New(logging.LevelCrit, logging.LevelCrit)

	c, err := Open(dbPath, log)
	require.NoError(t, err)
	defer c.Close()

	opened := time.Unix(1700000000, 0)
	require.NoError(t, c.RecordOpen("2023-11-14-00.dat", opened, []string{"timer", "gps"}))

	var gotPath, gotSources string
	var openedAt int64
	var closedAt *int64
	require.NoError(t, c.db.QueryRow(
		"SELECT path, opened_at, closed_at, sources FROM rotations WHERE path = ?",
		"2023-11-14-00.dat",
	).Scan(&gotPath, &openedAt, &closedAt, &gotSources))

	require.Equal(t, "2023-11-14-00.dat", gotPath)
	require.Equal(t, opened.Unix(), openedAt)
	require.Nil(t, closedAt)
	require.Equal(t, "timer,gps", gotSources)

	closed := opened.Add(time.Hour)
	require.NoError(t, c.RecordClose("2023-11-14-00.dat", closed))

	require.NoError(t, c.db.QueryRow(
		"SELECT closed_at FROM rotations WHERE path = ?",
		"2023-11-14-00.dat",
	).Scan(&closedAt))
	require.NotNil(t, closedAt)
	require.Equal(t, closed.Unix(), *closedAt)
}
