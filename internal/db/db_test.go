package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesMigrations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "arcft.db")
	conn, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	v, err := Version(conn)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	for _, table := range []string{"rules", "runs", "predictions"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)

	// Reopening an existing database is a no-op migration.
	require.NoError(t, conn.Close())
	conn, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestTryAcquireLock_IsExclusive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, ok, err := TryAcquireLock(dir)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = TryAcquireLock(dir)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release())
	again, ok, err := TryAcquireLock(dir)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, again.Release())

	var nilLock *Lock
	assert.NoError(t, nilLock.Release())
}
