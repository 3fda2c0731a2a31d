package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbr/ministryofbackup/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.LevelError)
}

func TestDatabaseDiffFirstRunShortcut(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base)
	inv, err := Scan(base, testLogger())
	require.NoError(t, err)

	db := NewDatabase(base, testLogger())
	require.True(t, db.Empty())

	newFiles, updated, err := db.Diff(inv)
	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.ElementsMatch(t, inv.Order, newFiles)
}

func TestDatabaseRoundTripDumpLoad(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base)
	inv, err := Scan(base, testLogger())
	require.NoError(t, err)

	db := NewDatabase(base, testLogger())
	require.NoError(t, db.UpdateMeta(inv))

	data, err := db.Bytes()
	require.NoError(t, err)

	loaded, err := Load(base, data, testLogger())
	require.NoError(t, err)
	assert.Equal(t, db.Len(), loaded.Len())

	for _, rel := range inv.Order {
		want, ok := db.ContentPrint(rel)
		require.True(t, ok)
		got, ok := loaded.ContentPrint(rel)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestDatabaseLoadRejectsCorruptBlob(t *testing.T) {
	_, err := Load("/base", []byte("not msgpack"), testLogger())
	require.Error(t, err)
	var corrupt *CorruptDatabase
	assert.ErrorAs(t, err, &corrupt)
}

func TestDatabaseDiffDetectsUpdatedAndNew(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base)
	inv, err := Scan(base, testLogger())
	require.NoError(t, err)

	db := NewDatabase(base, testLogger())
	require.NoError(t, db.UpdateMeta(inv))

	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("changed content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "new.txt"), []byte("brand new"), 0o644))

	inv2, err := Scan(base, testLogger())
	require.NoError(t, err)

	newFiles, updated, err := db.Diff(inv2)
	require.NoError(t, err)
	assert.Contains(t, newFiles, RelPath("new.txt"))
	assert.Contains(t, updated, RelPath("a.txt"))
}

func TestDatabaseAlteredDetectsContentChange(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base)
	inv, err := Scan(base, testLogger())
	require.NoError(t, err)

	db := NewDatabase(base, testLogger())
	require.NoError(t, db.UpdateMeta(inv))

	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("changed content"), 0o644))
	inv2, err := Scan(base, testLogger())
	require.NoError(t, err)

	_, updated, err := db.Diff(inv2)
	require.NoError(t, err)
	require.Contains(t, updated, RelPath("a.txt"))

	var inspected uint64
	altered, err := db.Altered(inv2, updated, func(n uint64) { inspected = n })
	require.NoError(t, err)
	assert.Contains(t, altered, RelPath("a.txt"))
	assert.Greater(t, inspected, uint64(0))
}

func TestDatabaseDeletions(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base)
	inv, err := Scan(base, testLogger())
	require.NoError(t, err)

	db := NewDatabase(base, testLogger())
	require.NoError(t, db.UpdateMeta(inv))

	require.NoError(t, os.Remove(filepath.Join(base, "a.txt")))
	inv2, err := Scan(base, testLogger())
	require.NoError(t, err)

	deleted := db.Deletions(inv2)
	assert.Contains(t, deleted, RelPath("a.txt"))
}

func TestDatabaseUpdateMetaCarriesContentForwardWhenUnchanged(t *testing.T) {
	base := t.TempDir()
	writeTree(t, base)
	inv, err := Scan(base, testLogger())
	require.NoError(t, err)

	db := NewDatabase(base, testLogger())
	require.NoError(t, db.UpdateMeta(inv))
	first, ok := db.ContentPrint(RelPath("a.txt"))
	require.True(t, ok)

	inv2, err := Scan(base, testLogger())
	require.NoError(t, err)
	require.NoError(t, db.UpdateMeta(inv2))

	second, ok := db.ContentPrint(RelPath("a.txt"))
	require.True(t, ok)
	assert.Equal(t, first, second)
}
