package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbr/ministryofbackup/pkg/config"
	"github.com/mbr/ministryofbackup/pkg/fingerprint"
	"github.com/mbr/ministryofbackup/pkg/logging"
	"github.com/mbr/ministryofbackup/pkg/sink"
)

func testLogger() *logging.Logger {
	return logging.New(logging.LevelError)
}

// memorySink is an in-memory sink.Sink used so tests can inspect and
// recycle the artifacts a run produces without touching the filesystem.
type memorySink struct {
	buf      bytes.Buffer
	aborted  bool
	commited bool
}

func (s *memorySink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memorySink) Commit() error               { s.commited = true; return nil }
func (s *memorySink) Abort() error                { s.aborted = true; return nil }

func newOptions(base, dbPath string) Options {
	return Options{
		Base:         base,
		DatabasePath: dbPath,
		BackupID:     "run1",
		Password:     "password123",
		Logger:       testLogger(),
		Crypto:       config.DefaultCryptoParameters(),
		Pipeline:     config.DefaultPipelineParameters(),
	}
}

func TestRunFirstPassArchivesEverything(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "b.txt"), []byte("beta"), 0o644))

	dbPath := filepath.Join(t.TempDir(), "db.msgpack")

	sinks := make(map[string]*memorySink)
	newSink := func(ext string) (sink.Sink, error) {
		s := &memorySink{}
		sinks[ext] = s
		return s, nil
	}

	opts := newOptions(base, dbPath)
	result, err := Run(opts, newSink)
	require.NoError(t, err)

	assert.True(t, result.ArchiveWritten)
	assert.Len(t, result.New, 2)
	assert.Empty(t, result.Deleted)

	assert.True(t, sinks[config.ArchiveExtension].commited)
	assert.True(t, sinks[config.MetaIndexExtension].commited)

	_, err = os.Stat(dbPath)
	require.NoError(t, err)
}

func TestRunSecondPassSkipsArchiveWhenUnchanged(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("alpha"), 0o644))

	dbPath := filepath.Join(t.TempDir(), "db.msgpack")
	newSink := func(ext string) (sink.Sink, error) { return &memorySink{}, nil }

	_, err := Run(newOptions(base, dbPath), newSink)
	require.NoError(t, err)

	result, err := Run(newOptions(base, dbPath), newSink)
	require.NoError(t, err)

	assert.False(t, result.ArchiveWritten)
	assert.Empty(t, result.New)
	assert.Empty(t, result.Altered)
}

func TestRunFullyUnchangedOpensNoSinks(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("alpha"), 0o644))

	dbPath := filepath.Join(t.TempDir(), "db.msgpack")

	opened := 0
	newSink := func(ext string) (sink.Sink, error) {
		opened++
		return &memorySink{}, nil
	}

	_, err := Run(newOptions(base, dbPath), newSink)
	require.NoError(t, err)
	require.Equal(t, 2, opened)

	dbBefore, err := os.ReadFile(dbPath)
	require.NoError(t, err)

	result, err := Run(newOptions(base, dbPath), newSink)
	require.NoError(t, err)

	assert.False(t, result.ArchiveWritten)
	assert.Equal(t, 2, opened, "an unchanged run must not open any sinks")

	dbAfter, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, dbBefore, dbAfter)
}

func TestRunDetectsUpdatedAndDeletedFiles(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "b.txt"), []byte("beta"), 0o644))

	dbPath := filepath.Join(t.TempDir(), "db.msgpack")
	newSink := func(ext string) (sink.Sink, error) { return &memorySink{}, nil }

	_, err := Run(newOptions(base, dbPath), newSink)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("alpha changed"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(base, "b.txt")))

	result, err := Run(newOptions(base, dbPath), newSink)
	require.NoError(t, err)

	assert.True(t, result.ArchiveWritten)
	assert.Contains(t, result.Altered, fingerprint.RelPath("a.txt"))
	assert.Contains(t, result.Deleted, fingerprint.RelPath("b.txt"))
	assert.Empty(t, result.New)
}

func TestRunPropagatesSinkFailureAndAbortsArchive(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("alpha"), 0o644))

	dbPath := filepath.Join(t.TempDir(), "db.msgpack")

	archiveSink := &memorySink{}
	newSink := func(ext string) (sink.Sink, error) {
		if ext == config.ArchiveExtension {
			return &failingSink{memorySink: archiveSink}, nil
		}
		return &memorySink{}, nil
	}

	_, err := Run(newOptions(base, dbPath), newSink)
	require.Error(t, err)
	assert.True(t, archiveSink.aborted)
}

// failingSink fails every Write so the archive pipeline's encryption stage
// observes an I/O error partway through, exercising the Abort path.
type failingSink struct {
	*memorySink
}

func (s *failingSink) Write(p []byte) (int, error) {
	return 0, os.ErrClosed
}

func TestSelectInOrderDedupesAndPreservesOrder(t *testing.T) {
	order := []fingerprint.RelPath{"a", "b", "c", "d"}
	got := selectInOrder(order, []fingerprint.RelPath{"c", "a"}, []fingerprint.RelPath{"a", "d"})
	assert.Equal(t, []fingerprint.RelPath{"a", "c", "d"}, got)
}
