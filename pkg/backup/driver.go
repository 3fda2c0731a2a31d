// Package backup ties together the fingerprint database, the scanner, the
// transform pipeline, and the storage sinks into the single control flow a
// backup run follows: load (or create) the database, scan the tree, diff it
// against the stored tables, stream the selected files through the
// archive/compress/encrypt pipeline into a sink, write the metadata index,
// and only then persist the updated database.
package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mbr/ministryofbackup/pkg/archive"
	"github.com/mbr/ministryofbackup/pkg/compress"
	"github.com/mbr/ministryofbackup/pkg/config"
	"github.com/mbr/ministryofbackup/pkg/cryptoenvelope"
	"github.com/mbr/ministryofbackup/pkg/fingerprint"
	"github.com/mbr/ministryofbackup/pkg/logging"
	"github.com/mbr/ministryofbackup/pkg/metaindex"
	"github.com/mbr/ministryofbackup/pkg/pipeline"
	"github.com/mbr/ministryofbackup/pkg/sink"
)

// Options configures a single backup run.
type Options struct {
	// Base is the directory tree being backed up.
	Base string
	// DatabasePath is where the fingerprint database is read from and
	// (after a successful run) rewritten to.
	DatabasePath string
	// BackupID names this run's artifacts, independent of the storage
	// backend (a local path component or a remote object key suffix).
	BackupID string
	// Password derives the encryption key for both the archive and the
	// metadata index.
	Password string
	Logger   *logging.Logger
	Crypto   config.CryptoParameters
	Pipeline config.PipelineParameters
	// Progress, if non-nil, is invoked as content prints are recomputed
	// during the expensive half of the diff.
	Progress fingerprint.ProgressFunc
}

// Result summarizes the outcome of a run.
type Result struct {
	New            []fingerprint.RelPath
	Updated        []fingerprint.RelPath
	Altered        []fingerprint.RelPath
	Deleted        []fingerprint.RelPath
	ArchiveWritten bool
}

// SinkFactory opens a sink for one of this run's two artifacts (the archive
// or the metadata index), distinguished by the extension the caller passes
// (config.ArchiveExtension or config.MetaIndexExtension).
type SinkFactory func(ext string) (sink.Sink, error)

// LoadOrCreateDatabase loads the database at path, or returns a fresh empty
// one rooted at base if no file exists there yet.
func LoadOrCreateDatabase(base, path string, logger *logging.Logger) (*fingerprint.Database, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fingerprint.NewDatabase(base, logger), nil
	} else if err != nil {
		return nil, fmt.Errorf("unable to read database %s: %w", path, err)
	}
	return fingerprint.Load(base, data, logger)
}

// Run executes one full backup cycle.
func Run(opts Options, newSink SinkFactory) (*Result, error) {
	logger := opts.Logger

	db, err := LoadOrCreateDatabase(opts.Base, opts.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("unable to load database: %w", err)
	}

	inv, err := fingerprint.Scan(opts.Base, logger)
	if err != nil {
		return nil, fmt.Errorf("unable to scan %s: %w", opts.Base, err)
	}

	newFiles, updated, err := db.Diff(inv)
	if err != nil {
		return nil, fmt.Errorf("unable to diff inventory: %w", err)
	}

	altered, err := db.Altered(inv, updated, opts.Progress)
	if err != nil {
		return nil, fmt.Errorf("unable to determine altered content: %w", err)
	}

	deleted := db.Deletions(inv)
	selected := selectInOrder(inv.Order, newFiles, altered)

	result := &Result{
		New:     newFiles,
		Updated: updated,
		Altered: altered,
		Deleted: deleted,
	}

	if len(selected) == 0 && len(updated) == 0 && len(deleted) == 0 {
		logger.Infof("nothing changed since the previous run; no artifacts produced")
		return result, nil
	}

	if len(selected) == 0 {
		logger.Infof("no new or altered files; skipping archive for this run")
	} else {
		if err := writeArchive(opts, inv, selected, newSink); err != nil {
			return nil, err
		}
		result.ArchiveWritten = true
	}

	if err := db.UpdateMeta(inv); err != nil {
		return nil, fmt.Errorf("unable to update database tables: %w", err)
	}

	if err := writeMetaIndex(opts, db, selected, deleted, newSink); err != nil {
		return nil, err
	}

	if err := fingerprint.PersistAtomic(opts.DatabasePath, db); err != nil {
		return nil, fmt.Errorf("unable to persist database: %w", err)
	}

	return result, nil
}

// selectInOrder returns the RelPaths in order that appear in at least one of
// sets, preserving order's relative ordering.
func selectInOrder(order []fingerprint.RelPath, sets ...[]fingerprint.RelPath) []fingerprint.RelPath {
	want := make(map[fingerprint.RelPath]bool)
	for _, set := range sets {
		for _, rel := range set {
			want[rel] = true
		}
	}
	out := make([]fingerprint.RelPath, 0, len(want))
	for _, rel := range order {
		if want[rel] {
			out = append(out, rel)
		}
	}
	return out
}

// writeArchive streams the selected files through the tar/compress/encrypt
// pipeline into a freshly opened archive sink, committing it on success and
// aborting (removing the partial artifact) on any failure.
func writeArchive(opts Options, inv *fingerprint.Inventory, selected []fingerprint.RelPath, newSink SinkFactory) error {
	logger := opts.Logger

	artifact, err := newSink(config.ArchiveExtension)
	if err != nil {
		return fmt.Errorf("unable to open archive sink: %w", err)
	}

	tarStage := pipeline.Stage{
		Name: "archive",
		Run: func(dst io.Writer, src io.Reader) error {
			return archive.Write(dst, inv, selected, logger.Sublogger("archive"))
		},
	}
	compressStage := pipeline.Stage{
		Name: "compress",
		Run: func(dst io.Writer, src io.Reader) error {
			return compress.Compress(dst, src, opts.Pipeline, logger.Sublogger("compress"))
		},
	}
	encryptStage := pipeline.Stage{
		Name: "encrypt",
		Run: func(dst io.Writer, src io.Reader) error {
			return cryptoenvelope.Encrypt(dst, src, opts.Password, opts.Crypto, opts.Pipeline.BufferSize, logger.Sublogger("encrypt"))
		},
	}

	// The tar stage produces bytes rather than consuming any, so the
	// pipeline's overall source is an empty reader; the stage ignores it.
	err = pipeline.Run(strings.NewReader(""), artifact, []pipeline.Stage{tarStage, compressStage, encryptStage}, logger)
	if err != nil {
		if abortErr := artifact.Abort(); abortErr != nil {
			logger.Warnf("unable to clean up partial archive: %v", abortErr)
		}
		return fmt.Errorf("archive pipeline failed: %w", err)
	}

	if err := artifact.Commit(); err != nil {
		return fmt.Errorf("unable to commit archive: %w", err)
	}
	return nil
}

// writeMetaIndex encodes the post-run database plus the archived/deleted
// RelPath sets, then streams that payload through the compress/encrypt
// pipeline into its own sink.
func writeMetaIndex(opts Options, db *fingerprint.Database, archived, deleted []fingerprint.RelPath, newSink SinkFactory) error {
	logger := opts.Logger

	payload, err := metaindex.Encode(db, archived, deleted)
	if err != nil {
		return fmt.Errorf("unable to encode metadata index: %w", err)
	}

	artifact, err := newSink(config.MetaIndexExtension)
	if err != nil {
		return fmt.Errorf("unable to open metadata index sink: %w", err)
	}

	compressStage := pipeline.Stage{
		Name: "compress",
		Run: func(dst io.Writer, src io.Reader) error {
			return compress.Compress(dst, src, opts.Pipeline, logger.Sublogger("compress"))
		},
	}
	encryptStage := pipeline.Stage{
		Name: "encrypt",
		Run: func(dst io.Writer, src io.Reader) error {
			return cryptoenvelope.Encrypt(dst, src, opts.Password, opts.Crypto, opts.Pipeline.BufferSize, logger.Sublogger("encrypt"))
		},
	}

	err = pipeline.Run(bytes.NewReader(payload), artifact, []pipeline.Stage{compressStage, encryptStage}, logger)
	if err != nil {
		if abortErr := artifact.Abort(); abortErr != nil {
			logger.Warnf("unable to clean up partial metadata index: %v", abortErr)
		}
		return fmt.Errorf("metadata index pipeline failed: %w", err)
	}

	if err := artifact.Commit(); err != nil {
		return fmt.Errorf("unable to commit metadata index: %w", err)
	}
	return nil
}
