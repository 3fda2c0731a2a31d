package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mbr/ministryofbackup/pkg/logging"
)

// LocalSink writes an artifact to a local path using exclusive-create
// semantics: the create fails if the destination already exists, so a
// collision can never silently overwrite a prior backup, and a failure
// partway through is atomically cleaned up by Abort.
type LocalSink struct {
	path   string
	file   *os.File
	logger *logging.Logger
}

// NewLocalSink creates "<basePath>/<backupID><ext>" for exclusive writing.
func NewLocalSink(basePath, backupID, ext string, logger *logging.Logger) (*LocalSink, error) {
	path := filepath.Join(basePath, backupID+ext)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, &SinkIOError{Artifact: path, Cause: err}
	}
	logger.Debugf("opened local sink %s", path)
	return &LocalSink{path: path, file: file, logger: logger}, nil
}

// Write implements io.Writer.
func (s *LocalSink) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// Commit closes the underlying file, leaving the artifact in place.
func (s *LocalSink) Commit() error {
	if err := s.file.Close(); err != nil {
		return &SinkIOError{Artifact: s.path, Cause: err}
	}
	return nil
}

// Abort closes and removes the partially written file.
func (s *LocalSink) Abort() error {
	closeErr := s.file.Close()
	removeErr := os.Remove(s.path)
	if removeErr != nil {
		return &SinkIOError{Artifact: s.path, Cause: fmt.Errorf("unable to remove partial artifact: %w", removeErr)}
	}
	if closeErr != nil {
		return &SinkIOError{Artifact: s.path, Cause: closeErr}
	}
	return nil
}
