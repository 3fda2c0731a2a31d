package fingerprint

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"

	"github.com/mbr/ministryofbackup/pkg/config"
	"github.com/mbr/ministryofbackup/pkg/logging"
	"github.com/mbr/ministryofbackup/pkg/stream"
)

// UnsupportedFileType indicates that the scanner or a FileEntry encountered a
// filesystem entry that is neither a regular file nor a symbolic link.
type UnsupportedFileType struct {
	// Path is the absolute path of the offending entry.
	Path string
}

func (e *UnsupportedFileType) Error() string {
	return fmt.Sprintf("unsupported file type at %s", e.Path)
}

// StatSnapshot captures the subset of lstat(2) fields that feed the meta
// print, in a fixed field order for the canonical stat serialization:
// st_mode st_ino st_dev st_nlink st_uid st_gid st_size st_atime st_mtime
// st_ctime.
type StatSnapshot struct {
	Mode  uint32
	Ino   uint64
	Dev   uint64
	Nlink uint64
	Uid   uint32
	Gid   uint32
	Size  int64
	Atime int64
	Mtime int64
	Ctime int64
}

// canonicalString renders the snapshot using a fixed field order and
// single-space separator. Any change to field order or separator invalidates
// every existing on-disk database, so this must never be "cleaned up"
// independently of a format version bump.
func (s StatSnapshot) canonicalString() string {
	return fmt.Sprintf("%d %d %d %d %d %d %d %d %d %d",
		s.Mode, s.Ino, s.Dev, s.Nlink, s.Uid, s.Gid, s.Size, s.Atime, s.Mtime, s.Ctime)
}

// FileEntry represents one regular file or symbolic link below the scan
// base. It exposes three derivations from a single lstat, each computed at
// most once and memoized.
type FileEntry struct {
	// path is the absolute location of the entry on disk.
	path string
	// Rel is the canonical relative path, and the key used everywhere
	// outside the scanner.
	Rel RelPath
	// IsSymlink records whether this entry is a symbolic link (in which case
	// content print is always empty and no bytes are read).
	IsSymlink bool

	logger *logging.Logger

	stat        *StatSnapshot
	metaPrint   []byte
	contentSum  []byte
	haveStat    bool
	haveMeta    bool
	haveContent bool

	// hashingSource retains the HashingReader handed out by the most recent
	// OpenRead call so that ContentPrint can harvest its digest without
	// rereading the file, provided the consumer read it through to EOF.
	hashingSource *stream.HashingReader
}

// NewFileEntry constructs a FileEntry for path (absolute) with relative name
// rel. The lstat is deferred until first use.
func NewFileEntry(path string, rel RelPath, isSymlink bool, logger *logging.Logger) *FileEntry {
	return &FileEntry{path: path, Rel: rel, IsSymlink: isSymlink, logger: logger}
}

// Path returns the entry's absolute path.
func (e *FileEntry) Path() string {
	return e.path
}

// Stat returns the lstat snapshot, performing the syscall on first use and
// memoizing it thereafter.
func (e *FileEntry) Stat() (StatSnapshot, error) {
	if e.haveStat {
		return *e.stat, nil
	}
	snap, err := lstatSnapshot(e.path)
	if err != nil {
		return StatSnapshot{}, fmt.Errorf("unable to lstat %s: %w", e.path, err)
	}
	e.stat = &snap
	e.haveStat = true
	return snap, nil
}

// MetaPrint returns the SHA-1 digest over the canonical stat serialization.
// It is a pure function of the stat snapshot and is memoized.
func (e *FileEntry) MetaPrint() ([]byte, error) {
	if e.haveMeta {
		return e.metaPrint, nil
	}
	snap, err := e.Stat()
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum([]byte(snap.canonicalString()))
	e.metaPrint = sum[:]
	e.haveMeta = true
	return e.metaPrint, nil
}

// FileSize returns st_size, or 0 for symbolic links.
func (e *FileEntry) FileSize() (int64, error) {
	if e.IsSymlink {
		return 0, nil
	}
	snap, err := e.Stat()
	if err != nil {
		return 0, err
	}
	return snap.Size, nil
}

// OpenRead opens a fresh read handle on this entry's path and wraps it in a
// HashingReader, retaining a reference so that ContentPrint can later harvest
// the digest without reopening the file.
func (e *FileEntry) OpenRead() (*stream.HashingReader, io.Closer, error) {
	f, err := os.Open(e.path)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open %s: %w", e.path, err)
	}
	hr := stream.NewHashingReader(f, sha1.New())
	e.hashingSource = hr
	return hr, f, nil
}

// ContentPrint returns the SHA-1 digest of the entry's byte contents: empty
// bytes for symbolic links, UnsupportedFileType for anything that is neither
// a symlink nor a regular file, and otherwise the digest of the file's
// bytes, read in config.DefaultBufferSize chunks. It is memoized.
//
// If a prior OpenRead call's HashingReader reached EOF, that digest is
// harvested directly, giving the archive-write path a correct content_print
// without rereading. Otherwise the file is reopened and rehashed
// independently, with a warning, if a consumer requested the print after
// only a partial read.
func (e *FileEntry) ContentPrint() ([]byte, error) {
	if e.haveContent {
		return e.contentSum, nil
	}
	if e.IsSymlink {
		e.contentSum = []byte{}
		e.haveContent = true
		return e.contentSum, nil
	}

	if e.hashingSource != nil {
		if e.hashingSource.EOFReached() {
			e.contentSum = e.hashingSource.Sum()
			e.haveContent = true
			return e.contentSum, nil
		}
		e.logger.Warnf("content print for %s requested after partial read; reopening and rehashing", e.Rel)
	}

	sum, err := e.hashFromDisk()
	if err != nil {
		return nil, err
	}
	e.contentSum = sum
	e.haveContent = true
	return sum, nil
}

// RehashContent derives the content digest from the entry's bytes on disk
// without touching the memoized content print: empty bytes for symbolic
// links, otherwise a fresh read of the whole file. The diff engine uses it
// to decide whether a file's bytes changed while leaving the memo unset, so
// that the digest eventually recorded in the database is the one harvested
// from the bytes actually streamed into the archive, not this earlier read.
func (e *FileEntry) RehashContent() ([]byte, error) {
	if e.IsSymlink {
		return []byte{}, nil
	}
	return e.hashFromDisk()
}

// hashFromDisk performs the independent reopen+rehash fallback used when a
// content print is requested without having streamed the file through to
// EOF first.
func (e *FileEntry) hashFromDisk() ([]byte, error) {
	snap, err := e.Stat()
	if err != nil {
		return nil, err
	}
	if !snap.isRegular() {
		return nil, &UnsupportedFileType{Path: e.path}
	}

	f, err := os.Open(e.path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", e.path, err)
	}
	defer f.Close()

	hasher := sha1.New()
	buf := make([]byte, config.DefaultBufferSize)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", e.path, err)
	}
	return hasher.Sum(nil), nil
}

// DirEntry captures a directory's relative path and its direct FileEntry
// children. Directories are never hashed; they exist purely so that empty
// directories and tar metadata remain reproducible.
type DirEntry struct {
	// Rel is the canonical relative path of the directory.
	Rel RelPath
	// Children holds the FileEntries found directly inside this directory.
	Children []*FileEntry
}
