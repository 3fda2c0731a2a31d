package fingerprint

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mbr/ministryofbackup/pkg/logging"
)

// CorruptDatabase indicates that the on-disk fingerprint blob failed to
// deserialize into the expected two-table structure.
type CorruptDatabase struct {
	// Cause is the underlying deserialization error.
	Cause error
}

func (e *CorruptDatabase) Error() string {
	return fmt.Sprintf("corrupt fingerprint database: %v", e.Cause)
}

func (e *CorruptDatabase) Unwrap() error {
	return e.Cause
}

// databaseBlob is the on-disk message-packed representation: exactly two
// top-level keys mapping RelPath (string) to a 20-byte SHA-1 digest
type databaseBlob struct {
	MetaPrints    map[string][]byte `msgpack:"meta_prints"`
	ContentPrints map[string][]byte `msgpack:"content_prints"`
}

// Database is the persistent mapping RelPath -> (meta_print, content_print)
// used to detect changes between runs. It owns the
// absolute base path at runtime but never persists it, so that databases are
// base-relocatable.
type Database struct {
	base string

	metaPrints    map[RelPath][]byte
	contentPrints map[RelPath][]byte

	logger *logging.Logger
}

// NewDatabase constructs an empty database rooted at base.
func NewDatabase(base string, logger *logging.Logger) *Database {
	return &Database{
		base:          base,
		metaPrints:    make(map[RelPath][]byte),
		contentPrints: make(map[RelPath][]byte),
		logger:        logger,
	}
}

// Load deserializes a database from its on-disk msgpack blob. An empty or
// absent blob should be represented by the caller constructing a fresh
// database with NewDatabase instead of calling Load.
func Load(base string, data []byte, logger *logging.Logger) (*Database, error) {
	var blob databaseBlob
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		return nil, &CorruptDatabase{Cause: err}
	}
	if blob.MetaPrints == nil || blob.ContentPrints == nil {
		return nil, &CorruptDatabase{Cause: fmt.Errorf("missing meta_prints/content_prints table")}
	}
	if len(blob.MetaPrints) != len(blob.ContentPrints) {
		return nil, &CorruptDatabase{Cause: fmt.Errorf("meta_prints and content_prints key sets differ in size")}
	}

	db := NewDatabase(base, logger)
	for k, v := range blob.MetaPrints {
		db.metaPrints[RelPath(k)] = v
	}
	for k, v := range blob.ContentPrints {
		if _, ok := db.metaPrints[RelPath(k)]; !ok {
			return nil, &CorruptDatabase{Cause: fmt.Errorf("content_prints key %q missing from meta_prints", k)}
		}
		db.contentPrints[RelPath(k)] = v
	}
	return db, nil
}

// Dump serializes the database's current state as a single msgpack
// structure and writes it to sink.
func (db *Database) Dump(sink io.Writer) error {
	blob := databaseBlob{
		MetaPrints:    make(map[string][]byte, len(db.metaPrints)),
		ContentPrints: make(map[string][]byte, len(db.contentPrints)),
	}
	for k, v := range db.metaPrints {
		blob.MetaPrints[string(k)] = v
	}
	for k, v := range db.contentPrints {
		blob.ContentPrints[string(k)] = v
	}

	data, err := msgpack.Marshal(&blob)
	if err != nil {
		return fmt.Errorf("unable to marshal database: %w", err)
	}
	if _, err := sink.Write(data); err != nil {
		return fmt.Errorf("unable to write database: %w", err)
	}
	return nil
}

// Bytes serializes the database to a byte slice, a convenience wrapper
// around Dump used by callers that need the blob in memory (e.g. before
// feeding it into the encryption stage for the metadata index artifact).
func (db *Database) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := db.Dump(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Empty reports whether the stored table has no entries, which triggers the
// diff engine's first-run shortcut.
func (db *Database) Empty() bool {
	return len(db.metaPrints) == 0
}

// Diff partitions the current inventory's files against the stored tables.
// new holds RelPaths present in current but not stored; updated holds
// RelPaths present in both whose stored meta_print differs from the freshly
// computed one. If the stored table is empty, every current file is
// returned as new (the first-run shortcut).
func (db *Database) Diff(inv *Inventory) (newFiles []RelPath, updated []RelPath, err error) {
	if db.Empty() {
		all := make([]RelPath, len(inv.Order))
		copy(all, inv.Order)
		return all, nil, nil
	}

	for _, rel := range inv.Order {
		entry := inv.Files[rel]
		meta, err := entry.MetaPrint()
		if err != nil {
			return nil, nil, err
		}
		stored, ok := db.metaPrints[rel]
		if !ok {
			newFiles = append(newFiles, rel)
			continue
		}
		if !bytes.Equal(stored, meta) {
			updated = append(updated, rel)
		}
	}
	return newFiles, updated, nil
}

// Deletions returns the RelPaths present in the stored table but absent from
// the current inventory.
func (db *Database) Deletions(inv *Inventory) []RelPath {
	var deleted []RelPath
	for rel := range db.metaPrints {
		if _, ok := inv.Files[rel]; !ok {
			deleted = append(deleted, rel)
		}
	}
	return deleted
}

// ProgressFunc is invoked with the cumulative number of content bytes
// inspected so far by Altered.
type ProgressFunc func(bytesInspected uint64)

// Altered rehashes the bytes of each rel in updated and returns those whose
// digest differs from the stored one. It is the expensive half of the diff
// engine: only files whose metadata changed are considered, and among those
// only ones whose bytes actually changed are reported.
//
// The rehash deliberately bypasses FileEntry's memoized content print. The
// memo must still be unset when the archive framer streams these files, so
// that the digest it harvests there, from the exact bytes fed into the tar
// body, is what UpdateMeta later records.
func (db *Database) Altered(inv *Inventory, updated []RelPath, progress ProgressFunc) ([]RelPath, error) {
	var altered []RelPath
	var inspected uint64

	for _, rel := range updated {
		entry, ok := inv.Files[rel]
		if !ok {
			return nil, fmt.Errorf("updated path %s not present in inventory", rel)
		}

		stored, haveStored := db.contentPrints[rel]
		current, err := entry.RehashContent()
		if err != nil {
			return nil, err
		}

		if !haveStored || !bytes.Equal(stored, current) {
			altered = append(altered, rel)
		}

		if progress != nil {
			size, err := entry.FileSize()
			if err != nil {
				return nil, err
			}
			inspected += uint64(size)
			progress(inspected)
		}
	}

	return altered, nil
}

// SizesOf sums the filesizes of the given RelPaths, used for progress-bar
// maxima.
func (db *Database) SizesOf(inv *Inventory, fileset []RelPath) (uint64, error) {
	var total uint64
	for _, rel := range fileset {
		entry, ok := inv.Files[rel]
		if !ok {
			return 0, fmt.Errorf("path %s not present in inventory", rel)
		}
		size, err := entry.FileSize()
		if err != nil {
			return 0, err
		}
		total += uint64(size)
	}
	return total, nil
}

// UpdateMeta rebuilds both stored tables from the current inventory,
// carrying content_print over unchanged whenever meta_print is unchanged
// and re-deriving it otherwise. It must be called exactly once, after the
// archive for this run has been durably committed.
func (db *Database) UpdateMeta(inv *Inventory) error {
	newMeta := make(map[RelPath][]byte, len(inv.Files))
	newContent := make(map[RelPath][]byte, len(inv.Files))

	for _, rel := range inv.Order {
		entry := inv.Files[rel]
		meta, err := entry.MetaPrint()
		if err != nil {
			return err
		}
		newMeta[rel] = meta

		if oldMeta, ok := db.metaPrints[rel]; ok && bytes.Equal(oldMeta, meta) {
			if content, ok := db.contentPrints[rel]; ok {
				newContent[rel] = content
				continue
			}
		}

		content, err := entry.ContentPrint()
		if err != nil {
			return err
		}
		newContent[rel] = content
	}

	db.metaPrints = newMeta
	db.contentPrints = newContent
	return nil
}

// ContentPrint returns the stored content print for rel, if any. It is
// exposed primarily for tests and for the metadata index writer.
func (db *Database) ContentPrint(rel RelPath) ([]byte, bool) {
	v, ok := db.contentPrints[rel]
	return v, ok
}

// Len returns the number of entries currently stored.
func (db *Database) Len() int {
	return len(db.metaPrints)
}

// Keys returns the stored RelPaths in unspecified order.
func (db *Database) Keys() []RelPath {
	keys := make([]RelPath, 0, len(db.metaPrints))
	for k := range db.metaPrints {
		keys = append(keys, k)
	}
	return keys
}
