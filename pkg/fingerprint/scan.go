package fingerprint

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/mbr/ministryofbackup/pkg/logging"
)

// Inventory is the result of walking a base directory once: every regular
// file and symbolic link below it, plus the directories needed to make
// empty directories and tar metadata reproducible.
type Inventory struct {
	// Files maps RelPath to FileEntry for every regular file or symlink.
	Files map[RelPath]*FileEntry
	// Dirs maps RelPath to DirEntry for every directory, including the base
	// itself (as the empty RelPath).
	Dirs map[RelPath]*DirEntry
	// Order is the deterministic (sorted) order in which Files were
	// discovered, used downstream to build reproducible new/altered lists.
	Order []RelPath
}

// Scan walks base once and materializes an Inventory. It performs no
// hashing — FileEntry lstat and digests are deferred to first use. Other
// file types (devices, sockets, FIFOs) are skipped with a logged warning
// rather than aborting the run.
func Scan(base string, logger *logging.Logger) (*Inventory, error) {
	inv := &Inventory{
		Files: make(map[RelPath]*FileEntry),
		Dirs:  make(map[RelPath]*DirEntry),
	}

	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("unable to walk %s: %w", path, err)
		}

		rel := RelPath("")
		if path != base {
			rel = NewRelPath(base, path)
		}

		if d.IsDir() {
			inv.Dirs[rel] = &DirEntry{Rel: rel}
			return nil
		}

		isSymlink := d.Type()&fs.ModeSymlink != 0
		if !isSymlink && !d.Type().IsRegular() {
			logger.Warnf("skipping unsupported file type at %s", path)
			return nil
		}

		entry := NewFileEntry(path, rel, isSymlink, logger)
		inv.Files[rel] = entry

		parentDir := filepath.ToSlash(filepath.Dir(rel.String()))
		if parentDir == "." {
			parentDir = ""
		}
		if parent, ok := inv.Dirs[RelPath(parentDir)]; ok {
			parent.Children = append(parent.Children, entry)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.Order = make([]RelPath, 0, len(inv.Files))
	for rel := range inv.Files {
		inv.Order = append(inv.Order, rel)
	}
	sort.Slice(inv.Order, func(i, j int) bool { return inv.Order[i] < inv.Order[j] })

	return inv, nil
}
