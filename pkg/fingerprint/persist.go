package fingerprint

import (
	"fmt"
	"os"
	"path/filepath"
)

// persistTemporaryNamePrefix is the prefix used for the intermediate
// temporary file in atomic database writes.
const persistTemporaryNamePrefix = ".mob-db-"

// PersistAtomic writes db to path by serializing it to a temporary file in
// the same directory and renaming it into place, so a crash mid-write never
// leaves a half-written database behind: create temp, write, close, rename.
func PersistAtomic(path string, db *Database) error {
	dir := filepath.Dir(path)
	temporary, err := os.CreateTemp(dir, persistTemporaryNamePrefix)
	if err != nil {
		return fmt.Errorf("unable to create temporary database file: %w", err)
	}
	tempName := temporary.Name()

	if err := db.Dump(temporary); err != nil {
		temporary.Close()
		os.Remove(tempName)
		return fmt.Errorf("unable to write temporary database file: %w", err)
	}

	if err := temporary.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("unable to close temporary database file: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("unable to rename temporary database file into place: %w", err)
	}

	return nil
}
