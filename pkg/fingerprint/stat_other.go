//go:build !linux

package fingerprint

import "errors"

// lstatSnapshot is unimplemented outside Linux: the canonical stat format is
// POSIX-specific and this engine does not currently target other platforms.
// A real port would add a platform-specific snapshot extraction here.
func lstatSnapshot(path string) (StatSnapshot, error) {
	return StatSnapshot{}, errors.New("fingerprint: unsupported platform")
}

func (s StatSnapshot) isRegular() bool {
	return false
}

func (s StatSnapshot) isSymlink() bool {
	return false
}
