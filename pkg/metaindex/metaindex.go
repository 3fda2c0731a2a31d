// Package metaindex implements the metadata index artifact: an opaque
// compressed-and-encrypted serialization of the database plus a listing of
// archived and deleted RelPaths for the run. It is produced by the same
// compress+encrypt stages as the primary archive.
package metaindex

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mbr/ministryofbackup/pkg/fingerprint"
)

// Payload is the plaintext content of a metadata index artifact: the
// post-run fingerprint database blob, plus the RelPaths that were archived
// during this run (i.e. new ++ altered).
type Payload struct {
	// Database is the serialized fingerprint database as of
	// the end of this run.
	Database []byte `msgpack:"database"`
	// Archived lists, in the order they were written to the archive, every
	// RelPath whose content was included in this run's archive artifact.
	Archived []string `msgpack:"archived"`
	// Deleted lists the RelPaths pruned from the database this run.
	Deleted []string `msgpack:"deleted"`
}

// Encode serializes a Payload for the archived/deleted RelPath sets and the
// current database state.
func Encode(db *fingerprint.Database, archived, deleted []fingerprint.RelPath) ([]byte, error) {
	dbBytes, err := db.Bytes()
	if err != nil {
		return nil, fmt.Errorf("unable to serialize database for metadata index: %w", err)
	}

	payload := Payload{
		Database: dbBytes,
		Archived: relPathsToStrings(archived),
		Deleted:  relPathsToStrings(deleted),
	}

	data, err := msgpack.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal metadata index: %w", err)
	}
	return data, nil
}

// Decode is the restore-side counterpart of Encode.
func Decode(data []byte) (*Payload, error) {
	var payload Payload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unable to unmarshal metadata index: %w", err)
	}
	return &payload, nil
}

func relPathsToStrings(rels []fingerprint.RelPath) []string {
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.String()
	}
	return out
}

// Reader returns an io.Reader-compatible source over an encoded payload, a
// small convenience for feeding the metadata index bytes into the
// compress/encrypt pipeline the same way the archive artifact does.
func Reader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
