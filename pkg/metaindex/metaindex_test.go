package metaindex

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbr/ministryofbackup/pkg/fingerprint"
	"github.com/mbr/ministryofbackup/pkg/logging"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	db := fingerprint.NewDatabase("/base", logging.New(logging.LevelError))

	archived := []fingerprint.RelPath{"a.txt", "sub/b.txt"}
	deleted := []fingerprint.RelPath{"gone.txt"}

	data, err := Encode(db, archived, deleted)
	require.NoError(t, err)

	payload, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, payload.Archived)
	assert.Equal(t, []string{"gone.txt"}, payload.Deleted)
	assert.NotEmpty(t, payload.Database)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}

func TestReaderExposesEncodedBytes(t *testing.T) {
	db := fingerprint.NewDatabase("/base", logging.New(logging.LevelError))
	data, err := Encode(db, nil, nil)
	require.NoError(t, err)

	r := Reader(data)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
