package sink

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeObjectStore is an in-memory ObjectStoreClient used to exercise
// RemoteObjectSink without a real network dependency. failUploadsUntil, if
// positive, makes UploadPart fail that many times per part before
// succeeding, so retry behavior can be exercised deterministically.
type fakeObjectStore struct {
	mu sync.Mutex

	puts       map[string][]byte
	uploads    map[string]map[int][]byte
	completed  map[string]bool
	aborted    map[string]bool
	nextUpload int

	failUploadsUntil int
	attempts         map[string]int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		puts:      make(map[string][]byte),
		uploads:   make(map[string]map[int][]byte),
		completed: make(map[string]bool),
		aborted:   make(map[string]bool),
		attempts:  make(map[string]int),
	}
}

func (f *fakeObjectStore) PutObject(ctx context.Context, bucket, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := make([]byte, len(body))
	copy(data, body)
	f.puts[key] = data
	return nil
}

func (f *fakeObjectStore) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUpload++
	uploadID := "upload-" + string(rune('0'+f.nextUpload))
	f.uploads[uploadID] = make(map[int][]byte)
	return uploadID, nil
}

func (f *fakeObjectStore) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	attemptKey := uploadID + ":" + string(rune('0'+partNumber))
	f.attempts[attemptKey]++
	if f.attempts[attemptKey] <= f.failUploadsUntil {
		return "", errors.New("transient upload failure")
	}

	data := make([]byte, len(body))
	copy(data, body)
	f.uploads[uploadID][partNumber] = data
	return "etag-" + string(rune('0'+partNumber)), nil
}

func (f *fakeObjectStore) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []Part) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[uploadID] = true
	return nil
}

func (f *fakeObjectStore) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted[uploadID] = true
	return nil
}

func (f *fakeObjectStore) assembled(uploadID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for i := 1; i <= len(f.uploads[uploadID]); i++ {
		out = append(out, f.uploads[uploadID][i]...)
	}
	return out
}

func TestRemoteObjectSinkSinglePutBelowThreshold(t *testing.T) {
	client := newFakeObjectStore()
	s := NewRemoteObjectSink(context.Background(), client, "bucket", "prefix/", "backup1", ".tar.xz.mob", 0, testLogger())
	s.partSize = 1024

	_, err := s.Write([]byte("small artifact"))
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	assert.Equal(t, "small artifact", string(client.puts["prefix/backup1.tar.xz.mob"]))
	assert.Empty(t, client.completed)
}

func TestRemoteObjectSinkMultipartAboveThreshold(t *testing.T) {
	client := newFakeObjectStore()
	s := NewRemoteObjectSink(context.Background(), client, "bucket", "prefix/", "backup1", ".tar.xz.mob", 0, testLogger())
	s.partSize = 8

	payload := bytes.Repeat([]byte("x"), 30)
	_, err := s.Write(payload)
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	assert.True(t, s.multipart)
	assert.True(t, client.completed[s.uploadID])
	assert.Equal(t, payload, client.assembled(s.uploadID))
}

func TestRemoteObjectSinkRetriesTransientFailures(t *testing.T) {
	client := newFakeObjectStore()
	client.failUploadsUntil = 2

	s := NewRemoteObjectSink(context.Background(), client, "bucket", "prefix/", "backup1", ".tar.xz.mob", 0, testLogger())
	s.partSize = 4
	s.retries = 5

	_, err := s.Write(bytes.Repeat([]byte("y"), 4))
	require.NoError(t, err)
	require.NoError(t, s.Commit())
	assert.True(t, client.completed[s.uploadID])
}

func TestRemoteObjectSinkExhaustsRetriesAndFails(t *testing.T) {
	client := newFakeObjectStore()
	client.failUploadsUntil = 100

	s := NewRemoteObjectSink(context.Background(), client, "bucket", "prefix/", "backup1", ".tar.xz.mob", 0, testLogger())
	s.partSize = 4
	s.retries = 3

	_, err := s.Write(bytes.Repeat([]byte("z"), 4))
	require.Error(t, err)
	var sinkErr *SinkIOError
	assert.ErrorAs(t, err, &sinkErr)
}

func TestRemoteObjectSinkAbortCallsAbortMultipartUpload(t *testing.T) {
	client := newFakeObjectStore()
	s := NewRemoteObjectSink(context.Background(), client, "bucket", "prefix/", "backup1", ".tar.xz.mob", 0, testLogger())
	s.partSize = 4

	_, err := s.Write(bytes.Repeat([]byte("a"), 4))
	require.NoError(t, err)
	require.NoError(t, s.Abort())

	assert.True(t, client.aborted[s.uploadID])
}

func TestRemoteObjectSinkAbortWithoutMultipartIsNoop(t *testing.T) {
	client := newFakeObjectStore()
	s := NewRemoteObjectSink(context.Background(), client, "bucket", "prefix/", "backup1", ".tar.xz.mob", 0, testLogger())
	s.partSize = 1024

	_, err := s.Write([]byte("never reaches threshold"))
	require.NoError(t, err)
	require.NoError(t, s.Abort())
	assert.Empty(t, client.aborted)
}

func TestComputePartSizeUsesSizeHint(t *testing.T) {
	assert.Equal(t, 5*1024*1024, computePartSize(0))
	assert.Equal(t, 5*1024*1024, computePartSize(1024))
	assert.Greater(t, computePartSize(100*1024*1024*1024), 5*1024*1024)
}
