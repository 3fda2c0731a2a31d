// Package stream provides small io.Reader/io.Writer wrappers used to thread
// auxiliary bookkeeping (hashing, in this case) through the backup pipeline
// without the stages themselves needing to know about it. The archive framer
// needs to hash bytes as they are read out of a file and fed into the tar
// body, rather than as they're written to a sink, hence a reader-side wrapper
// rather than a writer-side one.
package stream

import (
	"hash"
	"io"
)

// HashingReader wraps an io.Reader and tees every byte successfully read
// into an accumulator hash. Reads are passed straight through, but once a
// zero-length read signals EOF the accumulated digest becomes available via
// Sum. Requesting the digest before EOF has been observed is a contract
// violation; callers must check EOFReached first.
type HashingReader struct {
	// reader is the underlying source.
	reader io.Reader
	// hasher accumulates the digest of every chunk read so far.
	hasher hash.Hash
	// eofReached latches true once the underlying reader has returned
	// io.EOF or a zero-length read (with or without an error).
	eofReached bool
}

// NewHashingReader wraps reader in a HashingReader that accumulates its
// digest using hasher. hasher must be a freshly-initialized hash.Hash.
func NewHashingReader(reader io.Reader, hasher hash.Hash) *HashingReader {
	return &HashingReader{reader: reader, hasher: hasher}
}

// Read implements io.Reader. It forwards to the underlying reader and feeds
// every non-empty chunk to the hash accumulator. A read that returns zero
// bytes (whether or not accompanied by io.EOF) latches EOFReached.
func (r *HashingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		// Write to a hash.Hash never fails.
		r.hasher.Write(p[:n])
	}
	if n == 0 {
		r.eofReached = true
	}
	if err == io.EOF {
		r.eofReached = true
	}
	return n, err
}

// EOFReached reports whether this reader has observed the end of its
// underlying stream. Sum must not be called until this is true.
func (r *HashingReader) EOFReached() bool {
	return r.eofReached
}

// Sum returns the accumulated digest. It panics if EOF has not yet been
// observed, since a partial digest is never a valid content print; callers
// must check EOFReached (or guarantee EOF some other way, e.g. by exhausting
// the reader with io.Copy) before calling this.
func (r *HashingReader) Sum() []byte {
	if !r.eofReached {
		panic("stream: Sum called on HashingReader before EOF was observed")
	}
	return r.hasher.Sum(nil)
}
