package sink

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mbr/ministryofbackup/pkg/config"
	"github.com/mbr/ministryofbackup/pkg/logging"
)

// Part describes one completed part of a multi-part upload, as returned by
// ObjectStoreClient.UploadPart and consumed by CompleteMultipartUpload.
type Part struct {
	Number int
	ETag   string
}

// ObjectStoreClient is the minimal surface a remote object store backend
// must provide: just enough that RemoteObjectSink can implement complete
// retry/abort semantics against any S3-compatible backend without this
// module depending on a specific cloud SDK (see DESIGN.md). A production
// binary wires a concrete client (e.g. backed by the AWS SDK) behind this
// interface; the core only needs these five calls.
type ObjectStoreClient interface {
	PutObject(ctx context.Context, bucket, key string, body []byte) error
	CreateMultipartUpload(ctx context.Context, bucket, key string) (uploadID string, err error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body []byte) (etag string, err error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []Part) error
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
}

// RemoteObjectSink accumulates writes into parts and lazily decides, once
// enough bytes have arrived, between a single put and a multi-part upload
// Until the first part fills, bytes are only buffered in
// memory; no network call happens until either the buffer reaches the part
// size or Commit is called.
type RemoteObjectSink struct {
	client ObjectStoreClient
	bucket string
	key    string
	logger *logging.Logger

	partSize int
	retries  int

	buffer bytes.Buffer

	uploadID   string
	multipart  bool
	partNumber int
	parts      []Part

	ctx context.Context
}

// NewRemoteObjectSink constructs a sink targeting bucket/prefix+backupID+ext.
// sizeHint, if positive, is used to compute a part size via a
// ceil(total/10000) policy rounded up to the 5 MiB minimum; otherwise the
// minimum part size is used and the cap of 10000 parts bounds the maximum
// streamable size to that minimum times 10000.
func NewRemoteObjectSink(ctx context.Context, client ObjectStoreClient, bucket, prefix, backupID, ext string, sizeHint int64, logger *logging.Logger) *RemoteObjectSink {
	key := prefix + backupID + ext
	return &RemoteObjectSink{
		client:     client,
		bucket:     bucket,
		key:        key,
		logger:     logger,
		partSize:   computePartSize(sizeHint),
		retries:    config.DefaultMultipartRetries,
		partNumber: 1,
		ctx:        ctx,
	}
}

func computePartSize(sizeHint int64) int {
	if sizeHint <= 0 {
		return config.MinMultipartPartSize
	}
	size := int((sizeHint + config.MaxMultipartParts - 1) / config.MaxMultipartParts)
	if size < config.MinMultipartPartSize {
		size = config.MinMultipartPartSize
	}
	return size
}

// Write implements io.Writer. It buffers bytes until a full part is
// available, at which point it flushes that part to the remote store,
// switching to multi-part mode on the first flush.
func (s *RemoteObjectSink) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		room := s.partSize - s.buffer.Len()
		chunk := p
		if len(chunk) > room {
			chunk = chunk[:room]
		}
		s.buffer.Write(chunk)
		p = p[len(chunk):]

		if s.buffer.Len() >= s.partSize {
			if err := s.flushPart(); err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

// flushPart uploads the current buffer as one part, initiating the
// multipart upload on first use.
func (s *RemoteObjectSink) flushPart() error {
	if !s.multipart {
		uploadID, err := s.client.CreateMultipartUpload(s.ctx, s.bucket, s.key)
		if err != nil {
			return &SinkIOError{Artifact: s.key, Cause: fmt.Errorf("unable to create multipart upload: %w", err)}
		}
		s.uploadID = uploadID
		s.multipart = true
		s.logger.Debugf("started multipart upload %s for %s", uploadID, s.key)
	}

	data := make([]byte, s.buffer.Len())
	copy(data, s.buffer.Bytes())
	s.buffer.Reset()

	etag, err := s.uploadPartWithRetries(data, s.partNumber)
	if err != nil {
		return err
	}
	s.parts = append(s.parts, Part{Number: s.partNumber, ETag: etag})
	s.partNumber++
	return nil
}

// uploadPartWithRetries bounds part upload attempts at s.retries, logging
// each failed attempt.
func (s *RemoteObjectSink) uploadPartWithRetries(data []byte, partNumber int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		etag, err := s.client.UploadPart(s.ctx, s.bucket, s.key, s.uploadID, partNumber, data)
		if err == nil {
			return etag, nil
		}
		lastErr = err
		s.logger.Warnf("upload of part %d attempt %d/%d failed: %v", partNumber, attempt, s.retries, err)
	}
	return "", &SinkIOError{Artifact: s.key, Cause: fmt.Errorf("part %d failed after %d attempts: %w", partNumber, s.retries, lastErr)}
}

// Commit finalizes the artifact: if the buffer never reached the multipart
// threshold, it performs a single PutObject; otherwise it flushes any
// remaining buffered bytes as a final part and completes the multipart
// upload.
func (s *RemoteObjectSink) Commit() error {
	if !s.multipart {
		if err := s.client.PutObject(s.ctx, s.bucket, s.key, s.buffer.Bytes()); err != nil {
			return &SinkIOError{Artifact: s.key, Cause: fmt.Errorf("unable to put object: %w", err)}
		}
		return nil
	}

	if s.buffer.Len() > 0 {
		if err := s.flushPart(); err != nil {
			return err
		}
	}

	if err := s.client.CompleteMultipartUpload(s.ctx, s.bucket, s.key, s.uploadID, s.parts); err != nil {
		return &SinkIOError{Artifact: s.key, Cause: fmt.Errorf("unable to complete multipart upload: %w", err)}
	}
	return nil
}

// Abort aborts the in-progress multipart upload, if one was started. If the
// sink never exceeded the multipart threshold, nothing has been sent to the
// remote store and there is nothing to abort.
func (s *RemoteObjectSink) Abort() error {
	if !s.multipart {
		return nil
	}
	if err := s.client.AbortMultipartUpload(s.ctx, s.bucket, s.key, s.uploadID); err != nil {
		return &SinkIOError{Artifact: s.key, Cause: fmt.Errorf("unable to abort multipart upload: %w", err)}
	}
	return nil
}
