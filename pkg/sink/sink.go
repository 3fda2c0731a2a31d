// Package sink implements the storage sink component: a write-only
// destination for a backup artifact, with a local-filesystem variant and a
// remote-object-store variant that lazily decides between a single put and
// a multi-part upload.
package sink

import "io"

// SinkIOError wraps a failure to create or finalize an artifact, whether a
// local exclusive-create collision or an exhausted remote retry budget.
type SinkIOError struct {
	// Artifact names the artifact the sink was writing (e.g. a local path
	// or a remote bucket/key).
	Artifact string
	Cause    error
}

func (e *SinkIOError) Error() string {
	return "sink i/o error for " + e.Artifact + ": " + e.Cause.Error()
}

func (e *SinkIOError) Unwrap() error {
	return e.Cause
}

// Sink is the common contract both storage variants implement: an
// io.Writer that the pipeline's final stage writes into, plus explicit
// Commit/Abort so the driver can finalize or roll back the artifact
// depending on whether the pipeline succeeded: the partially written
// artifact must be removed on any pipeline-stage failure.
type Sink interface {
	io.Writer

	// Commit finalizes the artifact once all bytes have been written
	// successfully.
	Commit() error

	// Abort discards whatever has been written so far, used when the
	// pipeline fails partway through.
	Abort() error
}
