// Package pipeline implements a concurrent stage runner: it turns a list of
// stage functions into a running chain connected by bounded byte conduits,
// where each stage blocks on read when starved and on write when its
// downstream buffer is full, and a failure in any stage promptly terminates
// the rest rather than deadlocking. Goroutines joined by io.Pipe conduits
// play the role that separate OS processes joined by os.pipe() play in a
// multiprocess design.
package pipeline

import (
	"fmt"
	"io"
	"sync"

	"github.com/mbr/ministryofbackup/pkg/logging"
)

// Stage is one step of the transform pipeline: a function that consumes
// bytes from src and produces bytes on dst. A stage must read src to EOF (or
// fail trying) and must not retain dst or src beyond its own return, since
// the runner closes both the moment Run returns.
type Stage struct {
	// Name identifies the stage for logging and for PipelineStageFailed.
	Name string
	// Run performs the stage's transform. It must return nil only once it
	// has fully drained src and flushed everything to dst.
	Run func(dst io.Writer, src io.Reader) error
}

// StageError pairs a stage's name with the error it returned.
type StageError struct {
	Stage string
	Cause error
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
}

// PipelineStageFailed is returned by Run when one or more stages terminated
// abnormally. Primary is the first stage (in pipeline order) to fail;
// Secondary holds any further stages that failed as a consequence of the
// first failure propagating through the conduits.
type PipelineStageFailed struct {
	Primary   StageError
	Secondary []StageError
}

func (e *PipelineStageFailed) Error() string {
	if len(e.Secondary) == 0 {
		return fmt.Sprintf("pipeline stage %q failed: %v", e.Primary.Stage, e.Primary.Cause)
	}
	return fmt.Sprintf("pipeline stage %q failed: %v (plus %d secondary failure(s))",
		e.Primary.Stage, e.Primary.Cause, len(e.Secondary))
}

func (e *PipelineStageFailed) Unwrap() error {
	return e.Primary.Cause
}

// Run wires source -> stages[0] -> stages[1] -> ... -> stages[n-1] -> sink
// using n-1 io.Pipe conduits, starts each stage as an independent
// goroutine, and blocks until all stages have finished.
//
// For k stages, conduit i (0 <= i < k-1) connects stage i's output to stage
// i+1's input. As soon as a stage's Run returns, the runner closes that stage's
// output (propagating either a clean EOF or the stage's error to whatever is
// downstream) and its input (unblocking whatever is upstream, even if this
// stage returned before fully draining it) — this is the "close all handles
// except your own two, then close those two on exit" discipline,
// implemented here as scoped ownership per goroutine rather than an
// explicit close-all-except decorator.
//
// If sink implements io.Closer, it is closed once the final stage completes,
// signaling completion to whatever owns the underlying artifact.
func Run(source io.Reader, sink io.Writer, stages []Stage, logger *logging.Logger) error {
	if len(stages) == 0 {
		return fmt.Errorf("pipeline: no stages provided")
	}

	k := len(stages)
	readers := make([]io.Reader, k)
	writers := make([]io.Writer, k)

	readers[0] = source
	writers[k-1] = sink

	pipeReaders := make([]*io.PipeReader, k-1)
	pipeWriters := make([]*io.PipeWriter, k-1)
	for i := 0; i < k-1; i++ {
		pr, pw := io.Pipe()
		pipeReaders[i] = pr
		pipeWriters[i] = pw
		writers[i] = pw
		readers[i+1] = pr
	}

	errs := make([]error, k)
	var wg sync.WaitGroup
	wg.Add(k)

	for i := 0; i < k; i++ {
		i := i
		stage := stages[i]
		stageLogger := logger.Sublogger(stage.Name)
		go func() {
			defer wg.Done()

			stageLogger.Debug("starting stage")
			err := stage.Run(writers[i], readers[i])
			if err != nil {
				stageLogger.Warn(err)
			}
			errs[i] = err

			// Unblock whatever is downstream.
			if pw, ok := writers[i].(*io.PipeWriter); ok {
				if err != nil {
					pw.CloseWithError(err)
				} else {
					pw.Close()
				}
			} else if closer, ok := writers[i].(io.Closer); ok && i == k-1 {
				if closeErr := closer.Close(); closeErr != nil {
					stageLogger.Warnf("unable to close sink: %v", closeErr)
				}
			}

			// Unblock whatever is upstream, even if we returned before
			// fully draining our input.
			if pr, ok := readers[i].(*io.PipeReader); ok {
				if err != nil {
					pr.CloseWithError(err)
				} else {
					pr.Close()
				}
			}

			stageLogger.Debug("stage finished")
		}()
	}

	wg.Wait()

	return collectErrors(stages, errs)
}

// collectErrors turns the per-stage error slice into a PipelineStageFailed,
// ordering the primary failure by stage position: the runner reports the
// first failure and surfaces the rest as secondary.
func collectErrors(stages []Stage, errs []error) error {
	var failed []StageError
	for i, err := range errs {
		if err != nil {
			failed = append(failed, StageError{Stage: stages[i].Name, Cause: err})
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &PipelineStageFailed{Primary: failed[0], Secondary: failed[1:]}
}
