package backup

import (
	"fmt"
	"io"

	"github.com/mbr/ministryofbackup/pkg/archive"
	"github.com/mbr/ministryofbackup/pkg/compress"
	"github.com/mbr/ministryofbackup/pkg/cryptoenvelope"
	"github.com/mbr/ministryofbackup/pkg/pipeline"
)

// Restore reverses one archive artifact written by Run: it decrypts src,
// decompresses the result, and extracts the resulting tar stream into
// destination. The restore CLI itself is out of scope — the symmetric
// design follows trivially from the store path — but this function
// exercises the three stages' exact inverse relationship directly, since it
// is what makes the on-disk format meaningful.
func Restore(opts Options, destination string, src io.Reader) error {
	logger := opts.Logger

	decryptStage := pipeline.Stage{
		Name: "decrypt",
		Run: func(dst io.Writer, src io.Reader) error {
			return cryptoenvelope.Decrypt(dst, src, opts.Password, opts.Crypto, opts.Pipeline.BufferSize, logger.Sublogger("decrypt"))
		},
	}
	decompressStage := pipeline.Stage{
		Name: "decompress",
		Run: func(dst io.Writer, src io.Reader) error {
			return compress.Decompress(dst, src, opts.Pipeline, logger.Sublogger("decompress"))
		},
	}
	extractStage := pipeline.Stage{
		Name: "extract",
		Run: func(dst io.Writer, src io.Reader) error {
			return archive.Extract(destination, src, logger.Sublogger("extract"))
		},
	}

	// The extract stage writes files to disk rather than to a sink, so the
	// pipeline's overall destination is discarded.
	err := pipeline.Run(src, io.Discard, []pipeline.Stage{decryptStage, decompressStage, extractStage}, logger)
	if err != nil {
		return fmt.Errorf("restore pipeline failed: %w", err)
	}
	return nil
}
