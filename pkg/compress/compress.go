// Package compress implements the LZMA/xz compression stage, built on
// github.com/ulikunitz/xz. It reads in fixed-size buffers, feeds the
// compressor incrementally, and flushes on input EOF.
package compress

import (
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/mbr/ministryofbackup/pkg/config"
	"github.com/mbr/ministryofbackup/pkg/logging"
)

// levelToDictCap maps the classic LZMA numbered preset level (0-9) onto
// ulikunitz/xz's DictCap setting, since that package doesn't expose numbered
// presets directly. Level 9, the default, maps to the largest practical
// dictionary size.
func levelToDictCap(level int) int {
	switch {
	case level >= 9:
		return 64 * 1024 * 1024
	case level >= 6:
		return 16 * 1024 * 1024
	case level >= 3:
		return 4 * 1024 * 1024
	default:
		return 1 * 1024 * 1024
	}
}

// Compress reads all bytes from src, compresses them with LZMA at the given
// level, and writes the compressed stream to dst. It reads src in
// params.BufferSize chunks; backpressure against dst is handled entirely by
// the underlying writer (normally a pipeline conduit — see pkg/pipeline).
func Compress(dst io.Writer, src io.Reader, params config.PipelineParameters, logger *logging.Logger) error {
	cfg := xz.WriterConfig{DictCap: levelToDictCap(params.CompressionLevel)}
	w, err := cfg.NewWriter(dst)
	if err != nil {
		return fmt.Errorf("unable to initialize xz compressor: %w", err)
	}

	buf := make([]byte, params.BufferSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			logger.Debugf("read %d bytes for compression", n)
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("unable to write to compressor: %w", writeErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("unable to read input for compression: %w", readErr)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("unable to flush compressor: %w", err)
	}
	logger.Debug("compression finished")
	return nil
}

// Decompress reads an LZMA/xz stream from src and writes the decompressed
// bytes to dst, the symmetric counterpart of Compress: decompress(compress(x))
// == x.
func Decompress(dst io.Writer, src io.Reader, params config.PipelineParameters, logger *logging.Logger) error {
	r, err := xz.NewReader(src)
	if err != nil {
		return fmt.Errorf("unable to initialize xz decompressor: %w", err)
	}

	buf := make([]byte, params.BufferSize)
	if _, err := io.CopyBuffer(dst, r, buf); err != nil {
		return fmt.Errorf("unable to decompress stream: %w", err)
	}
	logger.Debug("decompression finished")
	return nil
}
