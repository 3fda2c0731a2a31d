// Package config holds the immutable parameter blocks used across the
// backup pipeline: cryptographic parameters for the envelope stage and the
// buffering/compression knobs shared by the compression and encryption stages.
//
// Parameters are grouped into a single struct frozen at construction rather
// than loose package constants or ad hoc RNG calls scattered through the
// pipeline.
package config

const (
	// DefaultBufferSize is the chunk size used when rehashing file contents
	// from disk and when streaming bytes through the compression/encryption
	// stages.
	DefaultBufferSize = 4 * 1024 * 1024

	// DefaultCompressionLevel is the default LZMA preset used by the
	// compression stage.
	DefaultCompressionLevel = 9

	// SaltSize is the number of random bytes drawn for the PBKDF2 salt.
	SaltSize = 32

	// IVSize is the AES block size, and thus the OFB initialization vector
	// size.
	IVSize = 16

	// KeySize is the derived AES-256 key size in bytes.
	KeySize = 32

	// PBKDF2Iterations is the number of PBKDF2-HMAC-SHA1 iterations used to
	// derive the encryption key. This value, along with the cipher and
	// envelope layout, is fixed and must not be changed without bumping the
	// envelope magic.
	PBKDF2Iterations = 20000

	// EnvelopeMagic is the 4-byte magic written at the start of every
	// encrypted artifact.
	EnvelopeMagic = "mob1"

	// EnvelopeHeaderSize is the total size, in bytes, of the fixed envelope
	// header (magic + salt + iv) that precedes the ciphertext.
	EnvelopeHeaderSize = 4 + SaltSize + IVSize

	// ArchiveExtension is the suffix applied to the primary backup archive
	// artifact.
	ArchiveExtension = ".tar.xz.mob"

	// MetaIndexExtension is the suffix applied to the metadata index
	// artifact.
	MetaIndexExtension = ".mdx.xz.mob"

	// MinMultipartPartSize is the minimum part size, in bytes, accepted by
	// the remote multi-part upload policy.
	MinMultipartPartSize = 5 * 1024 * 1024

	// MaxMultipartParts bounds the number of parts a multi-part upload may
	// be split into.
	MaxMultipartParts = 10000

	// DefaultMultipartRetries bounds the number of retry attempts per part.
	DefaultMultipartRetries = 10

	// MultipartThreshold is the smallest artifact size that can be sent as
	// a multi-part upload; it equals the minimum part size. The remote sink
	// does not read this constant: it switches from a single put to a
	// multi-part upload once its buffer reaches its own part size, which is
	// this value unless a size hint makes the part size larger.
	MultipartThreshold = MinMultipartPartSize
)

// CryptoParameters is the frozen set of cryptographic parameters used by the
// encryption stage. It exists as a struct (rather than loose package
// constants) so that alternate parameter sets can be constructed for tests
// without mutating global state.
type CryptoParameters struct {
	// SaltSize is the salt length in bytes.
	SaltSize int
	// IVSize is the initialization vector length in bytes (the AES block
	// size).
	IVSize int
	// KeySize is the derived key length in bytes (selects AES-128/192/256).
	KeySize int
	// Iterations is the PBKDF2-HMAC-SHA1 iteration count.
	Iterations int
}

// DefaultCryptoParameters returns the standard parameter set: 32-byte salt,
// 16-byte IV, 32-byte (AES-256) key, 20000 PBKDF2 iterations.
func DefaultCryptoParameters() CryptoParameters {
	return CryptoParameters{
		SaltSize:   SaltSize,
		IVSize:     IVSize,
		KeySize:    KeySize,
		Iterations: PBKDF2Iterations,
	}
}

// PipelineParameters groups the buffering knobs shared by the compression
// and encryption stages.
type PipelineParameters struct {
	// BufferSize is the chunk size used for streaming reads/writes.
	BufferSize int
	// CompressionLevel is the LZMA preset (0-9).
	CompressionLevel int
}

// DefaultPipelineParameters returns the standard defaults: a 4 MiB buffer
// and LZMA level 9.
func DefaultPipelineParameters() PipelineParameters {
	return PipelineParameters{
		BufferSize:       DefaultBufferSize,
		CompressionLevel: DefaultCompressionLevel,
	}
}
