// Package cryptoenvelope implements the encryption stage and on-disk
// envelope: a 4-byte magic, a random salt and IV, and an AES-256-OFB
// ciphertext keyed by a PBKDF2-HMAC-SHA1 derivation of the caller's
// password. The envelope provides confidentiality only — there is no
// authentication tag, so a corrupted or tampered ciphertext is only caught
// indirectly, by whatever the decompression or tar stage downstream makes of
// the garbage it produces.
package cryptoenvelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/mbr/ministryofbackup/pkg/config"
	"github.com/mbr/ministryofbackup/pkg/logging"
)

// UnsupportedFormat indicates that decryption observed a magic value other
// than the expected envelope magic.
type UnsupportedFormat struct {
	// Got is the magic bytes actually observed.
	Got []byte
}

func (e *UnsupportedFormat) Error() string {
	return fmt.Sprintf("unsupported envelope format: magic %q", e.Got)
}

func deriveKey(password string, salt []byte, params config.CryptoParameters) []byte {
	return pbkdf2.Key([]byte(password), salt, params.Iterations, params.KeySize, sha1.New)
}

// Encrypt draws a fresh salt and IV, writes the envelope header (magic, salt,
// iv) to dst, then streams ciphertext for all of src's bytes to dst using
// AES-256 in OFB mode keyed by PBKDF2-HMAC-SHA1(password, salt). It reads
// src in bufferSize chunks.
func Encrypt(dst io.Writer, src io.Reader, password string, params config.CryptoParameters, bufferSize int, logger *logging.Logger) error {
	salt := make([]byte, params.SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("unable to draw salt: %w", err)
	}
	iv := make([]byte, params.IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return fmt.Errorf("unable to draw iv: %w", err)
	}

	if _, err := dst.Write([]byte(config.EnvelopeMagic)); err != nil {
		return fmt.Errorf("unable to write envelope magic: %w", err)
	}
	if _, err := dst.Write(salt); err != nil {
		return fmt.Errorf("unable to write envelope salt: %w", err)
	}
	if _, err := dst.Write(iv); err != nil {
		return fmt.Errorf("unable to write envelope iv: %w", err)
	}

	key := deriveKey(password, salt, params)
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("unable to initialize AES cipher: %w", err)
	}
	stream := cipher.NewOFB(block, iv)
	writer := &cipher.StreamWriter{S: stream, W: dst}

	buf := make([]byte, bufferSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			logger.Debugf("encrypting %d bytes", n)
			if _, writeErr := writer.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("unable to write ciphertext: %w", writeErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("unable to read plaintext input: %w", readErr)
		}
	}
	logger.Debug("encryption finished")
	return nil
}

// Decrypt reverses Encrypt: it reads the envelope header from src, validates
// the magic, derives the key with the same KDF parameters, and streams
// plaintext to dst.
func Decrypt(dst io.Writer, src io.Reader, password string, params config.CryptoParameters, bufferSize int, logger *logging.Logger) error {
	magic := make([]byte, len(config.EnvelopeMagic))
	if _, err := io.ReadFull(src, magic); err != nil {
		return fmt.Errorf("unable to read envelope magic: %w", err)
	}
	if string(magic) != config.EnvelopeMagic {
		return &UnsupportedFormat{Got: magic}
	}

	salt := make([]byte, params.SaltSize)
	if _, err := io.ReadFull(src, salt); err != nil {
		return fmt.Errorf("unable to read envelope salt: %w", err)
	}
	iv := make([]byte, params.IVSize)
	if _, err := io.ReadFull(src, iv); err != nil {
		return fmt.Errorf("unable to read envelope iv: %w", err)
	}

	key := deriveKey(password, salt, params)
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("unable to initialize AES cipher: %w", err)
	}
	stream := cipher.NewOFB(block, iv)
	reader := &cipher.StreamReader{S: stream, R: src}

	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(dst, reader, buf); err != nil {
		return fmt.Errorf("unable to decrypt stream: %w", err)
	}
	logger.Debug("decryption finished")
	return nil
}
