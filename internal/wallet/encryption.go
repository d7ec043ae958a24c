package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned for a wrong password or tampered ciphertext.
var ErrDecrypt = errors.New("decryption failed (wrong password?)")

// Encryption constants.
const (
	SaltSize = 32
	// Encrypted format: [salt(32)][memory(4)][iterations(4)][parallelism(1)][nonce(24)][ciphertext...]
	headerSize = SaltSize + 4 + 4 + 1
)

// EncryptionParams holds Argon2id parameters.
type EncryptionParams struct {
	Memory      uint32 // in KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams returns recommended Argon2id parameters.
func DefaultParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

// deriveKey uses Argon2id to derive a 32-byte encryption key from password and salt.
func deriveKey(password, salt []byte, params EncryptionParams) []byte {
	return argon2.IDKey(password, salt, params.Iterations, params.Memory, params.Parallelism,
		chacha20poly1305.KeySize)
}

// Encrypt seals data under password with Argon2id + XChaCha20-Poly1305.
// The KDF parameters travel in the header so they can change between files.
func Encrypt(data, password []byte, params EncryptionParams) ([]byte, error) {
	if params.Iterations == 0 || params.Memory == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("invalid encryption params %+v", params)
	}

	header := make([]byte, 0, headerSize)
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	header = append(header, salt...)
	header = binary.LittleEndian.AppendUint32(header, params.Memory)
	header = binary.LittleEndian.AppendUint32(header, params.Iterations)
	header = append(header, params.Parallelism)

	key := deriveKey(password, salt, params)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// The header is bound as associated data so KDF parameters cannot be
	// swapped without failing authentication.
	out := append(header, nonce...)
	return aead.Seal(out, nonce, data, header), nil
}

// Decrypt opens data sealed by Encrypt.
func Decrypt(encrypted, password []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	minSize := headerSize + nonceSize + chacha20poly1305.Overhead
	if len(encrypted) < minSize {
		return nil, fmt.Errorf("encrypted data too short: %d bytes, need at least %d", len(encrypted), minSize)
	}

	header := encrypted[:headerSize]
	params := EncryptionParams{
		Memory:      binary.LittleEndian.Uint32(header[SaltSize:]),
		Iterations:  binary.LittleEndian.Uint32(header[SaltSize+4:]),
		Parallelism: header[SaltSize+8],
	}
	nonce := encrypted[headerSize : headerSize+nonceSize]
	ciphertext := encrypted[headerSize+nonceSize:]

	key := deriveKey(password, header[:SaltSize], params)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
