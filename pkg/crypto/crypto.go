// Package crypto implements the three cryptographic layers of the meeting
// artifact pipeline:
//
//  1. At-rest: AES-256-CBC over vault blobs, one (key, IV) pair per meeting.
//  2. Key-wrap: AES-256-GCM under the process master key, protecting each
//     meeting's data key while stored.
//  3. Transport: a per-request session envelope. A fresh AES key and IV are
//     RSA-OAEP-encrypted under the client's public key and carried in a
//     response header; the artifact body is streamed through AES-256-CBC
//     under that session key.
//
// The layers are never conflated: the data key never leaves the process
// unwrapped, and plaintext artifacts never leave the process at all.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// KeySize is the AES-256 key length for data, master and session keys.
	KeySize = 32

	// FileIVSize is the AES-CBC IV length for at-rest and transport ciphers.
	FileIVSize = 16

	// WrapIVSize is the AES-GCM nonce length for key wrapping.
	WrapIVSize = 12

	// GCMTagSize is the GCM authentication tag length.
	GCMTagSize = 16
)

// GenerateDataKey produces a fresh 32-byte AES-256 key and 16-byte CBC IV
// for a meeting. All of the meeting's vault blobs are encrypted under this
// pair.
func GenerateDataKey() (key, iv []byte, err error) {
	key = make([]byte, KeySize)
	if _, err = rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	iv = make([]byte, FileIVSize)
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("failed to generate file IV: %w", err)
	}
	return key, iv, nil
}

// ContentHash returns the SHA-256 hex digest of the UTF-8 bytes of text.
//
// For transcripts the input is the joined recognized text; for summaries it
// is the summary sentence. Action items are not hashed.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ParseMasterKey decodes a 64-hex-character master key into its 32 raw bytes.
func ParseMasterKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}
