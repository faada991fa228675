package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrKeyUnwrap is returned when a wrapped key fails authentication or is
// structurally invalid. A tag mismatch means the stored blob was corrupted
// or tampered with; reads for that meeting must fail until investigated.
var ErrKeyUnwrap = errors.New("failed to unwrap key")

// WrappedKey is the storage form of a wrapped data key.
//
// Blob is `wrapper_iv ':' ciphertext` with both halves hex encoded; Tag is
// the 16-byte GCM authentication tag, hex encoded. The split mirrors the
// metadata-store columns.
type WrappedKey struct {
	Blob string
	Tag  string
}

// WrapKey encrypts a 32-byte data key under the process master key using
// AES-256-GCM with a fresh 12-byte nonce.
func WrapKey(masterKey, dataKey []byte) (WrappedKey, error) {
	if len(masterKey) != KeySize {
		return WrappedKey{}, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	if len(dataKey) != KeySize {
		return WrappedKey{}, fmt.Errorf("data key must be %d bytes, got %d", KeySize, len(dataKey))
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return WrappedKey{}, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return WrappedKey{}, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, WrapIVSize)
	if _, err := rand.Read(nonce); err != nil {
		return WrappedKey{}, fmt.Errorf("failed to generate wrap IV: %w", err)
	}

	// Seal appends the tag to the ciphertext; the storage form keeps them
	// in separate columns.
	sealed := gcm.Seal(nil, nonce, dataKey, nil)
	ct := sealed[:len(sealed)-GCMTagSize]
	tag := sealed[len(sealed)-GCMTagSize:]

	return WrappedKey{
		Blob: hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ct),
		Tag:  hex.EncodeToString(tag),
	}, nil
}

// UnwrapKey authenticates and decrypts a wrapped data key. Any structural
// defect or tag mismatch yields ErrKeyUnwrap.
func UnwrapKey(masterKey []byte, wk WrappedKey) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(masterKey))
	}

	parts := strings.SplitN(wk.Blob, ":", 2)
	if len(parts) != 2 {
		return nil, ErrKeyUnwrap
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != WrapIVSize {
		return nil, ErrKeyUnwrap
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, ErrKeyUnwrap
	}
	tag, err := hex.DecodeString(wk.Tag)
	if err != nil || len(tag) != GCMTagSize {
		return nil, ErrKeyUnwrap
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	sealed := append(append([]byte{}, ct...), tag...)
	key, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrKeyUnwrap
	}
	if len(key) != KeySize {
		return nil, ErrKeyUnwrap
	}
	return key, nil
}
