// Package vault provides encrypted streaming read/write of artifact blobs on
// local disk. Every file is AES-256-CBC encrypted under the owning meeting's
// data key and file IV; the vault never sees cleartext on disk.
//
// Layout under the configured root:
//
//	audio/<id>.enc                        latest ingested MP3
//	data/<id>_transcript.enc              transcript head
//	data/<id>_summary.enc                 summary head
//	data/<id>_<kind>_v<N>.enc             immutable revision snapshots
package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alfredjoe/Talktrace-backend/pkg/crypto"
)

// ErrNotFound is returned when a requested blob does not exist.
var ErrNotFound = errors.New("vault blob not found")

const (
	audioDir = "audio"
	dataDir  = "data"
)

// Vault is a root directory holding encrypted artifact blobs. Paths handed to
// the vault are relative to the root; the same relative paths are persisted
// in meeting records.
type Vault struct {
	root string
}

// New opens (and on first use creates) a vault rooted at dir.
func New(dir string) (*Vault, error) {
	if dir == "" {
		return nil, errors.New("vault directory is required")
	}
	for _, sub := range []string{audioDir, dataDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0700); err != nil {
			return nil, fmt.Errorf("failed to create vault directory: %w", err)
		}
	}
	return &Vault{root: dir}, nil
}

// Root returns the vault root directory.
func (v *Vault) Root() string {
	return v.root
}

// AudioPath returns the relative blob path for a meeting's audio.
func (v *Vault) AudioPath(meetingID string) string {
	return filepath.Join(audioDir, meetingID+".enc")
}

// DataPath returns the relative head blob path for an artifact kind
// ("transcript" or "summary").
func (v *Vault) DataPath(meetingID, kind string) string {
	return filepath.Join(dataDir, fmt.Sprintf("%s_%s.enc", meetingID, kind))
}

// SnapshotPath returns the relative immutable snapshot path for a revision.
func (v *Vault) SnapshotPath(meetingID, kind string, version int) string {
	return filepath.Join(dataDir, fmt.Sprintf("%s_%s_v%d.enc", meetingID, kind, version))
}

// resolve maps a relative blob path to an absolute path, rejecting anything
// that would escape the vault root.
func (v *Vault) resolve(relPath string) (string, error) {
	clean := filepath.Clean(relPath)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid vault path %q", relPath)
	}
	return filepath.Join(v.root, clean), nil
}

// EncryptStreamToFile consumes r, pipes it through AES-256-CBC encryption and
// writes the ciphertext to the blob at relPath. It returns only after the
// cipher's final padded block is written and the file is synced; any upstream
// read error propagates and the partial file is removed.
func (v *Vault) EncryptStreamToFile(r io.Reader, relPath string, key, iv []byte) (err error) {
	abs, err := v.resolve(relPath)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create vault blob: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(abs)
		}
	}()

	enc, err := crypto.NewCBCEncryptWriter(f, key, iv)
	if err != nil {
		return err
	}
	if _, err = io.Copy(enc, r); err != nil {
		return fmt.Errorf("failed to encrypt stream: %w", err)
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize cipher: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("failed to sync vault blob: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close vault blob: %w", err)
	}
	return nil
}

// decryptReadCloser couples the streaming decryptor with the underlying file
// so closing the stream releases the file handle.
type decryptReadCloser struct {
	io.Reader
	f *os.File
}

func (d *decryptReadCloser) Close() error {
	return d.f.Close()
}

// DecryptStream opens the blob at relPath and returns a lazy cleartext
// stream. Returns ErrNotFound when the blob is absent.
func (v *Vault) DecryptStream(relPath string, key, iv []byte) (io.ReadCloser, error) {
	abs, err := v.resolve(relPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open vault blob: %w", err)
	}

	dec, err := crypto.NewCBCDecryptReader(f, key, iv)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &decryptReadCloser{Reader: dec, f: f}, nil
}

// EncryptBufferToFile encrypts a small buffer (JSON artifacts) and writes it
// to relPath in one shot.
func (v *Vault) EncryptBufferToFile(b []byte, relPath string, key, iv []byte) error {
	abs, err := v.resolve(relPath)
	if err != nil {
		return err
	}
	ct, err := crypto.EncryptBuffer(b, key, iv)
	if err != nil {
		return err
	}
	if err := os.WriteFile(abs, ct, 0600); err != nil {
		return fmt.Errorf("failed to write vault blob: %w", err)
	}
	return nil
}

// DecryptFileToBuffer reads and decrypts a whole blob. Returns ErrNotFound
// when the blob is absent.
func (v *Vault) DecryptFileToBuffer(relPath string, key, iv []byte) ([]byte, error) {
	abs, err := v.resolve(relPath)
	if err != nil {
		return nil, err
	}
	ct, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read vault blob: %w", err)
	}
	return crypto.DecryptBuffer(ct, key, iv)
}

// Exists reports whether a blob is present.
func (v *Vault) Exists(relPath string) bool {
	abs, err := v.resolve(relPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Remove unlinks a blob. Missing blobs are not an error: after a
// crypto-shred the files are unrecoverable either way.
func (v *Vault) Remove(relPath string) error {
	abs, err := v.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveMeeting best-effort unlinks every blob belonging to a meeting:
// the audio blob, both heads, and all revision snapshots.
func (v *Vault) RemoveMeeting(meetingID string) {
	_ = v.Remove(v.AudioPath(meetingID))
	for _, kind := range []string{"transcript", "summary"} {
		_ = v.Remove(v.DataPath(meetingID, kind))
	}
	matches, err := filepath.Glob(filepath.Join(v.root, dataDir, meetingID+"_*_v*.enc"))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
