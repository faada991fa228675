package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
)

// ErrNotBlockAligned is returned when a ciphertext stream ends mid-block.
var ErrNotBlockAligned = errors.New("ciphertext length is not a multiple of the block size")

// CBCEncryptWriter streams plaintext through AES-256-CBC into an underlying
// writer. Blocks are chained across Write calls; Close applies PKCS7 padding
// and flushes the final block. The combined output is identical to
// whole-buffer AES-256-CBC encryption of the same plaintext.
type CBCEncryptWriter struct {
	w      io.Writer
	mode   cipher.BlockMode
	buf    []byte // pending partial block (< aes.BlockSize bytes)
	closed bool
}

// NewCBCEncryptWriter creates a streaming AES-256-CBC encryptor over w.
func NewCBCEncryptWriter(w io.Writer, key, iv []byte) (*CBCEncryptWriter, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != FileIVSize {
		return nil, fmt.Errorf("IV must be %d bytes, got %d", FileIVSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &CBCEncryptWriter{
		w:    w,
		mode: cipher.NewCBCEncrypter(block, iv),
	}, nil
}

// Write encrypts and forwards all complete blocks, retaining any partial
// trailing block until more data arrives or Close is called.
func (e *CBCEncryptWriter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, errors.New("write after close")
	}
	total := len(p)

	data := append(e.buf, p...)
	n := len(data) / aes.BlockSize * aes.BlockSize
	if n > 0 {
		ct := make([]byte, n)
		e.mode.CryptBlocks(ct, data[:n])
		if _, err := e.w.Write(ct); err != nil {
			return 0, err
		}
	}
	e.buf = append(e.buf[:0], data[n:]...)
	return total, nil
}

// Close pads the remaining plaintext with PKCS7 and writes the final block.
// PKCS7 always adds 1..16 bytes, so the final block exists even for
// block-aligned input.
func (e *CBCEncryptWriter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	final := pkcs7Pad(e.buf, aes.BlockSize)
	ct := make([]byte, len(final))
	e.mode.CryptBlocks(ct, final)
	_, err := e.w.Write(ct)
	e.buf = nil
	return err
}

// CBCDecryptReader streams AES-256-CBC ciphertext from an underlying reader,
// decrypting on the fly. The final block is withheld until EOF so PKCS7
// padding can be stripped.
type CBCDecryptReader struct {
	r    io.Reader
	mode cipher.BlockMode
	in   []byte // raw ciphertext not yet decrypted
	hold []byte // decrypted tail withheld until EOF resolves padding
	out  []byte // decrypted bytes ready to emit
	done bool
	err  error
}

// NewCBCDecryptReader creates a streaming AES-256-CBC decryptor over r.
func NewCBCDecryptReader(r io.Reader, key, iv []byte) (*CBCDecryptReader, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != FileIVSize {
		return nil, fmt.Errorf("IV must be %d bytes, got %d", FileIVSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &CBCDecryptReader{
		r:    r,
		mode: cipher.NewCBCDecrypter(block, iv),
	}, nil
}

func (d *CBCDecryptReader) Read(p []byte) (int, error) {
	for len(d.out) == 0 {
		if d.err != nil {
			return 0, d.err
		}
		if d.done {
			return 0, io.EOF
		}
		d.fill()
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

// fill reads one chunk of ciphertext, decrypts complete blocks and moves
// emit-safe bytes to out. The last decrypted block is always withheld until
// EOF is observed.
func (d *CBCDecryptReader) fill() {
	chunk := make([]byte, 32*1024)
	n, readErr := d.r.Read(chunk)
	if n > 0 {
		d.in = append(d.in, chunk[:n]...)
	}

	nb := len(d.in) / aes.BlockSize * aes.BlockSize
	if nb > 0 {
		pt := make([]byte, nb)
		d.mode.CryptBlocks(pt, d.in[:nb])
		d.in = append(d.in[:0], d.in[nb:]...)
		d.hold = append(d.hold, pt...)
	}

	// Emit everything except the trailing block, which may carry padding.
	if len(d.hold) > aes.BlockSize {
		emit := len(d.hold) - aes.BlockSize
		d.out = append(d.out, d.hold[:emit]...)
		d.hold = append(d.hold[:0], d.hold[emit:]...)
	}

	if readErr == nil {
		return
	}
	if readErr != io.EOF {
		d.err = readErr
		return
	}

	// EOF: the ciphertext must be block aligned and the withheld tail holds
	// the padding.
	if len(d.in) != 0 {
		d.err = ErrNotBlockAligned
		return
	}
	if len(d.hold) == 0 {
		d.done = true
		return
	}
	unpadded, err := pkcs7Unpad(d.hold)
	if err != nil {
		d.err = err
		return
	}
	d.out = append(d.out, unpadded...)
	d.hold = nil
	d.done = true
}

// EncryptBuffer encrypts a whole buffer with AES-256-CBC and PKCS7 padding.
func EncryptBuffer(plaintext, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != FileIVSize {
		return nil, fmt.Errorf("IV must be %d bytes, got %d", FileIVSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	return ct, nil
}

// DecryptBuffer decrypts a whole AES-256-CBC buffer and strips PKCS7 padding.
func DecryptBuffer(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != FileIVSize {
		return nil, fmt.Errorf("IV must be %d bytes, got %d", FileIVSize, len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrNotBlockAligned
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	pt := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ciphertext)
	return pkcs7Unpad(pt)
}

// pkcs7Pad pads data to a multiple of blockSize. Padding is always added.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad removes PKCS7 padding.
func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, errors.New("invalid padded data length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
