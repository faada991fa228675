package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrPubKeyFormat is returned when a client-supplied public key cannot be
// reconstructed into a valid PEM-encoded RSA key.
var ErrPubKeyFormat = errors.New("invalid public key format")

const (
	pemHeader = "-----BEGIN PUBLIC KEY-----"
	pemFooter = "-----END PUBLIC KEY-----"
)

// SessionKey is a per-request transport key pair: a fresh AES-256 key and
// CBC IV minted for a single artifact delivery.
type SessionKey struct {
	Key []byte
	IV  []byte
}

// Encrypter returns a streaming AES-256-CBC encryptor writing ciphertext to w.
// The caller must Close it to flush the padded final block.
func (s SessionKey) Encrypter(w io.Writer) (*CBCEncryptWriter, error) {
	return NewCBCEncryptWriter(w, s.Key, s.IV)
}

// Decrypter returns a streaming AES-256-CBC decryptor over r. This is the
// client half of the envelope, used in tests to verify round trips.
func (s SessionKey) Decrypter(r io.Reader) (*CBCDecryptReader, error) {
	return NewCBCDecryptReader(r, s.Key, s.IV)
}

// NormalizePEM reconstructs a standard PEM public key from the forms clients
// transport through HTTP headers: escaped `\n` literals, surrounding quotes,
// and headerless single-line base64. The result uses 64-character body lines.
func NormalizePEM(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.ReplaceAll(s, `\r\n`, "\n")
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrPubKeyFormat
	}

	// Strip any existing header/footer and all whitespace to recover the
	// raw base64 body, then re-wrap.
	body := s
	body = strings.ReplaceAll(body, pemHeader, "")
	body = strings.ReplaceAll(body, pemFooter, "")
	body = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, body)
	if body == "" {
		return "", ErrPubKeyFormat
	}
	if _, err := base64.StdEncoding.DecodeString(body); err != nil {
		return "", ErrPubKeyFormat
	}

	var b strings.Builder
	b.WriteString(pemHeader)
	b.WriteByte('\n')
	for i := 0; i < len(body); i += 64 {
		end := i + 64
		if end > len(body) {
			end = len(body)
		}
		b.WriteString(body[i:end])
		b.WriteByte('\n')
	}
	b.WriteString(pemFooter)
	b.WriteByte('\n')
	return b.String(), nil
}

// parsePublicKey imports an RSA public key from a (possibly mangled) PEM
// string, accepting both PKIX and PKCS1 encodings.
func parsePublicKey(raw string) (*rsa.PublicKey, error) {
	normalized, err := NormalizePEM(raw)
	if err != nil {
		return nil, err
	}
	blockDer, _ := pem.Decode([]byte(normalized))
	if blockDer == nil {
		return nil, ErrPubKeyFormat
	}

	if pub, err := x509.ParsePKIXPublicKey(blockDer.Bytes); err == nil {
		if rsaPub, ok := pub.(*rsa.PublicKey); ok {
			return rsaPub, nil
		}
		return nil, ErrPubKeyFormat
	}
	if rsaPub, err := x509.ParsePKCS1PublicKey(blockDer.Bytes); err == nil {
		return rsaPub, nil
	}
	return nil, ErrPubKeyFormat
}

// BuildSessionEnvelope mints a fresh session key and IV, RSA-OAEP-SHA256
// encrypts the 48-byte key||iv blob under the client's public key, and
// returns the base64 header value together with the session key for body
// encryption.
func BuildSessionEnvelope(clientPublicKeyPEM string) (string, SessionKey, error) {
	pub, err := parsePublicKey(clientPublicKeyPEM)
	if err != nil {
		return "", SessionKey{}, err
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", SessionKey{}, fmt.Errorf("failed to generate session key: %w", err)
	}
	iv := make([]byte, FileIVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", SessionKey{}, fmt.Errorf("failed to generate session IV: %w", err)
	}

	blob := make([]byte, 0, KeySize+FileIVSize)
	blob = append(blob, key...)
	blob = append(blob, iv...)

	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, blob, nil)
	if err != nil {
		return "", SessionKey{}, fmt.Errorf("failed to encrypt session envelope: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ct), SessionKey{Key: key, IV: iv}, nil
}

// OpenSessionEnvelope is the client half of the envelope: RSA-OAEP-SHA256
// decrypt of the header value into the session key and IV. Used by tests and
// diagnostic tooling; the server never calls it.
func OpenSessionEnvelope(priv *rsa.PrivateKey, headerB64 string) (SessionKey, error) {
	ct, err := base64.StdEncoding.DecodeString(headerB64)
	if err != nil {
		return SessionKey{}, fmt.Errorf("invalid envelope header: %w", err)
	}
	blob, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ct, nil)
	if err != nil {
		return SessionKey{}, fmt.Errorf("failed to decrypt session envelope: %w", err)
	}
	if len(blob) != KeySize+FileIVSize {
		return SessionKey{}, fmt.Errorf("envelope blob must be %d bytes, got %d", KeySize+FileIVSize, len(blob))
	}
	return SessionKey{Key: blob[:KeySize], IV: blob[KeySize:]}, nil
}
