package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	return priv, pemStr
}

func TestNormalizePEMTolerance(t *testing.T) {
	_, standard := testRSAKey(t)
	body := strings.ReplaceAll(standard, pemHeader, "")
	body = strings.ReplaceAll(body, pemFooter, "")
	singleLine := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, body)

	tests := []struct {
		name string
		in   string
	}{
		{"standard multiline", standard},
		{"escaped newlines", strings.ReplaceAll(standard, "\n", `\n`)},
		{"headerless single line", singleLine},
		{"double quoted", `"` + strings.ReplaceAll(standard, "\n", `\n`) + `"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, err := NormalizePEM(tt.in)
			require.NoError(t, err)

			// Normalized output parses as a standard PEM public key.
			blockDer, _ := pem.Decode([]byte(normalized))
			require.NotNil(t, blockDer)
			_, err = x509.ParsePKIXPublicKey(blockDer.Bytes)
			require.NoError(t, err)

			// Body lines are wrapped at 64 characters.
			for _, line := range strings.Split(strings.TrimSpace(normalized), "\n") {
				assert.LessOrEqual(t, len(line), 64)
			}
		})
	}
}

func TestNormalizePEMRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not base64 at all!!!", `""`} {
		_, err := NormalizePEM(in)
		assert.ErrorIs(t, err, ErrPubKeyFormat, "input %q", in)
	}
}

func TestBuildSessionEnvelopeInvalidKey(t *testing.T) {
	_, _, err := BuildSessionEnvelope("QUJDRA==") // valid base64, not a key
	assert.ErrorIs(t, err, ErrPubKeyFormat)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	priv, pubPEM := testRSAKey(t)
	plaintext := bytes.Repeat([]byte("secure artifact bytes "), 1000)

	headerB64, sk, err := BuildSessionEnvelope(pubPEM)
	require.NoError(t, err)

	// Server side: stream the artifact through the session cipher.
	var body bytes.Buffer
	enc, err := sk.Encrypter(&body)
	require.NoError(t, err)
	_, err = io.Copy(enc, bytes.NewReader(plaintext))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	// Client side: decrypt header with the private key, then the body.
	clientSK, err := OpenSessionEnvelope(priv, headerB64)
	require.NoError(t, err)
	assert.Equal(t, sk.Key, clientSK.Key)
	assert.Equal(t, sk.IV, clientSK.IV)

	dec, err := clientSK.Decrypter(&body)
	require.NoError(t, err)
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEnvelopeHeaderIsBase64RSABlock(t *testing.T) {
	_, pubPEM := testRSAKey(t)
	headerB64, _, err := BuildSessionEnvelope(pubPEM)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(headerB64)
	require.NoError(t, err)
	// 2048-bit RSA ciphertext is exactly 256 bytes.
	assert.Len(t, raw, 256)
}

func TestEnvelopeFreshKeysPerRequest(t *testing.T) {
	_, pubPEM := testRSAKey(t)

	_, sk1, err := BuildSessionEnvelope(pubPEM)
	require.NoError(t, err)
	_, sk2, err := BuildSessionEnvelope(pubPEM)
	require.NoError(t, err)

	assert.NotEqual(t, sk1.Key, sk2.Key)
	assert.NotEqual(t, sk1.IV, sk2.IV)
}
