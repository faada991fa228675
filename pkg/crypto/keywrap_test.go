package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	master := testMasterKey(t)
	dataKey, _, err := GenerateDataKey()
	require.NoError(t, err)

	wk, err := WrapKey(master, dataKey)
	require.NoError(t, err)

	// Storage form: iv_hex ':' ciphertext_hex, tag separate.
	parts := strings.SplitN(wk.Blob, ":", 2)
	require.Len(t, parts, 2)
	iv, err := hex.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Len(t, iv, WrapIVSize)
	tag, err := hex.DecodeString(wk.Tag)
	require.NoError(t, err)
	assert.Len(t, tag, GCMTagSize)

	got, err := UnwrapKey(master, wk)
	require.NoError(t, err)
	assert.Equal(t, dataKey, got)
}

// flipBit flips one bit inside a hex string while keeping it valid hex.
func flipBit(t *testing.T, hexStr string, byteIdx int) string {
	t.Helper()
	raw, err := hex.DecodeString(hexStr)
	require.NoError(t, err)
	raw[byteIdx] ^= 0x01
	return hex.EncodeToString(raw)
}

func TestUnwrapDetectsCorruption(t *testing.T) {
	master := testMasterKey(t)
	dataKey, _, err := GenerateDataKey()
	require.NoError(t, err)

	wk, err := WrapKey(master, dataKey)
	require.NoError(t, err)
	parts := strings.SplitN(wk.Blob, ":", 2)

	tests := []struct {
		name   string
		mutate func() WrappedKey
	}{
		{"corrupt wrap IV", func() WrappedKey {
			return WrappedKey{Blob: flipBit(t, parts[0], 0) + ":" + parts[1], Tag: wk.Tag}
		}},
		{"corrupt ciphertext", func() WrappedKey {
			return WrappedKey{Blob: parts[0] + ":" + flipBit(t, parts[1], 3), Tag: wk.Tag}
		}},
		{"corrupt tag", func() WrappedKey {
			return WrappedKey{Blob: wk.Blob, Tag: flipBit(t, wk.Tag, 7)}
		}},
		{"missing separator", func() WrappedKey {
			return WrappedKey{Blob: parts[0] + parts[1], Tag: wk.Tag}
		}},
		{"garbage blob", func() WrappedKey {
			return WrappedKey{Blob: "nothex:alsonothex", Tag: wk.Tag}
		}},
		{"empty tag", func() WrappedKey {
			return WrappedKey{Blob: wk.Blob, Tag: ""}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnwrapKey(master, tt.mutate())
			assert.ErrorIs(t, err, ErrKeyUnwrap)
		})
	}
}

func TestUnwrapWrongMasterKey(t *testing.T) {
	master := testMasterKey(t)
	dataKey, _, err := GenerateDataKey()
	require.NoError(t, err)

	wk, err := WrapKey(master, dataKey)
	require.NoError(t, err)

	_, err = UnwrapKey(testMasterKey(t), wk)
	assert.ErrorIs(t, err, ErrKeyUnwrap)
}

func TestWrapFreshIVPerCall(t *testing.T) {
	master := testMasterKey(t)
	dataKey, _, err := GenerateDataKey()
	require.NoError(t, err)

	wk1, err := WrapKey(master, dataKey)
	require.NoError(t, err)
	wk2, err := WrapKey(master, dataKey)
	require.NoError(t, err)

	assert.NotEqual(t, wk1.Blob, wk2.Blob)
}
