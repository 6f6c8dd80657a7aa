package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test vector key, never used outside tests.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "correct horse")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "right")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptRejectsBadKey(t *testing.T) {
	_, err := EncryptKey("not-hex", "pw")
	assert.Error(t, err)

	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err, "short key must be rejected")

	_, err = EncryptKey(testKeyHex, "")
	assert.Error(t, err, "empty password must be rejected")
}

func TestLoadKeyResolutionOrder(t *testing.T) {
	// Raw key wins.
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, EncryptedKeyPath: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	// Encrypted file path.
	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	// Nothing configured.
	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestSignerAddressAndSignature(t *testing.T) {
	s, err := NewSigner(testKeyHex, 137)
	require.NoError(t, err)
	// Address of the vector key is fixed.
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", s.Address().Hex())

	sig, err := s.SignAnchor(AnchorPayload{
		BondID:    "bond-1",
		Event:     "bond_matured",
		Digest:    [32]byte{1, 2, 3},
		Timestamp: 1700000000,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, sig, 2+65*2)

	// Same payload signs identically; a different payload does not.
	again, err := s.SignAnchor(AnchorPayload{
		BondID:    "bond-1",
		Event:     "bond_matured",
		Digest:    [32]byte{1, 2, 3},
		Timestamp: 1700000000,
	})
	require.NoError(t, err)
	assert.Equal(t, sig, again)

	other, err := s.SignAnchor(AnchorPayload{BondID: "bond-2", Event: "bond_matured", Timestamp: 1700000000})
	require.NoError(t, err)
	assert.NotEqual(t, sig, other)
}

func TestWebhookAuthVerify(t *testing.T) {
	w := &WebhookAuth{Secret: "shhh"}

	headers := w.HeadersAt("bond_issued", `{"bond_id":"b1"}`, 1700000000)
	assert.Equal(t, "1700000000", headers["X-IPBond-Timestamp"])
	assert.Equal(t, "bond_issued", headers["X-IPBond-Event"])

	ok := w.Verify("bond_issued", `{"bond_id":"b1"}`, headers["X-IPBond-Timestamp"], headers["X-IPBond-Signature"])
	assert.True(t, ok)

	ok = w.Verify("bond_issued", `{"bond_id":"tampered"}`, headers["X-IPBond-Timestamp"], headers["X-IPBond-Signature"])
	assert.False(t, ok)
}

func TestWebhookAuthStringRedacts(t *testing.T) {
	w := &WebhookAuth{Secret: "supersecretvalue"}
	assert.NotContains(t, w.String(), "secretvalue")
}
