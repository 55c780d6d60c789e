package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomHexKey(t *testing.T) string {
	t.Helper()
	buf := make([]byte, keySize)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return hex.EncodeToString(buf)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := NewFromHexKey(randomHexKey(t))
	require.NoError(t, err)

	cases := []string{"", "hello world", "p@ssw0rd!", string(make([]byte, 1024))}
	for _, c := range cases {
		ciphertext, err := svc.EncryptString(c)
		require.NoError(t, err)

		plaintext, err := svc.DecryptString(ciphertext)
		require.NoError(t, err)
		require.Equal(t, c, plaintext)
	}
}

func TestEncryptProducesFreshNonceEachTime(t *testing.T) {
	svc, err := NewFromHexKey(randomHexKey(t))
	require.NoError(t, err)

	a, err := svc.EncryptString("same plaintext")
	require.NoError(t, err)
	b, err := svc.EncryptString("same plaintext")
	require.NoError(t, err)

	require.NotEqual(t, a, b, "two encryptions of the same plaintext must differ (fresh nonce)")
}

func TestDecryptFailsWithWrongKey(t *testing.T) {
	svcA, err := NewFromHexKey(randomHexKey(t))
	require.NoError(t, err)
	svcB, err := NewFromHexKey(randomHexKey(t))
	require.NoError(t, err)

	ciphertext, err := svcA.EncryptString("secret")
	require.NoError(t, err)

	_, err = svcB.DecryptString(ciphertext)
	require.Error(t, err)
}

func TestDecryptParamReturnsTypedError(t *testing.T) {
	svcA, err := NewFromHexKey(randomHexKey(t))
	require.NoError(t, err)
	svcB, err := NewFromHexKey(randomHexKey(t))
	require.NoError(t, err)

	ciphertext, err := svcA.EncryptString("secret")
	require.NoError(t, err)

	_, err = svcB.DecryptParam("svc-1", "password", ciphertext)
	require.Error(t, err)
	require.Contains(t, err.Error(), "svc-1")
	require.Contains(t, err.Error(), "password")
}

func TestNewFromPassphraseIsDeterministic(t *testing.T) {
	svcA, err := NewFromPassphrase("correct horse battery staple")
	require.NoError(t, err)
	svcB, err := NewFromPassphrase("correct horse battery staple")
	require.NoError(t, err)

	ciphertext, err := svcA.EncryptString("hello")
	require.NoError(t, err)
	plaintext, err := svcB.DecryptString(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "hello", plaintext)
}
