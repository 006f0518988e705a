package archivecrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, alg Algorithm, n int) {
	t.Helper()
	enc, err := Init(alg, []byte("correct horse battery staple"))
	require.NoError(t, err)
	dec, err := Init(alg, []byte("correct horse battery staple"))
	require.NoError(t, err)

	enc.Reset(12345)
	dec.Reset(12345)

	plain := make([]byte, n)
	for i := range plain {
		plain[i] = byte(i * 7 % 251)
	}
	buf := append([]byte(nil), plain...)

	require.NoError(t, enc.Encrypt(buf))
	if n > 0 {
		assert.NotEqual(t, plain, buf, "ciphertext should differ from plaintext for alg=%s n=%d", alg, n)
	}
	assert.Equal(t, len(plain), len(buf), "CTS must not expand ciphertext")

	require.NoError(t, dec.Decrypt(buf))
	assert.Equal(t, plain, buf, "round trip mismatch for alg=%s n=%d", alg, n)
}

func TestCBCCTSRoundTripAllLengths(t *testing.T) {
	algs := []Algorithm{AlgorithmAES128, AlgorithmAES256, AlgorithmCAST5, AlgorithmBlowfish, Algorithm3DES, AlgorithmTwofish128}
	for _, alg := range algs {
		bs, err := KeyLength(alg)
		require.NoError(t, err)
		_ = bs
		for _, n := range []int{0, 3, 8, 15, 16, 17, 31, 32, 33, 100} {
			roundTrip(t, alg, n)
		}
	}
}

func TestInitRejectsEmptyPassword(t *testing.T) {
	_, err := Init(AlgorithmAES128, nil)
	assert.Error(t, err)
}

func TestNoneAlgorithmIsNoop(t *testing.T) {
	s, err := Init(AlgorithmNone, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.BlockLength())
	buf := []byte("unchanged")
	orig := append([]byte(nil), buf...)
	require.NoError(t, s.Encrypt(buf))
	assert.Equal(t, orig, buf)
}

func TestRSASessionKeyWrapUnwrap(t *testing.T) {
	pair, err := CreateKeyPair(2048)
	require.NoError(t, err)

	sessionKey, err := GenerateSessionKey(32)
	require.NoError(t, err)

	wrapped, err := WrapSessionKey(pair.Public, sessionKey)
	require.NoError(t, err)

	unwrapped, err := UnwrapSessionKey(pair.Private, wrapped)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, unwrapped)
}

func TestRSAWrongPrivateKeyFails(t *testing.T) {
	pair, err := CreateKeyPair(2048)
	require.NoError(t, err)
	other, err := CreateKeyPair(2048)
	require.NoError(t, err)

	sessionKey, err := GenerateSessionKey(32)
	require.NoError(t, err)
	wrapped, err := WrapSessionKey(pair.Public, sessionKey)
	require.NoError(t, err)

	_, err = UnwrapSessionKey(other.Private, wrapped)
	assert.Error(t, err)
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	pair, err := CreateKeyPair(2048)
	require.NoError(t, err)
	pemBytes, err := WritePublicKey(pair.Public)
	require.NoError(t, err)
	got, err := ReadPublicKey(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, pair.Public.N, got.N)
}
