package chains

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solanaKeypair(t *testing.T) (address string, priv ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(pub), priv
}

func TestSolanaNormalizeAddress(t *testing.T) {
	v := NewSolanaVerifier()
	address, _ := solanaKeypair(t)

	normalized, err := v.NormalizeAddress("  " + address + " ")
	require.NoError(t, err)
	assert.Equal(t, address, normalized)

	_, err = v.NormalizeAddress("tooshort")
	assert.ErrorIs(t, err, ErrInvalidAddressFormat)
}

func TestSolanaVerifyLinkProof(t *testing.T) {
	v := NewSolanaVerifier()
	address, priv := solanaKeypair(t)

	token := "link-challenge-token"
	sig := ed25519.Sign(priv, []byte(token))

	t.Run("base64 signature", func(t *testing.T) {
		result, err := v.Verify(address, base64.StdEncoding.EncodeToString(sig), Challenge{Token: token})
		require.NoError(t, err)
		assert.True(t, result.OK)
	})

	t.Run("base58 signature", func(t *testing.T) {
		result, err := v.Verify(address, base58.Encode(sig), Challenge{Token: token})
		require.NoError(t, err)
		assert.True(t, result.OK)
	})

	t.Run("wrong token", func(t *testing.T) {
		_, err := v.Verify(address, base64.StdEncoding.EncodeToString(sig), Challenge{Token: "other"})
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, _ := solanaKeypair(t)
		_, err := v.Verify(other, base64.StdEncoding.EncodeToString(sig), Challenge{Token: token})
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})
}

func TestSolanaVerifySignInMessage(t *testing.T) {
	v := NewSolanaVerifier()
	address, priv := solanaKeypair(t)

	ch := evmChallenge() // same canonical message shape across chains
	sig := ed25519.Sign(priv, []byte(CanonicalMessage(ch)))

	result, err := v.Verify(address, base64.StdEncoding.EncodeToString(sig), ch)
	require.NoError(t, err)
	assert.True(t, result.OK)
}
