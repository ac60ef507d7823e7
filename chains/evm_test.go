package chains

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evmChallenge() Challenge {
	issued := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	return Challenge{
		Nonce:     "deadbeefcafe",
		Statement: "Sign this message to verify you own this wallet.",
		Domain:    "play.localhost",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(5 * time.Minute),
	}
}

func signEVM(t *testing.T, ch Challenge) (address, proof string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	msg := CanonicalMessage(ch)
	digest := crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)))
	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)

	return crypto.PubkeyToAddress(key.PublicKey).Hex(), "0x" + hex.EncodeToString(sig)
}

func TestEVMVerify(t *testing.T) {
	v := NewEVMVerifier()
	ch := evmChallenge()
	address, proof := signEVM(t, ch)

	result, err := v.Verify(address, proof, ch)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, address, result.NormalizedAddress)
}

func TestEVMVerifyWalletRecoveryID(t *testing.T) {
	// Browser wallets report the recovery id as 27/28.
	v := NewEVMVerifier()
	ch := evmChallenge()
	address, proof := signEVM(t, ch)

	sig, err := hex.DecodeString(proof[2:])
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	result, err := v.Verify(address, "0x"+hex.EncodeToString(sig), ch)
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestEVMVerifyCaseInsensitiveAddress(t *testing.T) {
	v := NewEVMVerifier()
	ch := evmChallenge()
	address, proof := signEVM(t, ch)

	result, err := v.Verify(strings.ToLower(address), proof, ch)
	require.NoError(t, err)
	// EIP-55 checksum casing comes back regardless of input casing.
	assert.Equal(t, address, result.NormalizedAddress)
}

func TestEVMVerifyMismatch(t *testing.T) {
	v := NewEVMVerifier()
	ch := evmChallenge()
	address, proof := signEVM(t, ch)

	t.Run("signature over different message", func(t *testing.T) {
		other := ch
		other.Nonce = "someothernonce"
		_, err := v.Verify(address, proof, other)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("different signer", func(t *testing.T) {
		otherAddr, _ := signEVM(t, ch)
		_, err := v.Verify(otherAddr, proof, ch)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("garbage proof", func(t *testing.T) {
		_, err := v.Verify(address, "0x1234", ch)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("bad address", func(t *testing.T) {
		_, err := v.Verify("not-an-address", proof, ch)
		assert.ErrorIs(t, err, ErrInvalidAddressFormat)
	})
}
