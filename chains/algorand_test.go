package chains

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedNoteTxn builds a signed zero-amount transaction carrying note as
// proof of control, the way wallet link flows do.
func signedNoteTxn(t *testing.T, note string) (addr types.Address, proof string, priv ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	copy(addr[:], pub)

	txn := types.Transaction{
		Type: types.PaymentTx,
		Header: types.Header{
			Sender: addr,
			Note:   []byte(note),
		},
	}
	sig := ed25519.Sign(priv, append([]byte("TX"), msgpack.Encode(txn)...))

	stx := types.SignedTxn{Txn: txn}
	copy(stx.Sig[:], sig)
	return addr, base64.StdEncoding.EncodeToString(msgpack.Encode(stx)), priv
}

func TestAlgorandNormalizeAddress(t *testing.T) {
	v := NewAlgorandVerifier()
	addr, _, _ := signedNoteTxn(t, "x")

	normalized, err := v.NormalizeAddress(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr.String(), normalized)

	_, err = v.NormalizeAddress("not-an-algorand-address")
	assert.ErrorIs(t, err, ErrInvalidAddressFormat)
}

func TestAlgorandVerify(t *testing.T) {
	v := NewAlgorandVerifier()
	addr, proof, _ := signedNoteTxn(t, "challenge-token-123")

	result, err := v.Verify(addr.String(), proof, Challenge{Token: "challenge-token-123"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, addr.String(), result.NormalizedAddress)

	// Sign-in proofs bind through the nonce instead of a link token.
	result, err = v.Verify(addr.String(), proof, Challenge{Nonce: "challenge-token-123"})
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestAlgorandVerifyRejects(t *testing.T) {
	v := NewAlgorandVerifier()
	addr, proof, _ := signedNoteTxn(t, "challenge-token-123")

	t.Run("wrong challenge token in note", func(t *testing.T) {
		_, err := v.Verify(addr.String(), proof, Challenge{Token: "a-different-token"})
		assert.ErrorIs(t, err, ErrChallengeOwnerMismatch)
	})

	t.Run("sign-in proof must carry the issued nonce", func(t *testing.T) {
		// A validly signed transaction lifted off the public ledger must
		// not authenticate: its note does not reference the fresh nonce.
		replayAddr, replayProof, _ := signedNoteTxn(t, "totally unrelated payment")
		_, err := v.Verify(replayAddr.String(), replayProof, Challenge{Nonce: "fresh-server-nonce"})
		assert.ErrorIs(t, err, ErrChallengeOwnerMismatch)
	})

	t.Run("challenge without any binding value", func(t *testing.T) {
		_, err := v.Verify(addr.String(), proof, Challenge{})
		assert.ErrorIs(t, err, ErrChallengeOwnerMismatch)
	})

	t.Run("sender is not the claimed address", func(t *testing.T) {
		other, _, _ := signedNoteTxn(t, "challenge-token-123")
		_, err := v.Verify(other.String(), proof, Challenge{Token: "challenge-token-123"})
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("tampered note breaks the signature", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(proof)
		require.NoError(t, err)
		var stx types.SignedTxn
		require.NoError(t, msgpack.Decode(raw, &stx))
		stx.Txn.Note = []byte("a-different-token")

		tampered := base64.StdEncoding.EncodeToString(msgpack.Encode(stx))
		_, err = v.Verify(addr.String(), tampered, Challenge{Token: "a-different-token"})
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := v.Verify(addr.String(), "%%%", Challenge{})
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})
}
