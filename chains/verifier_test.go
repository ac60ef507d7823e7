package chains

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryChains(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())

	assert.Equal(t, []string{"algorand", "base", "ethereum", "polygon", "solana"}, r.Chains())
	assert.True(t, r.Supported("BASE"))
	assert.False(t, r.Supported("dogecoin"))

	_, err := r.NormalizeAddress("dogecoin", "whatever")
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestRegistryEnforcesExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock)

	ch := evmChallenge()
	ch.IssuedAt = clock.Now()
	ch.ExpiresAt = clock.Now().Add(5 * time.Minute)
	address, proof := signEVM(t, ch)

	_, err := r.Verify("base", address, proof, ch)
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	_, err = r.Verify("base", address, proof, ch)
	assert.ErrorIs(t, err, ErrChallengeExpired)

	_, err = r.Verify("dogecoin", address, proof, ch)
	assert.ErrorIs(t, err, ErrUnknownChain)
}
