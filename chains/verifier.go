// Package chains proves that a caller controls a blockchain address. It is
// the single polymorphism point over chain families: callers go through the
// Registry and never branch on chain anywhere else.
package chains

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrUnknownChain           = errors.New("unknown chain")
	ErrInvalidAddressFormat   = errors.New("invalid address format")
	ErrSignatureMismatch      = errors.New("signature mismatch")
	ErrChallengeExpired       = errors.New("challenge expired")
	ErrChallengeOwnerMismatch = errors.New("challenge owner mismatch")
)

// Challenge is the payload a proof is checked against. For sign-in flows it
// carries the stored nonce; for cross-chain linking it carries the
// self-contained challenge token and the profile it was bound to.
type Challenge struct {
	Nonce     string
	Statement string
	Domain    string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Link-challenge fields.
	ProfileID string
	Token     string
}

// Result is the shared outcome shape for every chain family.
type Result struct {
	OK                bool
	NormalizedAddress string
}

// Verifier validates a claimed address's proof of control over a challenge
// for one chain family.
type Verifier interface {
	Family() string
	NormalizeAddress(address string) (string, error)
	Verify(claimedAddress, proof string, ch Challenge) (Result, error)
}

// Registry maps chain tags to the verifier for their family. Adding a chain
// is a registry entry, not a deeper branch.
type Registry struct {
	clock   clockwork.Clock
	byChain map[string]Verifier
}

func NewRegistry(clock clockwork.Clock) *Registry {
	r := &Registry{clock: clock, byChain: make(map[string]Verifier)}

	evm := NewEVMVerifier()
	for _, tag := range []string{"ethereum", "base", "polygon"} {
		r.Register(tag, evm)
	}
	r.Register("algorand", NewAlgorandVerifier())
	r.Register("solana", NewSolanaVerifier())
	return r
}

func (r *Registry) Register(chain string, v Verifier) {
	r.byChain[strings.ToLower(chain)] = v
}

func (r *Registry) Supported(chain string) bool {
	_, ok := r.byChain[strings.ToLower(chain)]
	return ok
}

func (r *Registry) Chains() []string {
	out := make([]string, 0, len(r.byChain))
	for chain := range r.byChain {
		out = append(out, chain)
	}
	sort.Strings(out)
	return out
}

// NormalizeAddress canonicalizes an address for the given chain tag.
func (r *Registry) NormalizeAddress(chain, address string) (string, error) {
	v, ok := r.byChain[strings.ToLower(chain)]
	if !ok {
		return "", ErrUnknownChain
	}
	return v.NormalizeAddress(address)
}

// Verify dispatches to the chain family's verifier. Expiry is enforced here
// so no variant can forget it: an expired challenge fails regardless of
// signature correctness.
func (r *Registry) Verify(chain, claimedAddress, proof string, ch Challenge) (Result, error) {
	v, ok := r.byChain[strings.ToLower(chain)]
	if !ok {
		return Result{}, ErrUnknownChain
	}
	if !ch.ExpiresAt.IsZero() && r.clock.Now().After(ch.ExpiresAt) {
		return Result{}, ErrChallengeExpired
	}
	return v.Verify(claimedAddress, proof, ch)
}
