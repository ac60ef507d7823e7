package chains

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// SolanaVerifier checks a detached ed25519 signature over the challenge
// payload. The address is the base58-encoded public key itself.
type SolanaVerifier struct{}

func NewSolanaVerifier() *SolanaVerifier { return &SolanaVerifier{} }

func (v *SolanaVerifier) Family() string { return "solana" }

func (v *SolanaVerifier) NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if len(base58.Decode(address)) != ed25519.PublicKeySize {
		return "", ErrInvalidAddressFormat
	}
	return address, nil
}

func (v *SolanaVerifier) Verify(claimedAddress, proof string, ch Challenge) (Result, error) {
	normalized, err := v.NormalizeAddress(claimedAddress)
	if err != nil {
		return Result{}, err
	}
	pub := ed25519.PublicKey(base58.Decode(normalized))

	sig := decodeDetachedSignature(proof)
	if sig == nil {
		return Result{}, ErrSignatureMismatch
	}

	// Link proofs sign the challenge token itself; sign-in proofs sign the
	// canonical challenge message.
	message := ch.Token
	if message == "" {
		message = CanonicalMessage(ch)
	}
	if !ed25519.Verify(pub, []byte(message), sig) {
		return Result{}, ErrSignatureMismatch
	}
	return Result{OK: true, NormalizedAddress: normalized}, nil
}

// decodeDetachedSignature accepts base64 (wallet adapters) or base58
// (CLI tooling) encodings of a 64-byte signature.
func decodeDetachedSignature(proof string) []byte {
	if b, err := base64.StdEncoding.DecodeString(proof); err == nil && len(b) == ed25519.SignatureSize {
		return b
	}
	if b := base58.Decode(proof); len(b) == ed25519.SignatureSize {
		return b
	}
	return nil
}
