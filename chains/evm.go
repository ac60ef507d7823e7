package chains

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EVMVerifier recovers the signing address from an EIP-191 personal-message
// signature over the canonical challenge text and compares it against the
// claimed address after EIP-55 normalization.
type EVMVerifier struct{}

func NewEVMVerifier() *EVMVerifier { return &EVMVerifier{} }

func (v *EVMVerifier) Family() string { return "evm" }

func (v *EVMVerifier) NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", ErrInvalidAddressFormat
	}
	return common.HexToAddress(address).Hex(), nil
}

// CanonicalMessage is the exact text wallets sign. Clients and server must
// produce byte-identical output, so field order and formatting are fixed.
func CanonicalMessage(ch Challenge) string {
	return fmt.Sprintf(
		"%s wants you to sign in.\n\n%s\n\nNonce: %s\nIssued At: %s\nExpiration Time: %s",
		ch.Domain,
		ch.Statement,
		ch.Nonce,
		ch.IssuedAt.UTC().Format(time.RFC3339),
		ch.ExpiresAt.UTC().Format(time.RFC3339),
	)
}

func (v *EVMVerifier) Verify(claimedAddress, proof string, ch Challenge) (Result, error) {
	normalized, err := v.NormalizeAddress(claimedAddress)
	if err != nil {
		return Result{}, err
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(proof, "0x"))
	if err != nil || len(sig) != crypto.SignatureLength {
		return Result{}, ErrSignatureMismatch
	}
	// Wallets return the recovery id as 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	msg := CanonicalMessage(ch)
	digest := crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)))

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Result{}, ErrSignatureMismatch
	}
	if !strings.EqualFold(crypto.PubkeyToAddress(*pub).Hex(), normalized) {
		return Result{}, ErrSignatureMismatch
	}
	return Result{OK: true, NormalizedAddress: normalized}, nil
}
