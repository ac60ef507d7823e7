package chains

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// AlgorandVerifier checks a signed transaction as proof of control: the
// transaction must be signed by the claimed address and must carry the
// issued challenge value (link token or sign-in nonce) in its note field.
// Address format is validated (base32 + checksum) before any signature work.
type AlgorandVerifier struct{}

func NewAlgorandVerifier() *AlgorandVerifier { return &AlgorandVerifier{} }

func (v *AlgorandVerifier) Family() string { return "algorand" }

func (v *AlgorandVerifier) NormalizeAddress(address string) (string, error) {
	addr, err := types.DecodeAddress(strings.ToUpper(strings.TrimSpace(address)))
	if err != nil {
		return "", ErrInvalidAddressFormat
	}
	return addr.String(), nil
}

func (v *AlgorandVerifier) Verify(claimedAddress, proof string, ch Challenge) (Result, error) {
	normalized, err := v.NormalizeAddress(claimedAddress)
	if err != nil {
		return Result{}, err
	}
	addr, err := types.DecodeAddress(normalized)
	if err != nil {
		return Result{}, ErrInvalidAddressFormat
	}

	raw, err := base64.StdEncoding.DecodeString(proof)
	if err != nil {
		return Result{}, ErrSignatureMismatch
	}

	var stx types.SignedTxn
	if err := msgpack.Decode(raw, &stx); err != nil {
		return Result{}, ErrSignatureMismatch
	}
	if stx.Txn.Sender != addr {
		return Result{}, ErrSignatureMismatch
	}
	// The note must carry the exact challenge issued for this request: the
	// link-challenge token for linking, the nonce for sign-in. Signed
	// transactions are public ledger data, so a proof that is not bound to
	// the issued challenge is replayable by anyone.
	bound := ch.Token
	if bound == "" {
		bound = ch.Nonce
	}
	if bound == "" || !strings.Contains(string(stx.Txn.Note), bound) {
		return Result{}, ErrChallengeOwnerMismatch
	}

	toVerify := append([]byte("TX"), msgpack.Encode(stx.Txn)...)
	if !ed25519.Verify(ed25519.PublicKey(addr[:]), toVerify, stx.Sig[:]) {
		return Result{}, ErrSignatureMismatch
	}
	return Result{OK: true, NormalizedAddress: normalized}, nil
}
