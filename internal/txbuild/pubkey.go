// Package txbuild constructs, signs, and serializes bonding-curve buy and
// sell transactions. The buy path clones the account list of an observed
// valid instruction and mutates only the signer and buyer token-account
// slots, so program-specific relationships are borrowed from live state
// instead of re-derived.
package txbuild

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Pubkey is a 32-byte Solana public key.
type Pubkey [32]byte

// ErrInvalidPubkey is returned for malformed base58 input.
var ErrInvalidPubkey = errors.New("txbuild: invalid pubkey")

// PubkeyFromBase58 parses a base58-encoded public key.
func PubkeyFromBase58(s string) (Pubkey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("%w: %s", ErrInvalidPubkey, s)
	}
	if len(raw) != 32 {
		return Pubkey{}, fmt.Errorf("%w: %d bytes", ErrInvalidPubkey, len(raw))
	}
	var p Pubkey
	copy(p[:], raw)
	return p, nil
}

// MustPubkey parses a base58 public key and panics on failure. For
// compile-time constants only.
func MustPubkey(s string) Pubkey {
	p, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the base58 encoding.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether the key is all zeroes.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// isOnCurve reports whether the bytes decode to a valid ed25519 curve point.
// Program-derived addresses must NOT lie on the curve, so no private key can
// exist for them.
func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress derives an address from seeds and a program ID.
// Fails if the resulting point lies on the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, program Pubkey) (Pubkey, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > 32 {
			return Pubkey{}, errors.New("txbuild: seed exceeds 32 bytes")
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte("ProgramDerivedAddress"))
	sum := h.Sum(nil)

	if isOnCurve(sum) {
		return Pubkey{}, errors.New("txbuild: derived address on curve")
	}
	var p Pubkey
	copy(p[:], sum)
	return p, nil
}

// FindProgramAddress finds the first valid program-derived address by
// walking the bump seed down from 255.
func FindProgramAddress(seeds [][]byte, program Pubkey) (Pubkey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		p, err := CreateProgramAddress(append(seeds, []byte{byte(bump)}), program)
		if err == nil {
			return p, uint8(bump), nil
		}
	}
	return Pubkey{}, 0, errors.New("txbuild: no viable bump seed")
}

// AssociatedTokenAddress derives the wallet's associated token account for a
// mint under the given token program variant.
func AssociatedTokenAddress(wallet, mint, tokenProgram Pubkey) (Pubkey, error) {
	p, _, err := FindProgramAddress(
		[][]byte{wallet[:], tokenProgram[:], mint[:]},
		AssociatedTokenProgram,
	)
	return p, err
}
