package solana

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte account address.
type PublicKey [32]byte

// ParsePublicKey decodes a base58 account address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("invalid public key %q: %w", s, err)
	}
	if len(raw) != len(pk) {
		return pk, fmt.Errorf("invalid public key length: want 32 bytes, got %d", len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsOnCurve reports whether the key is a valid ed25519 point. Program
// derived addresses must be off-curve so no private key can exist for them.
func (pk PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

const pdaMarker = "ProgramDerivedAddress"

// CreateProgramAddress hashes seeds with the program id and the PDA marker.
// Fails if the result lands on the curve.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > 32 {
			return PublicKey{}, fmt.Errorf("seed exceeds 32 bytes")
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var pk PublicKey
	copy(pk[:], h.Sum(nil))
	if pk.IsOnCurve() {
		return PublicKey{}, fmt.Errorf("derived address is on curve")
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 downward for a valid
// off-curve derived address. Deterministic for a given seed set and program.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		candidate := make([][]byte, len(seeds), len(seeds)+1)
		copy(candidate, seeds)
		candidate = append(candidate, []byte{uint8(bump)})
		pk, err := CreateProgramAddress(candidate, programID)
		if err == nil {
			return pk, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, fmt.Errorf("no viable bump seed found")
}

// Equal reports byte equality.
func (pk PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(pk[:], other[:])
}
