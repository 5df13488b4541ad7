package signer

import (
	"crypto/ed25519"
	"os"

	"aetherlock-backend/core/escrow"

	"github.com/mr-tron/base58"
)

// EnvPrivateKey is the environment variable holding the base58-encoded
// 64-byte signing secret.
const EnvPrivateKey = "AI_AGENT_PRIVATE_KEY"

// Signer holds the oracle's long-lived attestation key. The key is loaded
// once at process start and shared read-only across all pipelines.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewFromEnv loads the signing key from the environment. A missing or
// malformed key is fatal at startup, never deferred to request time.
func NewFromEnv() (*Signer, error) {
	raw := os.Getenv(EnvPrivateKey)
	if raw == "" {
		return nil, escrow.MissingSigningKeyError{Reason: EnvPrivateKey + " not set"}
	}
	return NewFromBase58(raw)
}

// NewFromBase58 builds a signer from a base58-encoded 64-byte secret key
// (seed followed by public key, nacl layout).
func NewFromBase58(encoded string) (*Signer, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, escrow.MissingSigningKeyError{Reason: "key is not valid base58"}
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, escrow.MissingSigningKeyError{Reason: "key must decode to 64 bytes"}
	}
	priv := ed25519.PrivateKey(raw)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign builds the canonical attestation message and signs it. Deterministic:
// identical inputs under the same key always produce identical signature
// bytes.
func (s *Signer) Sign(id escrow.ID, result bool, digest [32]byte, timestamp int64) *escrow.Attestation {
	msg := escrow.VerificationMessage(id, result, digest, timestamp)

	att := &escrow.Attestation{
		EscrowID:  id,
		Result:    result,
		Digest:    digest,
		Timestamp: timestamp,
		Message:   msg,
	}
	copy(att.Signature[:], ed25519.Sign(s.priv, msg))
	copy(att.PublicKey[:], s.pub)
	return att
}

// PublicKey returns the raw 32-byte verifying key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

// PublicKeyBase58 returns the verifying key in the encoding used by chain
// tooling and the public key endpoint.
func (s *Signer) PublicKeyBase58() string {
	return base58.Encode(s.pub)
}

// Verify checks an attestation against a public key. Any holder of the key
// can perform this check without trusting the oracle.
func Verify(pub ed25519.PublicKey, att *escrow.Attestation) bool {
	msg := escrow.VerificationMessage(att.EscrowID, att.Result, att.Digest, att.Timestamp)
	return ed25519.Verify(pub, msg, att.Signature[:])
}
