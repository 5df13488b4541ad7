package escrow

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// IDLen is the length of an escrow identifier in bytes.
const IDLen = 16

// ID identifies an escrow. It is caller-supplied and hex-encoded at the API
// boundary.
type ID [IDLen]byte

// ParseID decodes a hex-encoded escrow identifier.
func ParseID(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid escrow id %q: %w", s, err)
	}
	if len(raw) != IDLen {
		return id, fmt.Errorf("invalid escrow id length: want %d bytes, got %d", IDLen, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Status is the lifecycle state of an escrow as recorded on chain.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusCreated
	StatusFunded
	StatusVerificationSubmitted
	StatusReleased
	StatusDisputed
	StatusRefunded
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusFunded:
		return "funded"
	case StatusVerificationSubmitted:
		return "verification_submitted"
	case StatusReleased:
		return "released"
	case StatusDisputed:
		return "disputed"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Escrow mirrors the on-chain escrow account. The chain is the system of
// record; this struct is a decoded read, never a locally mutated copy.
type Escrow struct {
	ID                 ID        `json:"escrow_id"`
	Buyer              string    `json:"buyer"`
	Seller             string    `json:"seller"`
	TokenMint          string    `json:"token_mint"`
	Amount             uint64    `json:"amount"`
	Expiry             int64     `json:"expiry"`
	TaskDescription    string    `json:"task_description,omitempty"`
	AIAgentPubkey      string    `json:"ai_agent_pubkey"`
	Status             Status    `json:"status"`
	VerificationResult *bool     `json:"verification_result,omitempty"`
	EvidenceHash       *[32]byte `json:"evidence_hash,omitempty"`
	DisputeDeadline    *int64    `json:"dispute_deadline,omitempty"`
}

// EvidenceFile is one named payload submitted as proof of task completion.
type EvidenceFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Bytes    []byte `json:"-"`
}

// EvidenceEntry is the metadata of one uploaded file. Raw bytes never leave
// the upload path.
type EvidenceEntry struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
	CID      string `json:"cid"`
}

// EvidenceManifest describes an uploaded evidence bundle. It is created once
// per verification attempt and immutable afterward.
type EvidenceManifest struct {
	Entries []EvidenceEntry `json:"entries"`
	// CID is the content identifier of the bundle manifest. Identical
	// content always yields the identical CID.
	CID string `json:"cid"`
	// Digest is sha256 over the bundle CID. It is the value bound into the
	// attestation message.
	Digest     [32]byte  `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// DigestHex returns the evidence digest hex-encoded for display.
func (m *EvidenceManifest) DigestHex() string {
	return hex.EncodeToString(m.Digest[:])
}

// Verdict is the adjudicator's judgment of one verification attempt.
type Verdict struct {
	Result     bool   `json:"result"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
	Timestamp  int64  `json:"timestamp"`
}

// MessageLen is the fixed length of the signed attestation message:
// escrowId (16) + result (1) + evidence digest (32) + timestamp (8).
const MessageLen = IDLen + 1 + 32 + 8

// VerificationMessage builds the canonical attestation message. The layout is
// a wire contract shared with the on-chain program: fixed width, order
// dependent, timestamp as big-endian unsigned 64-bit.
func VerificationMessage(id ID, result bool, digest [32]byte, timestamp int64) []byte {
	msg := make([]byte, 0, MessageLen)
	msg = append(msg, id[:]...)
	if result {
		msg = append(msg, 1)
	} else {
		msg = append(msg, 0)
	}
	msg = append(msg, digest[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(timestamp))
	return append(msg, ts[:]...)
}

// Attestation binds an escrow, a verdict and an evidence fingerprint under
// the oracle's signing key. Verifiable by any holder of the public key.
type Attestation struct {
	EscrowID  ID       `json:"escrow_id"`
	Result    bool     `json:"result"`
	Digest    [32]byte `json:"-"`
	Timestamp int64    `json:"timestamp"`
	Message   []byte   `json:"-"`
	Signature [64]byte `json:"-"`
	PublicKey [32]byte `json:"-"`
}

// SignatureHex returns the attestation signature hex-encoded.
func (a *Attestation) SignatureHex() string {
	return hex.EncodeToString(a.Signature[:])
}

// DigestCID computes the binding digest over a content identifier.
func DigestCID(cid string) [32]byte {
	return sha256.Sum256([]byte(cid))
}
