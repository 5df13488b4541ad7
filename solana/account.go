package solana

import (
	"encoding/binary"
	"fmt"

	"aetherlock-backend/core/escrow"
)

// On-chain status values. Verified maps to the pipeline's
// VerificationSubmitted: the program has accepted an attestation but funds
// have not moved yet.
const (
	chainStatusCreated  = 0
	chainStatusFunded   = 1
	chainStatusVerified = 2
	chainStatusReleased = 3
	chainStatusDisputed = 4
	chainStatusRefunded = 5
)

type accountReader struct {
	data []byte
	off  int
	err  error
}

func (r *accountReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("escrow account truncated at offset %d", r.off)
		return nil
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out
}

func (r *accountReader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *accountReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *accountReader) i64() int64 {
	return int64(r.u64())
}

func (r *accountReader) pubkey() PublicKey {
	var pk PublicKey
	copy(pk[:], r.take(32))
	return pk
}

// DecodeEscrowAccount parses the program's escrow account layout: an 8-byte
// account discriminator followed by the borsh-encoded fields in declaration
// order.
func DecodeEscrowAccount(data []byte) (*escrow.Escrow, error) {
	r := &accountReader{data: data}
	r.take(8) // account discriminator

	var id escrow.ID
	copy(id[:], r.take(escrow.IDLen))

	buyer := r.pubkey()
	seller := r.pubkey()
	mint := r.pubkey()
	amount := r.u64()
	r.u64() // fee_amount, derived from config at creation
	status := r.u8()
	expiry := r.i64()
	r.take(32) // metadata_hash

	var verificationResult *bool
	if r.u8() == 1 {
		v := r.u8() == 1
		verificationResult = &v
	}

	var evidenceHash *[32]byte
	if r.u8() == 1 {
		var h [32]byte
		copy(h[:], r.take(32))
		evidenceHash = &h
	}

	r.u8() // dispute_raised, implied by status

	var disputeDeadline *int64
	if r.u8() == 1 {
		d := r.i64()
		disputeDeadline = &d
	}

	agent := r.pubkey()

	if r.err != nil {
		return nil, r.err
	}

	esc := &escrow.Escrow{
		ID:                 id,
		Buyer:              buyer.String(),
		Seller:             seller.String(),
		TokenMint:          mint.String(),
		Amount:             amount,
		Expiry:             expiry,
		AIAgentPubkey:      agent.String(),
		VerificationResult: verificationResult,
		EvidenceHash:       evidenceHash,
		DisputeDeadline:    disputeDeadline,
	}

	switch status {
	case chainStatusCreated:
		esc.Status = escrow.StatusCreated
	case chainStatusFunded:
		esc.Status = escrow.StatusFunded
	case chainStatusVerified:
		esc.Status = escrow.StatusVerificationSubmitted
	case chainStatusReleased:
		esc.Status = escrow.StatusReleased
	case chainStatusDisputed:
		esc.Status = escrow.StatusDisputed
	case chainStatusRefunded:
		esc.Status = escrow.StatusRefunded
	default:
		return nil, fmt.Errorf("unknown escrow status byte %d", status)
	}
	return esc, nil
}
