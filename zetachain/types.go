package zetachain

import (
	"encoding/hex"
	"fmt"
	"time"
)

// GatewayStatus is the lifecycle state of a gateway-side escrow record.
type GatewayStatus string

const (
	StatusCreated               GatewayStatus = "created"
	StatusVerificationRequested GatewayStatus = "verification_requested"
	StatusVerified              GatewayStatus = "verified"
	StatusResolved              GatewayStatus = "resolved"
)

// GatewayIDLen is the length of a cross-chain escrow identifier in bytes.
const GatewayIDLen = 32

// GatewayID identifies an escrow on the cross-chain path.
type GatewayID [GatewayIDLen]byte

// ParseGatewayID decodes a hex-encoded cross-chain escrow identifier.
func ParseGatewayID(s string) (GatewayID, error) {
	var id GatewayID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid gateway escrow id %q: %w", s, err)
	}
	if len(raw) != GatewayIDLen {
		return id, fmt.Errorf("invalid gateway escrow id length: want %d bytes, got %d", GatewayIDLen, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id GatewayID) String() string {
	return hex.EncodeToString(id[:])
}

// EscrowRecord is the gateway's view of a cross-chain escrow.
type EscrowRecord struct {
	ID                 GatewayID     `json:"escrow_id"`
	SourceChain        string        `json:"source_chain"`
	DestinationChain   string        `json:"destination_chain"`
	Buyer              string        `json:"buyer"`
	Seller             string        `json:"seller"`
	Amount             uint64        `json:"amount"`
	Status             GatewayStatus `json:"status"`
	VerificationResult *bool         `json:"verification_result,omitempty"`
	CrossChainTxHash   string        `json:"cross_chain_tx_hash,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}
