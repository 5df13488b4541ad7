package zetachain

import (
	"encoding/binary"
	"fmt"
)

// Action identifies a cross-chain escrow instruction.
type Action uint8

const (
	ActionInitiateEscrow Action = iota
	ActionReleaseEscrow
	ActionRefundEscrow
	ActionVerificationComplete
)

func (a Action) String() string {
	switch a {
	case ActionInitiateEscrow:
		return "initiate_escrow"
	case ActionReleaseEscrow:
		return "release_escrow"
	case ActionRefundEscrow:
		return "refund_escrow"
	case ActionVerificationComplete:
		return "verification_complete"
	default:
		return "unknown"
	}
}

// Message is the payload relayed between chains through the gateway:
// escrow id (32), action (1), amount (8, big-endian), recipient (32).
type Message struct {
	EscrowID  GatewayID
	Action    Action
	Amount    uint64
	Recipient [32]byte
}

const messageLen = GatewayIDLen + 1 + 8 + 32

// Encode serializes the message into its fixed-width wire layout.
func (m Message) Encode() []byte {
	buf := make([]byte, 0, messageLen)
	buf = append(buf, m.EscrowID[:]...)
	buf = append(buf, byte(m.Action))
	var amount [8]byte
	binary.BigEndian.PutUint64(amount[:], m.Amount)
	buf = append(buf, amount[:]...)
	return append(buf, m.Recipient[:]...)
}

// DecodeMessage parses a cross-chain payload.
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if len(raw) != messageLen {
		return m, fmt.Errorf("cross-chain message must be %d bytes, got %d", messageLen, len(raw))
	}
	copy(m.EscrowID[:], raw[:GatewayIDLen])
	m.Action = Action(raw[GatewayIDLen])
	if m.Action > ActionVerificationComplete {
		return m, fmt.Errorf("unknown cross-chain action %d", raw[GatewayIDLen])
	}
	m.Amount = binary.BigEndian.Uint64(raw[GatewayIDLen+1 : GatewayIDLen+9])
	copy(m.Recipient[:], raw[GatewayIDLen+9:])
	return m, nil
}
