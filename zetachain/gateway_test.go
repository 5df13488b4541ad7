package zetachain

import (
	"context"
	"errors"
	"testing"

	"aetherlock-backend/core/escrow"
)

func testRecord(id byte) EscrowRecord {
	var gid GatewayID
	gid[0] = id
	return EscrowRecord{
		ID:               gid,
		SourceChain:      "ethereum",
		DestinationChain: "solana",
		Buyer:            "buyer-address",
		Seller:           "seller-address",
		Amount:           1000,
		Status:           StatusCreated,
	}
}

func TestGatewayLifecycle(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemoryStore())
	rec := testRecord(1)

	if err := g.Register(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := g.RequestVerification(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusVerificationRequested {
		t.Errorf("status = %s, want verification_requested", got.Status)
	}

	got, err = g.HandleCallback(ctx, rec.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusVerified {
		t.Errorf("status = %s, want verified", got.Status)
	}
	if got.VerificationResult == nil || !*got.VerificationResult {
		t.Error("expected a positive verification result")
	}

	msg, err := g.Resolve(ctx, rec.ID, "0xabc")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Action != ActionReleaseEscrow {
		t.Errorf("action = %s, want release for a positive verdict", msg.Action)
	}
}

func TestGatewayCallbackIdempotent(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemoryStore())
	rec := testRecord(2)

	if err := g.Register(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if _, err := g.HandleCallback(ctx, rec.ID, true); err != nil {
		t.Fatal(err)
	}

	// redelivery with a flipped flag must not alter the stored result
	got, err := g.HandleCallback(ctx, rec.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusVerified {
		t.Errorf("status = %s, want verified", got.Status)
	}
	if got.VerificationResult == nil || !*got.VerificationResult {
		t.Error("redelivery must not overwrite the original result")
	}
}

func TestGatewayUnknownEscrow(t *testing.T) {
	g := NewGateway(NewMemoryStore())
	var id GatewayID
	id[0] = 99

	_, err := g.HandleCallback(context.Background(), id, true)
	var unknown escrow.UnknownEscrowError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEscrowError, got %v", err)
	}
}

func TestGatewayResolveRefund(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemoryStore())
	rec := testRecord(3)

	if err := g.Register(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if _, err := g.HandleCallback(ctx, rec.ID, false); err != nil {
		t.Fatal(err)
	}

	msg, err := g.Resolve(ctx, rec.ID, "0xdef")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Action != ActionRefundEscrow {
		t.Errorf("action = %s, want refund for a negative verdict", msg.Action)
	}

	// resolving again yields the same settlement without error
	again, err := g.Resolve(ctx, rec.ID, "0xdef")
	if err != nil {
		t.Fatal(err)
	}
	if again.Action != msg.Action {
		t.Error("repeated resolve must produce the same settlement action")
	}
}

func TestGatewayResolveRequiresVerdict(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemoryStore())
	rec := testRecord(4)

	if err := g.Register(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if _, err := g.Resolve(ctx, rec.ID, "0x1"); err == nil {
		t.Fatal("resolve before a verdict must fail")
	}
}

func TestMessageRoundtrip(t *testing.T) {
	var id GatewayID
	id[0] = 0xFE
	var recipient [32]byte
	recipient[1] = 0xAB

	msg := Message{EscrowID: id, Action: ActionReleaseEscrow, Amount: 123456, Recipient: recipient}
	raw := msg.Encode()

	decoded, err := DecodeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.EscrowID != id || decoded.Action != ActionReleaseEscrow || decoded.Amount != 123456 || decoded.Recipient != recipient {
		t.Errorf("roundtrip mismatch: %+v", decoded)
	}

	t.Run("truncated payload rejected", func(t *testing.T) {
		if _, err := DecodeMessage(raw[:10]); err == nil {
			t.Error("expected error for truncated message")
		}
	})

	t.Run("unknown action rejected", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[GatewayIDLen] = 250
		if _, err := DecodeMessage(bad); err == nil {
			t.Error("expected error for unknown action byte")
		}
	})
}
