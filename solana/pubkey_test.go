package solana

import (
	"bytes"
	"testing"

	"aetherlock-backend/core/escrow"
)

func TestParsePublicKey(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		raw := "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
		pk, err := ParsePublicKey(raw)
		if err != nil {
			t.Fatal(err)
		}
		if pk.String() != raw {
			t.Errorf("roundtrip = %s, want %s", pk.String(), raw)
		}
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		if _, err := ParsePublicKey("not-base58-0OIl"); err == nil {
			t.Error("expected error for invalid base58")
		}
		if _, err := ParsePublicKey("abc"); err == nil {
			t.Error("expected error for wrong length")
		}
	})
}

func TestFindProgramAddress(t *testing.T) {
	program := mustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	seeds := [][]byte{[]byte("escrow"), {1, 2, 3}}

	addr1, bump1, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatal(err)
	}
	addr2, bump2, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatal(err)
	}
	if addr1 != addr2 || bump1 != bump2 {
		t.Error("derivation must be deterministic")
	}
	if addr1.IsOnCurve() {
		t.Error("derived address must be off the ed25519 curve")
	}
}

func TestDeriveEscrowAddress(t *testing.T) {
	program := mustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	idA := escrow.ID{1}
	idB := escrow.ID{2}

	addrA, _, err := DeriveEscrowAddress(program, idA)
	if err != nil {
		t.Fatal(err)
	}
	addrB, _, err := DeriveEscrowAddress(program, idB)
	if err != nil {
		t.Fatal(err)
	}
	if addrA == addrB {
		t.Error("distinct ids must derive distinct addresses")
	}

	vaultA, _, err := DeriveVaultAddress(program, addrA)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(vaultA[:], addrA[:]) {
		t.Error("vault address must differ from escrow address")
	}
}
