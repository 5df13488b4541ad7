package handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aetherlock-backend/core/escrow"
	"aetherlock-backend/services"
	"aetherlock-backend/solana"
)

type fakeRPC struct {
	accounts map[string][]byte
}

func (f *fakeRPC) GetAccountInfo(_ context.Context, address string) ([]byte, bool, error) {
	data, ok := f.accounts[address]
	return data, ok, nil
}

func (f *fakeRPC) GetLatestBlockhash(context.Context) ([32]byte, error) {
	return [32]byte{}, nil
}

func (f *fakeRPC) SendTransaction(context.Context, string) (string, error) {
	return "sig", nil
}

// encodeFundedAccount mirrors the program's escrow account layout with status
// Funded and no optional fields set.
func encodeFundedAccount(id escrow.ID, buyer, seller, mint, agent solana.PublicKey, amount uint64, expiry int64) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, make([]byte, 8)...) // account discriminator
	buf = append(buf, id[:]...)
	buf = append(buf, buyer[:]...)
	buf = append(buf, seller[:]...)
	buf = append(buf, mint[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, amount)
	buf = binary.LittleEndian.AppendUint64(buf, 0) // fee_amount
	buf = append(buf, 1)                           // status: funded
	buf = binary.LittleEndian.AppendUint64(buf, uint64(expiry))
	buf = append(buf, make([]byte, 32)...) // metadata_hash
	buf = append(buf, 0)                   // verification_result: none
	buf = append(buf, 0)                   // evidence_hash: none
	buf = append(buf, 0)                   // dispute_raised
	buf = append(buf, 0)                   // dispute_deadline: none
	buf = append(buf, agent[:]...)
	return buf
}

func TestHandleEscrowQR(t *testing.T) {
	id := escrow.ID{0xab, 0x01}
	var program, buyer, seller, mint, agent solana.PublicKey
	program[0] = 7
	buyer[0] = 1
	seller[0] = 2
	mint[0] = 3
	agent[0] = 4

	escrowAddr, _, err := solana.DeriveEscrowAddress(program, id)
	if err != nil {
		t.Fatal(err)
	}
	vault, _, err := solana.DeriveVaultAddress(program, escrowAddr)
	if err != nil {
		t.Fatal(err)
	}

	const amount = uint64(1000)
	rpc := &fakeRPC{accounts: map[string][]byte{
		escrowAddr.String(): encodeFundedAccount(id, buyer, seller, mint, agent, amount, time.Now().Add(time.Hour).Unix()),
	}}
	client := solana.NewClient(rpc, solana.Config{ProgramID: program}, ed25519.NewKeyFromSeed(make([]byte, 32)))
	qrService := services.NewQRCodeService()
	h := NewEscrowHandler(services.NewEscrowService(client), qrService, agent.String())

	req := httptest.NewRequest(http.MethodGet, "/api/escrow/"+id.String()+"/qr", nil)
	w := httptest.NewRecorder()
	h.HandleEscrow(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}

	label := "AetherLock escrow " + id.String()
	vaultQR, err := qrService.GenerateFundingQR(vault.String(), amount, mint.String(), label)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(w.Body.Bytes(), vaultQR) {
		t.Error("funding QR must encode the escrow vault as the payment recipient")
	}

	sellerQR, err := qrService.GenerateFundingQR(seller.String(), amount, mint.String(), label)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(w.Body.Bytes(), sellerQR) {
		t.Error("funding QR must not pay the seller's wallet directly")
	}
}
