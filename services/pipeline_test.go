package services

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"

	"aetherlock-backend/ai"
	"aetherlock-backend/core/escrow"
	"aetherlock-backend/ipfs"
	"aetherlock-backend/signer"
	"aetherlock-backend/solana"
)

// contentAdder derives real CIDs from content, preserving the store's
// content-addressing semantics without a node.
type contentAdder struct{}

func (contentAdder) Add(_ context.Context, _ string, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash, err := mh.Encode(sum[:], mh.SHA2_256)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, hash).String(), nil
}

func (contentAdder) Cat(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("not stored")
}

type pipelineRPC struct {
	accounts map[string][]byte
	sent     []string
}

func (f *pipelineRPC) GetAccountInfo(_ context.Context, address string) ([]byte, bool, error) {
	data, ok := f.accounts[address]
	return data, ok, nil
}

func (f *pipelineRPC) GetLatestBlockhash(context.Context) ([32]byte, error) {
	return [32]byte{1}, nil
}

func (f *pipelineRPC) SendTransaction(_ context.Context, tx string) (string, error) {
	f.sent = append(f.sent, tx)
	return "pipeline-sig", nil
}

func fundedAccountData(id escrow.ID, buyer, seller, mint solana.PublicKey, agent []byte, amount uint64, expiry int64) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, make([]byte, 8)...)
	buf = append(buf, id[:]...)
	buf = append(buf, buyer[:]...)
	buf = append(buf, seller[:]...)
	buf = append(buf, mint[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, amount)
	buf = binary.LittleEndian.AppendUint64(buf, 0)
	buf = append(buf, 1) // funded
	buf = binary.LittleEndian.AppendUint64(buf, uint64(expiry))
	buf = append(buf, make([]byte, 32)...)
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, agent...)
	return buf
}

// TestPipelineEndToEnd drives the real evidence store, adjudicator, signer
// and chain client through one verification run, pinning the contracts
// between them: the bundle digest flows unchanged into the attestation, the
// attestation verifies against the oracle key, and the submission reaches
// the chain.
func TestPipelineEndToEnd(t *testing.T) {
	id := escrow.ID{0xcc, 0x01}
	var program, buyer, seller, mint solana.PublicKey
	program[0] = 7
	buyer[0] = 1
	seller[0] = 2
	mint[0] = 3

	seed := make([]byte, 32)
	seed[0] = 9
	oracle, err := signer.NewFromBase58(base58.Encode(ed25519.NewKeyFromSeed(seed)))
	if err != nil {
		t.Fatal(err)
	}

	escrowAddr, _, err := solana.DeriveEscrowAddress(program, id)
	if err != nil {
		t.Fatal(err)
	}
	rpc := &pipelineRPC{accounts: map[string][]byte{
		escrowAddr.String(): fundedAccountData(id, buyer, seller, mint, oracle.PublicKey(), 1000, time.Now().Add(time.Hour).Unix()),
	}}
	chain := solana.NewClient(rpc, solana.Config{ProgramID: program}, ed25519.NewKeyFromSeed(make([]byte, 32)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":[{"text":"RESULT: COMPLETED\nCONFIDENCE: 85\nREASONING: Deliverable matches the task."}]}`)
	}))
	defer srv.Close()

	o := NewVerificationOrchestrator(
		ipfs.NewEvidenceStore(contentAdder{}, 0),
		ai.NewAdjudicator(srv.URL, "test-model", time.Second),
		oracle,
		chain,
	)
	defer o.Close()

	files := []escrow.EvidenceFile{
		{Name: "site.png", MimeType: "image/png", Bytes: []byte("screenshot")},
		{Name: "notes.txt", MimeType: "text/plain", Bytes: []byte("delivered")},
	}
	rec, err := o.Verify(context.Background(), id, "build a website", files)
	if err != nil {
		t.Fatal(err)
	}

	if rec.State != RunCompleted {
		t.Fatalf("state = %s, want completed", rec.State)
	}
	if rec.TxSignature != "pipeline-sig" {
		t.Errorf("tx signature = %q", rec.TxSignature)
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("transactions sent = %d, want 1", len(rpc.sent))
	}

	if rec.Manifest == nil || rec.Manifest.CID == "" {
		t.Fatal("record must carry the evidence manifest")
	}
	if rec.Verdict == nil || !rec.Verdict.Result || rec.Verdict.Confidence != 85 {
		t.Fatalf("verdict = %+v", rec.Verdict)
	}

	att := rec.Attestation
	if att == nil {
		t.Fatal("record must carry the attestation")
	}
	if att.Digest != escrow.DigestCID(rec.Manifest.CID) {
		t.Error("attestation digest must be derived from the bundle CID")
	}
	if att.EscrowID != id || !att.Result {
		t.Errorf("attestation = %+v", att)
	}
	if !signer.Verify(oracle.PublicKey(), att) {
		t.Error("attestation must verify against the oracle public key")
	}
}
