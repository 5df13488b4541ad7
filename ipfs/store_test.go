package ipfs

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"aetherlock-backend/core/escrow"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// fakeAdder derives a real CIDv1 from the content so content addressing
// behaves like the live store: same bytes, same CID.
type fakeAdder struct {
	adds    int
	cats    map[string][]byte
	failAdd error
}

func newFakeAdder() *fakeAdder {
	return &fakeAdder{cats: make(map[string][]byte)}
}

func (f *fakeAdder) Add(ctx context.Context, name string, data []byte) (string, error) {
	if f.failAdd != nil {
		return "", f.failAdd
	}
	f.adds++
	sum := sha256.Sum256(data)
	hash, err := mh.Encode(sum[:], mh.SHA2_256)
	if err != nil {
		return "", err
	}
	c := cid.NewCidV1(cid.Raw, hash)
	f.cats[c.String()] = data
	return c.String(), nil
}

func (f *fakeAdder) Cat(ctx context.Context, c string) ([]byte, error) {
	data, ok := f.cats[c]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func evidence(name string, size int) escrow.EvidenceFile {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return escrow.EvidenceFile{Name: name, MimeType: "image/png", Bytes: data}
}

func TestUploadContentAddressing(t *testing.T) {
	adder := newFakeAdder()
	store := NewEvidenceStore(adder, 0)
	files := []escrow.EvidenceFile{evidence("proof.png", 64), evidence("report.txt", 32)}

	m1, err := store.Upload(context.Background(), files)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := store.Upload(context.Background(), files)
	if err != nil {
		t.Fatal(err)
	}

	if m1.CID != m2.CID {
		t.Error("identical bundles must produce identical CIDs")
	}
	if m1.Digest != escrow.DigestCID(m1.CID) {
		t.Error("digest must be sha256 over the bundle CID")
	}
	if len(m1.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(m1.Entries))
	}
}

func TestUploadValidation(t *testing.T) {
	t.Run("empty bundle", func(t *testing.T) {
		store := NewEvidenceStore(newFakeAdder(), 0)
		_, err := store.Upload(context.Background(), nil)
		var invalid escrow.InvalidFileError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidFileError, got %v", err)
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		store := NewEvidenceStore(newFakeAdder(), 0)
		_, err := store.Upload(context.Background(), []escrow.EvidenceFile{{Name: "a.png"}})
		var invalid escrow.InvalidFileError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidFileError, got %v", err)
		}
	})

	t.Run("disallowed extension", func(t *testing.T) {
		store := NewEvidenceStore(newFakeAdder(), 0)
		_, err := store.Upload(context.Background(), []escrow.EvidenceFile{evidence("malware.exe", 8)})
		var invalid escrow.InvalidFileError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidFileError, got %v", err)
		}
	})

	t.Run("oversized bundle rejected before any upload", func(t *testing.T) {
		adder := newFakeAdder()
		store := NewEvidenceStore(adder, 0)
		big := []escrow.EvidenceFile{evidence("huge.png", DefaultMaxBundleBytes+1)}

		_, err := store.Upload(context.Background(), big)
		var tooLarge escrow.PayloadTooLargeError
		if !errors.As(err, &tooLarge) {
			t.Fatalf("expected PayloadTooLargeError, got %v", err)
		}
		if adder.adds != 0 {
			t.Errorf("adds = %d, nothing should reach storage", adder.adds)
		}
	})

	t.Run("aggregate size counts across files", func(t *testing.T) {
		store := NewEvidenceStore(newFakeAdder(), 100)
		files := []escrow.EvidenceFile{evidence("a.png", 60), evidence("b.png", 60)}
		_, err := store.Upload(context.Background(), files)
		var tooLarge escrow.PayloadTooLargeError
		if !errors.As(err, &tooLarge) {
			t.Fatalf("expected PayloadTooLargeError, got %v", err)
		}
	})
}

func TestUploadStorageFailure(t *testing.T) {
	adder := newFakeAdder()
	adder.failAdd = errors.New("connection refused")
	store := NewEvidenceStore(adder, 0)

	_, err := store.Upload(context.Background(), []escrow.EvidenceFile{evidence("a.png", 8)})
	var unavailable escrow.StorageUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected StorageUnavailableError, got %v", err)
	}
	if !escrow.Retryable(err) {
		t.Error("storage outage must be retryable")
	}
}

func TestFetch(t *testing.T) {
	adder := newFakeAdder()
	store := NewEvidenceStore(adder, 0)

	m, err := store.Upload(context.Background(), []escrow.EvidenceFile{evidence("a.png", 16)})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := store.Fetch(context.Background(), m.CID)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Error("expected bundle manifest bytes")
	}
}
