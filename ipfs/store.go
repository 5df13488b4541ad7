package ipfs

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"aetherlock-backend/core/escrow"
	"aetherlock-backend/metrics"
	"aetherlock-backend/security"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var logger = logging.Logger("evidence-store")

// DefaultMaxBundleBytes is the aggregate evidence size ceiling.
const DefaultMaxBundleBytes = 10 << 20

// Adder is the subset of the IPFS API the store needs.
type Adder interface {
	Add(ctx context.Context, name string, data []byte) (string, error)
	Cat(ctx context.Context, cid string) ([]byte, error)
}

// EvidenceStore uploads evidence bundles to content-addressed storage and
// produces the manifest that binds them into the verification pipeline.
type EvidenceStore struct {
	client   Adder
	maxBytes int
}

// NewEvidenceStore creates a store with the given size ceiling. A ceiling of
// zero or less falls back to DefaultMaxBundleBytes.
func NewEvidenceStore(client Adder, maxBytes int) *EvidenceStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBundleBytes
	}
	return &EvidenceStore{client: client, maxBytes: maxBytes}
}

// bundleDoc is the JSON document whose CID identifies the whole bundle.
// Entries are sorted by name so byte-identical content serializes identically.
type bundleDoc struct {
	Files []bundleFile `json:"files"`
}

type bundleFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
	CID      string `json:"cid"`
}

// Upload validates and uploads a set of evidence files, then uploads a bundle
// manifest whose CID becomes the bundle's content identifier. The binding
// digest is sha256 over that CID. Validation failures are terminal; transport
// failures surface as StorageUnavailableError and may be retried, in which
// case the new attempt produces a fresh manifest.
func (s *EvidenceStore) Upload(ctx context.Context, files []escrow.EvidenceFile) (*escrow.EvidenceManifest, error) {
	if len(files) == 0 {
		return nil, escrow.InvalidFileError{Reason: "no evidence files provided"}
	}

	total := 0
	for i := range files {
		f := &files[i]
		if f.Name == "" {
			return nil, escrow.InvalidFileError{Reason: "missing file name"}
		}
		if len(f.Bytes) == 0 {
			return nil, escrow.InvalidFileError{Name: f.Name, Reason: "empty payload"}
		}
		f.Name = security.SanitizeFilename(f.Name)
		if !security.ValidateExtension(f.Name, security.AllowedEvidenceExtensions) {
			return nil, escrow.InvalidFileError{Name: f.Name, Reason: "file type not allowed"}
		}
		total += len(f.Bytes)
	}
	if total > s.maxBytes {
		return nil, escrow.PayloadTooLargeError{Size: total, Max: s.maxBytes}
	}

	doc := bundleDoc{Files: make([]bundleFile, 0, len(files))}
	entries := make([]escrow.EvidenceEntry, 0, len(files))
	for _, f := range files {
		fileCID, err := s.client.Add(ctx, f.Name, f.Bytes)
		if err != nil {
			return nil, escrow.StorageUnavailableError{Err: errors.Wrapf(err, "upload %s", f.Name)}
		}
		if _, err := cid.Decode(fileCID); err != nil {
			return nil, escrow.StorageUnavailableError{Err: errors.Wrapf(err, "store returned malformed cid %q", fileCID)}
		}
		doc.Files = append(doc.Files, bundleFile{Name: f.Name, MimeType: f.MimeType, Size: len(f.Bytes), CID: fileCID})
		entries = append(entries, escrow.EvidenceEntry{Name: f.Name, MimeType: f.MimeType, Size: len(f.Bytes), CID: fileCID})
	}

	sort.Slice(doc.Files, func(i, j int) bool { return doc.Files[i].Name < doc.Files[j].Name })
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "marshal bundle manifest")
	}

	bundleCID, err := s.client.Add(ctx, "manifest.json", raw)
	if err != nil {
		return nil, escrow.StorageUnavailableError{Err: errors.Wrap(err, "upload bundle manifest")}
	}
	if _, err := cid.Decode(bundleCID); err != nil {
		return nil, escrow.StorageUnavailableError{Err: errors.Wrapf(err, "store returned malformed bundle cid %q", bundleCID)}
	}

	manifest := &escrow.EvidenceManifest{
		Entries:    entries,
		CID:        bundleCID,
		Digest:     escrow.DigestCID(bundleCID),
		UploadedAt: time.Now().UTC(),
	}
	metrics.EvidenceBundleBytes.Observe(float64(total))
	logger.With("cid", bundleCID, "files", len(files), "bytes", total).Info("evidence bundle uploaded")
	return manifest, nil
}

// Fetch retrieves the raw bundle manifest for audit display.
func (s *EvidenceStore) Fetch(ctx context.Context, bundleCID string) ([]byte, error) {
	data, err := s.client.Cat(ctx, bundleCID)
	if err != nil {
		return nil, escrow.StorageUnavailableError{Err: err}
	}
	return data, nil
}
