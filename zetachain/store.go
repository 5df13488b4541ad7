package zetachain

import (
	"context"
	"sync"
	"time"

	"aetherlock-backend/core/escrow"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Store persists gateway escrow records.
type Store interface {
	Create(ctx context.Context, rec EscrowRecord) error
	Get(ctx context.Context, id GatewayID) (*EscrowRecord, error)
	// Transition moves a record to the given status, recording an optional
	// verification result and tx hash. It is a guarded compare-and-set: the
	// record's current status must be one of the allowed predecessors.
	Transition(ctx context.Context, id GatewayID, from []GatewayStatus, to GatewayStatus, result *bool, txHash string) (bool, error)
	Close()
}

// PGStore keeps gateway records in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects and initializes the schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS gateway_escrows (
  escrow_id TEXT PRIMARY KEY,
  source_chain TEXT NOT NULL,
  destination_chain TEXT NOT NULL,
  buyer TEXT NOT NULL,
  seller TEXT NOT NULL,
  amount BIGINT NOT NULL,
  status TEXT NOT NULL DEFAULT 'created',
  verification_result BOOLEAN,
  cross_chain_tx_hash TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_gateway_escrows_status ON gateway_escrows(status);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PGStore) Create(ctx context.Context, rec EscrowRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO gateway_escrows (escrow_id, source_chain, destination_chain, buyer, seller, amount, status)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (escrow_id) DO NOTHING
`, rec.ID.String(), rec.SourceChain, rec.DestinationChain, rec.Buyer, rec.Seller, int64(rec.Amount), string(StatusCreated))
	return err
}

func (s *PGStore) Get(ctx context.Context, id GatewayID) (*EscrowRecord, error) {
	var rec EscrowRecord
	var idStr, status string
	var amount int64
	var txHash *string
	err := s.pool.QueryRow(ctx, `
SELECT escrow_id, source_chain, destination_chain, buyer, seller, amount, status, verification_result, cross_chain_tx_hash, created_at, updated_at
FROM gateway_escrows WHERE escrow_id=$1
`, id.String()).Scan(&idStr, &rec.SourceChain, &rec.DestinationChain, &rec.Buyer, &rec.Seller,
		&amount, &status, &rec.VerificationResult, &txHash, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.UnknownEscrowError{EscrowID: id.String()}
		}
		return nil, err
	}
	rec.ID = id
	rec.Amount = uint64(amount)
	rec.Status = GatewayStatus(status)
	if txHash != nil {
		rec.CrossChainTxHash = *txHash
	}
	return &rec, nil
}

func (s *PGStore) Transition(ctx context.Context, id GatewayID, from []GatewayStatus, to GatewayStatus, result *bool, txHash string) (bool, error) {
	allowed := make([]string, 0, len(from))
	for _, f := range from {
		allowed = append(allowed, string(f))
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE gateway_escrows
SET status = $2,
    verification_result = COALESCE($3, verification_result),
    cross_chain_tx_hash = COALESCE(NULLIF($4, ''), cross_chain_tx_hash),
    updated_at = now()
WHERE escrow_id = $1 AND status = ANY($5)
`, id.String(), string(to), result, txHash, allowed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

// MemoryStore keeps gateway records in memory. Used in tests and when no
// Postgres DSN is configured.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[GatewayID]*EscrowRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[GatewayID]*EscrowRecord)}
}

func (s *MemoryStore) Create(_ context.Context, rec EscrowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.ID]; ok {
		return nil
	}
	now := time.Now().UTC()
	rec.Status = StatusCreated
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.recs[rec.ID] = &rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id GatewayID) (*EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, escrow.UnknownEscrowError{EscrowID: id.String()}
	}
	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) Transition(_ context.Context, id GatewayID, from []GatewayStatus, to GatewayStatus, result *bool, txHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return false, escrow.UnknownEscrowError{EscrowID: id.String()}
	}
	matched := false
	for _, f := range from {
		if rec.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	rec.Status = to
	if result != nil {
		rec.VerificationResult = result
	}
	if txHash != "" {
		rec.CrossChainTxHash = txHash
	}
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) Close() {}
