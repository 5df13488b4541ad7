package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/skip2/go-qrcode"

	"aetherlock-backend/core/escrow"
	"aetherlock-backend/models"
	"aetherlock-backend/solana"
)

// EscrowService handles escrow lifecycle business logic. It is a thin layer
// over the chain client: the chain stays the system of record and every
// operation re-validates against live on-chain state.
type EscrowService struct {
	chain *solana.Client
}

// NewEscrowService creates a new escrow service
func NewEscrowService(chain *solana.Client) *EscrowService {
	return &EscrowService{chain: chain}
}

// Create initializes a new escrow account on-chain.
func (s *EscrowService) Create(ctx context.Context, req models.CreateEscrowRequest, agentPubkey string) (*solana.TxResult, error) {
	id, err := escrow.ParseID(req.EscrowID)
	if err != nil {
		return nil, err
	}
	expiry := req.ExpiryUnix
	if expiry == 0 {
		expiry = time.Now().Add(30 * 24 * time.Hour).Unix()
	}
	return s.chain.CreateEscrow(ctx, solana.CreateParams{
		ID:              id,
		Seller:          req.Seller,
		TokenMint:       req.Mint,
		Amount:          req.Amount,
		Expiry:          expiry,
		TaskDescription: req.TaskDescription,
		AIAgentPubkey:   agentPubkey,
	})
}

// Get fetches the current on-chain escrow state.
func (s *EscrowService) Get(ctx context.Context, rawID string) (*escrow.Escrow, error) {
	id, err := escrow.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	return s.chain.GetEscrow(ctx, id)
}

// VaultAddress resolves the deposit destination for an escrow: its vault
// PDA, not any participant's wallet.
func (s *EscrowService) VaultAddress(rawID string) (string, error) {
	id, err := escrow.ParseID(rawID)
	if err != nil {
		return "", err
	}
	vault, err := s.chain.VaultAddress(id)
	if err != nil {
		return "", err
	}
	return vault.String(), nil
}

// Deposit moves the buyer's funds into the escrow vault.
func (s *EscrowService) Deposit(ctx context.Context, rawID string) (*solana.TxResult, error) {
	id, err := escrow.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	return s.chain.DepositFunds(ctx, id)
}

// Release pays out a successfully verified escrow to the seller.
func (s *EscrowService) Release(ctx context.Context, rawID string) (*solana.TxResult, error) {
	id, err := escrow.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	return s.chain.ReleaseFunds(ctx, id)
}

// Dispute freezes an escrow on behalf of the buyer or seller. The dispute
// reason is bound on-chain as a hash; the full text stays off-chain.
func (s *EscrowService) Dispute(ctx context.Context, rawID string, req models.DisputeRequest) (*solana.TxResult, error) {
	id, err := escrow.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	reasonHash := sha256.Sum256([]byte(req.Reason))
	return s.chain.RaiseDispute(ctx, id, req.Caller, reasonHash)
}

// Refund returns escrowed funds to the buyer after expiry or a failed
// verification.
func (s *EscrowService) Refund(ctx context.Context, rawID string) (*solana.TxResult, error) {
	id, err := escrow.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	return s.chain.RefundBuyer(ctx, id)
}

// QRCodeService handles QR code generation
type QRCodeService struct{}

// NewQRCodeService creates a new QR code service
func NewQRCodeService() *QRCodeService {
	return &QRCodeService{}
}

// GenerateFundingQR renders a Solana Pay transfer request for funding an
// escrow vault as a PNG QR code.
func (s *QRCodeService) GenerateFundingQR(recipient string, amount uint64, mint, label string) ([]byte, error) {
	params := url.Values{}
	params.Set("amount", fmt.Sprintf("%d", amount))
	if mint != "" {
		params.Set("spl-token", mint)
	}
	if label != "" {
		params.Set("label", label)
	}
	payURL := fmt.Sprintf("solana:%s?%s", recipient, params.Encode())

	qr, err := qrcode.New(payURL, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(256)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// HealthService handles health check business logic
type HealthService struct{}

// NewHealthService creates a new health service
func NewHealthService() *HealthService {
	return &HealthService{}
}

// GetHealthStatus returns current health status
func (s *HealthService) GetHealthStatus() *models.HealthResponse {
	return &models.HealthResponse{
		Status:    "healthy",
		Message:   "Backend is running",
		Timestamp: time.Now().Unix(),
	}
}
