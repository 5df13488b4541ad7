package handlers

import (
	"context"
	"encoding/hex"
	"net/http"
	"strings"

	"aetherlock-backend/models"
	"aetherlock-backend/services"
	"aetherlock-backend/solana"
)

// EscrowHandler handles escrow lifecycle requests
type EscrowHandler struct {
	*BaseHandler
	escrowService *services.EscrowService
	qrService     *services.QRCodeService
	agentPubkey   string
}

// NewEscrowHandler creates a new escrow handler
func NewEscrowHandler(escrowService *services.EscrowService, qrService *services.QRCodeService, agentPubkey string) *EscrowHandler {
	return &EscrowHandler{
		BaseHandler:   NewBaseHandler(),
		escrowService: escrowService,
		qrService:     qrService,
		agentPubkey:   agentPubkey,
	}
}

// HandleCreate handles escrow creation requests
func (h *EscrowHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CreateEscrowRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.EscrowID == "" || req.Seller == "" || req.Amount == 0 {
		h.sendError(w, http.StatusBadRequest, "escrow_id, seller and amount are required")
		return
	}

	res, err := h.escrowService.Create(r.Context(), req, h.agentPubkey)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, txResponse(req.EscrowID, res))
}

// HandleEscrow dispatches /api/escrow/{id} and its lifecycle sub-paths.
func (h *EscrowHandler) HandleEscrow(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/escrow/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		h.sendError(w, http.StatusBadRequest, "Missing escrow id")
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		h.handleGet(w, r, id)
		return
	}

	switch parts[1] {
	case "deposit":
		h.handleAction(w, r, id, h.escrowService.Deposit)
	case "release":
		h.handleAction(w, r, id, h.escrowService.Release)
	case "refund":
		h.handleAction(w, r, id, h.escrowService.Refund)
	case "dispute":
		h.handleDispute(w, r, id)
	case "qr":
		h.handleQR(w, r, id)
	default:
		h.sendError(w, http.StatusNotFound, "Unknown escrow operation")
	}
}

func (h *EscrowHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	esc, err := h.escrowService.Get(r.Context(), id)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	resp := models.EscrowResponse{
		EscrowID:           esc.ID.String(),
		Status:             esc.Status.String(),
		Buyer:              esc.Buyer,
		Seller:             esc.Seller,
		Amount:             esc.Amount,
		ExpiryUnix:         esc.Expiry,
		VerificationResult: esc.VerificationResult,
	}
	if esc.EvidenceHash != nil {
		resp.EvidenceDigest = hexDigest(*esc.EvidenceHash)
	}
	if esc.DisputeDeadline != nil {
		resp.DisputeDeadline = *esc.DisputeDeadline
	}
	h.sendSuccess(w, resp)
}

func (h *EscrowHandler) handleAction(w http.ResponseWriter, r *http.Request, id string, action func(ctx context.Context, rawID string) (*solana.TxResult, error)) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	res, err := action(r.Context(), id)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, txResponse(id, res))
}

func (h *EscrowHandler) handleDispute(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.DisputeRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Caller == "" {
		h.sendError(w, http.StatusBadRequest, "caller is required")
		return
	}

	res, err := h.escrowService.Dispute(r.Context(), id, req)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, txResponse(id, res))
}

// handleQR renders a funding QR code for the escrow's vault.
func (h *EscrowHandler) handleQR(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	esc, err := h.escrowService.Get(r.Context(), id)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	// Deposits go to the escrow's vault PDA; paying any participant
	// directly would bypass custody.
	vault, err := h.escrowService.VaultAddress(id)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	png, err := h.qrService.GenerateFundingQR(vault, esc.Amount, esc.TokenMint, "AetherLock escrow "+id)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func hexDigest(d [32]byte) string {
	return hex.EncodeToString(d[:])
}

func txResponse(id string, res *solana.TxResult) models.TxResponse {
	return models.TxResponse{
		EscrowID:       id,
		Signature:      res.Signature,
		EscrowAddress:  res.EscrowAddress,
		AlreadyApplied: res.AlreadyApplied,
	}
}
