package handlers

import (
	"net/http"

	"aetherlock-backend/models"
	"aetherlock-backend/zetachain"
)

// GatewayHandler handles cross-chain gateway callbacks
type GatewayHandler struct {
	*BaseHandler
	gateway *zetachain.Gateway
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(gateway *zetachain.Gateway) *GatewayHandler {
	return &GatewayHandler{
		BaseHandler: NewBaseHandler(),
		gateway:     gateway,
	}
}

// HandleCallback applies an inbound verification callback. Redeliveries of a
// callback already applied succeed without changing the record.
func (h *GatewayHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.GatewayCallbackRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := zetachain.ParseGatewayID(req.EscrowID)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid escrow_id")
		return
	}

	rec, err := h.gateway.HandleCallback(r.Context(), id, req.Verified)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	h.sendSuccess(w, models.GatewayCallbackResponse{
		EscrowID: rec.ID.String(),
		Status:   string(rec.Status),
		Verified: rec.VerificationResult,
	})
}
