package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"aetherlock-backend/core/escrow"
	"aetherlock-backend/models"
	"aetherlock-backend/services"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct{}

// NewBaseHandler creates a new base handler
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// sendJSON sends a JSON response
func (h *BaseHandler) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// sendError sends an error response
func (h *BaseHandler) sendError(w http.ResponseWriter, statusCode int, message string) {
	errorResp := models.NewErrorResponse(message, statusCode)
	h.sendJSON(w, statusCode, errorResp)
}

// sendSuccess sends a success response
func (h *BaseHandler) sendSuccess(w http.ResponseWriter, data interface{}) {
	successResp := models.NewSuccessResponse(data)
	h.sendJSON(w, http.StatusOK, successResp)
}

// parseJSON parses JSON from request
func (h *BaseHandler) parseJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// sendDomainError maps a domain error onto the appropriate HTTP status.
func (h *BaseHandler) sendDomainError(w http.ResponseWriter, err error) {
	h.sendError(w, domainStatus(err), err.Error())
}

func domainStatus(err error) int {
	var (
		tooLarge    escrow.PayloadTooLargeError
		invalidFile escrow.InvalidFileError
		unknown     escrow.UnknownEscrowError
		transition  escrow.InvalidStateTransitionError
		inProgress  escrow.VerificationInProgressError
		notCancel   escrow.NotCancellableError
		storage     escrow.StorageUnavailableError
		adjudicator escrow.AdjudicationServiceError
		rpc         escrow.ChainRPCError
		failed      escrow.VerificationFailedError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &invalidFile):
		return http.StatusBadRequest
	case errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.As(err, &transition), errors.As(err, &inProgress), errors.As(err, &notCancel):
		return http.StatusConflict
	case errors.As(err, &storage), errors.As(err, &adjudicator), errors.As(err, &rpc), errors.As(err, &failed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HealthHandler handles health check requests
type HealthHandler struct {
	*BaseHandler
	healthService *services.HealthService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthService *services.HealthService) *HealthHandler {
	return &HealthHandler{
		BaseHandler:   NewBaseHandler(),
		healthService: healthService,
	}
}

// HandleHealth handles health check requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	health := h.healthService.GetHealthStatus()
	h.sendSuccess(w, health)
}

// KeysHandler exposes the oracle's signing identity so anyone can verify
// attestations offline.
type KeysHandler struct {
	*BaseHandler
	publicKey string
}

// NewKeysHandler creates a new keys handler
func NewKeysHandler(publicKeyBase58 string) *KeysHandler {
	return &KeysHandler{
		BaseHandler: NewBaseHandler(),
		publicKey:   publicKeyBase58,
	}
}

// HandlePublicKey handles public key requests
func (h *KeysHandler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	h.sendSuccess(w, models.PublicKeyResponse{PublicKey: h.publicKey})
}
