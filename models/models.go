package models

import "time"

// HealthResponse represents service health status
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse represents API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      int    `json:"code,omitempty"`
	Hint      string `json:"hint,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// APIResponse represents a generic API response
type APIResponse struct {
	Success bool                   `json:"success"`
	Data    interface{}            `json:"data,omitempty"`
	Error   *ErrorResponse         `json:"error,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(error string, code int) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &ErrorResponse{
			Error:     error,
			Message:   error,
			Code:      code,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// NewErrorResponseWithHint creates an error response with a hint.
func NewErrorResponseWithHint(error string, code int, hint string) *APIResponse {
	resp := NewErrorResponse(error, code)
	if resp != nil && resp.Error != nil {
		resp.Error.Hint = hint
	}
	return resp
}

// CreateEscrowRequest represents an escrow creation request
type CreateEscrowRequest struct {
	EscrowID        string `json:"escrow_id"`
	Seller          string `json:"seller"`
	Mint            string `json:"mint"`
	Amount          uint64 `json:"amount"`
	ExpiryUnix      int64  `json:"expiry_unix"`
	TaskDescription string `json:"task_description"`
}

// DisputeRequest represents a dispute filing
type DisputeRequest struct {
	Caller string `json:"caller"`
	Reason string `json:"reason"`
}

// TxResponse reports a settled chain transaction
type TxResponse struct {
	EscrowID       string `json:"escrow_id"`
	Signature      string `json:"signature,omitempty"`
	EscrowAddress  string `json:"escrow_address"`
	AlreadyApplied bool   `json:"already_applied"`
}

// EscrowResponse represents an escrow account view
type EscrowResponse struct {
	EscrowID           string `json:"escrow_id"`
	Status             string `json:"status"`
	Buyer              string `json:"buyer"`
	Seller             string `json:"seller"`
	Amount             uint64 `json:"amount"`
	ExpiryUnix         int64  `json:"expiry_unix,omitempty"`
	VerificationResult *bool  `json:"verification_result,omitempty"`
	EvidenceDigest     string `json:"evidence_digest,omitempty"`
	DisputeDeadline    int64  `json:"dispute_deadline,omitempty"`
}

// PublicKeyResponse reports the oracle signing identity
type PublicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

// GatewayCallbackRequest represents an inbound cross-chain verification callback
type GatewayCallbackRequest struct {
	EscrowID string `json:"escrow_id"`
	Verified bool   `json:"verified"`
}

// GatewayCallbackResponse reports the gateway record after a callback
type GatewayCallbackResponse struct {
	EscrowID string `json:"escrow_id"`
	Status   string `json:"status"`
	Verified *bool  `json:"verified,omitempty"`
}
