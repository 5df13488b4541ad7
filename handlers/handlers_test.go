package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aetherlock-backend/core/escrow"
	"aetherlock-backend/models"
	"aetherlock-backend/services"
	"aetherlock-backend/zetachain"
)

func TestHandleHealth(t *testing.T) {
	h := NewHealthHandler(services.NewHealthService())

	t.Run("GET returns healthy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		w := httptest.NewRecorder()
		h.HandleHealth(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var resp models.APIResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if !resp.Success {
			t.Error("expected success response")
		}
	})

	t.Run("POST rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
		w := httptest.NewRecorder()
		h.HandleHealth(w, req)

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", w.Code)
		}
	})
}

func TestHandlePublicKey(t *testing.T) {
	h := NewKeysHandler("AgentPubkey111111111111111111111111111111111")

	req := httptest.NewRequest(http.MethodGet, "/api/keys/public", nil)
	w := httptest.NewRecorder()
	h.HandlePublicKey(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "AgentPubkey111111111111111111111111111111111") {
		t.Error("response must expose the signing public key")
	}
}

func TestHandleGatewayCallback(t *testing.T) {
	gateway := zetachain.NewGateway(zetachain.NewMemoryStore())
	var gid zetachain.GatewayID
	gid[0] = 0xaa
	err := gateway.Register(context.Background(), zetachain.EscrowRecord{
		ID:     gid,
		Buyer:  "buyer",
		Seller: "seller",
		Amount: 500,
		Status: zetachain.StatusCreated,
	})
	if err != nil {
		t.Fatal(err)
	}
	h := NewGatewayHandler(gateway)

	callback := func(t *testing.T, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/gateway/callback", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		h.HandleCallback(w, req)
		return w
	}

	t.Run("applies the verdict", func(t *testing.T) {
		body, _ := json.Marshal(models.GatewayCallbackRequest{EscrowID: gid.String(), Verified: true})
		w := callback(t, string(body))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Success bool                           `json:"success"`
			Data    models.GatewayCallbackResponse `json:"data"`
		}
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Data.Status != string(zetachain.StatusVerified) {
			t.Errorf("status = %s, want verified", resp.Data.Status)
		}
		if resp.Data.Verified == nil || !*resp.Data.Verified {
			t.Error("expected verified=true in response")
		}
	})

	t.Run("redelivery is idempotent", func(t *testing.T) {
		body, _ := json.Marshal(models.GatewayCallbackRequest{EscrowID: gid.String(), Verified: true})
		w := callback(t, string(body))
		if w.Code != http.StatusOK {
			t.Errorf("redelivery status = %d, want 200", w.Code)
		}
	})

	t.Run("unknown escrow", func(t *testing.T) {
		var other zetachain.GatewayID
		other[0] = 0xbb
		body, _ := json.Marshal(models.GatewayCallbackRequest{EscrowID: other.String(), Verified: true})
		w := callback(t, string(body))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		w := callback(t, `{"escrow_id":"not-hex","verified":true}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		w := callback(t, "{")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestDomainStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"payload too large", escrow.PayloadTooLargeError{Size: 1, Max: 0}, http.StatusRequestEntityTooLarge},
		{"invalid file", escrow.InvalidFileError{Name: "x.exe", Reason: "file type not allowed"}, http.StatusBadRequest},
		{"unknown escrow", escrow.UnknownEscrowError{EscrowID: "00"}, http.StatusNotFound},
		{"run in progress", escrow.VerificationInProgressError{}, http.StatusConflict},
		{"not cancellable", escrow.NotCancellableError{}, http.StatusConflict},
		{"storage down", escrow.StorageUnavailableError{Err: errors.New("down")}, http.StatusBadGateway},
		{"rpc down", escrow.ChainRPCError{Method: "sendTransaction", Err: errors.New("down")}, http.StatusBadGateway},
		{"wrapped cause", escrow.VerificationFailedError{Stage: escrow.StageSubmitting, Cause: errors.New("x")}, http.StatusBadGateway},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domainStatus(tc.err); got != tc.want {
				t.Errorf("domainStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
