package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aetherlock-backend/core/escrow"
)

func fakeService(t *testing.T, status int, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req invokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(invokeResponse{Content: []struct {
			Text string `json:"text"`
		}{{Text: reply}}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testManifest() *escrow.EvidenceManifest {
	return &escrow.EvidenceManifest{
		Entries: []escrow.EvidenceEntry{{Name: "proof.png", MimeType: "image/png", Size: 64, CID: "bafyfile"}},
		CID:     "bafybundle",
		Digest:  escrow.DigestCID("bafybundle"),
	}
}

func TestAnalyze(t *testing.T) {
	t.Run("completed with high confidence", func(t *testing.T) {
		srv := fakeService(t, http.StatusOK, "RESULT: COMPLETED\nCONFIDENCE: 85\nREASONING: Deliverable matches the task.")
		a := NewAdjudicator(srv.URL, "test-model", time.Second)

		v, err := a.Analyze(context.Background(), "build a website", testManifest())
		if err != nil {
			t.Fatal(err)
		}
		if !v.Result {
			t.Error("expected positive result")
		}
		if v.Confidence != 85 {
			t.Errorf("confidence = %d, want 85", v.Confidence)
		}
		if v.Reasoning == "" {
			t.Error("expected reasoning text")
		}
	})

	t.Run("not completed", func(t *testing.T) {
		srv := fakeService(t, http.StatusOK, "RESULT: NOT_COMPLETED\nCONFIDENCE: 90\nREASONING: Missing deliverables.")
		a := NewAdjudicator(srv.URL, "test-model", time.Second)

		v, err := a.Analyze(context.Background(), "build a website", testManifest())
		if err != nil {
			t.Fatal(err)
		}
		if v.Result {
			t.Error("NOT_COMPLETED must parse as a negative result")
		}
	})

	t.Run("low confidence forces negative result", func(t *testing.T) {
		srv := fakeService(t, http.StatusOK, "RESULT: COMPLETED\nCONFIDENCE: 40\nREASONING: Unsure.")
		a := NewAdjudicator(srv.URL, "test-model", time.Second)

		v, err := a.Analyze(context.Background(), "build a website", testManifest())
		if err != nil {
			t.Fatal(err)
		}
		if v.Result {
			t.Errorf("confidence %d below the floor must force a negative result", v.Confidence)
		}
		if v.Confidence != 40 {
			t.Errorf("confidence = %d, want the reported 40", v.Confidence)
		}
	})

	t.Run("confidence at the floor passes", func(t *testing.T) {
		srv := fakeService(t, http.StatusOK, "RESULT: COMPLETED\nCONFIDENCE: 70\nREASONING: Adequate.")
		a := NewAdjudicator(srv.URL, "test-model", time.Second)

		v, err := a.Analyze(context.Background(), "task", testManifest())
		if err != nil {
			t.Fatal(err)
		}
		if !v.Result {
			t.Errorf("confidence %d at MinConfidence must keep a positive result", v.Confidence)
		}
	})

	t.Run("malformed reply settles as failed verdict", func(t *testing.T) {
		srv := fakeService(t, http.StatusOK, "I am unable to judge this.")
		a := NewAdjudicator(srv.URL, "test-model", time.Second)

		v, err := a.Analyze(context.Background(), "task", testManifest())
		if err != nil {
			t.Fatalf("malformed reply must not be an error, got %v", err)
		}
		if v.Result || v.Confidence != 0 {
			t.Errorf("malformed reply must settle negative with zero confidence, got %+v", v)
		}
	})

	t.Run("service failure is retryable", func(t *testing.T) {
		srv := fakeService(t, http.StatusServiceUnavailable, "")
		a := NewAdjudicator(srv.URL, "test-model", time.Second)

		_, err := a.Analyze(context.Background(), "task", testManifest())
		var svcErr escrow.AdjudicationServiceError
		if !errors.As(err, &svcErr) {
			t.Fatalf("expected AdjudicationServiceError, got %v", err)
		}
		if !escrow.Retryable(err) {
			t.Error("service failure must be retryable")
		}
	})
}

func TestParseReply(t *testing.T) {
	a := NewAdjudicator("http://unused", "m", time.Second)

	t.Run("non-numeric confidence is zero", func(t *testing.T) {
		v := a.parseReply("RESULT: COMPLETED\nCONFIDENCE: high\nREASONING: x")
		if v.Confidence != 0 {
			t.Errorf("confidence = %d, want 0", v.Confidence)
		}
		if v.Result {
			t.Error("zero confidence must force a negative result")
		}
	})

	t.Run("marker order does not matter", func(t *testing.T) {
		v := a.parseReply("REASONING: fine work\nCONFIDENCE: 95\nRESULT: COMPLETED")
		if !v.Result || v.Confidence != 95 {
			t.Errorf("got %+v", v)
		}
	})

	t.Run("confidence above the scale is capped", func(t *testing.T) {
		v := a.parseReply("RESULT: COMPLETED\nCONFIDENCE: 150\nREASONING: very sure")
		if v.Confidence != 100 {
			t.Errorf("confidence = %d, want 100", v.Confidence)
		}
		if !v.Result {
			t.Error("capped confidence above the floor must keep a positive result")
		}
	})

	t.Run("negative confidence is floored", func(t *testing.T) {
		v := a.parseReply("RESULT: COMPLETED\nCONFIDENCE: -5\nREASONING: x")
		if v.Confidence != 0 {
			t.Errorf("confidence = %d, want 0", v.Confidence)
		}
		if v.Result {
			t.Error("floored confidence must force a negative result")
		}
	})
}
