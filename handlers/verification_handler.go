package handlers

import (
	"io"
	"net/http"
	"strings"

	"aetherlock-backend/core/escrow"
	"aetherlock-backend/services"
)

// maxUploadBytes bounds the multipart form parse. The evidence store enforces
// the real bundle ceiling; this just keeps the parser from buffering runaways.
const maxUploadBytes = 32 << 20

// VerificationHandler handles verification pipeline requests
type VerificationHandler struct {
	*BaseHandler
	orchestrator *services.VerificationOrchestrator
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(orchestrator *services.VerificationOrchestrator) *VerificationHandler {
	return &VerificationHandler{
		BaseHandler:  NewBaseHandler(),
		orchestrator: orchestrator,
	}
}

// HandleVerify runs the verification pipeline for one escrow. Evidence
// arrives as multipart file fields alongside escrow_id and task_description
// form values.
func (h *VerificationHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.sendError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	id, err := escrow.ParseID(r.FormValue("escrow_id"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid escrow_id")
		return
	}
	taskDescription := r.FormValue("task_description")
	if taskDescription == "" {
		h.sendError(w, http.StatusBadRequest, "task_description is required")
		return
	}

	var files []escrow.EvidenceFile
	for _, headers := range r.MultipartForm.File {
		for _, hdr := range headers {
			f, err := hdr.Open()
			if err != nil {
				h.sendError(w, http.StatusBadRequest, "Failed to read uploaded file")
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				h.sendError(w, http.StatusBadRequest, "Failed to read uploaded file")
				return
			}
			files = append(files, escrow.EvidenceFile{
				Name:     hdr.Filename,
				MimeType: hdr.Header.Get("Content-Type"),
				Bytes:    data,
			})
		}
	}

	record, err := h.orchestrator.Verify(r.Context(), id, taskDescription, files)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, record)
}

// HandleStatus reports the live or most recent run for an escrow.
func (h *VerificationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, ok := h.pathID(w, r, "/api/verification/status/")
	if !ok {
		return
	}

	record, err := h.orchestrator.Status(id)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, record)
}

// HandleCancel aborts a live verification run.
func (h *VerificationHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, ok := h.pathID(w, r, "/api/verification/cancel/")
	if !ok {
		return
	}

	if err := h.orchestrator.Cancel(id); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, map[string]string{"escrow_id": id.String(), "status": "cancelling"})
}

func (h *VerificationHandler) pathID(w http.ResponseWriter, r *http.Request, prefix string) (escrow.ID, bool) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	id, err := escrow.ParseID(raw)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid escrow id")
		return escrow.ID{}, false
	}
	return id, true
}
