package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/alfredjoe/Talktrace-backend/pkg/crypto"
)

type verifyRequest struct {
	Hash      string   `json:"hash"`
	Hashes    []string `json:"hashes"`
	Content   string   `json:"content"`
	MeetingID string   `json:"meeting_id"`
}

// Verify checks whether a candidate hash (or raw content) matches any
// recorded revision. Supplying a meeting id enables the fuzzy fallback
// for hashes computed over re-extracted document text.
// POST /api/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	candidates := make([]string, 0, len(req.Hashes)+3)
	if req.Hash != "" {
		candidates = append(candidates, req.Hash)
	}
	candidates = append(candidates, req.Hashes...)

	calculated := ""
	if req.Content != "" {
		calculated = crypto.ContentHash(req.Content)
		candidates = append(candidates, calculated,
			crypto.ContentHash(strings.Join(strings.Fields(req.Content), " ")))
	}
	if len(candidates) == 0 {
		BadRequest(w, "provide hash, hashes or content")
		return
	}

	// Ownership gates the fuzzy path: it decrypts artifacts.
	if req.MeetingID != "" {
		m, err := h.store.GetMeeting(r.Context(), req.MeetingID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if m.UserID != ClaimsFromContext(r.Context()).Identity() {
			Forbidden(w, "meeting belongs to another user")
			return
		}
	}

	result, err := h.pipeline.VerifyHash(r.Context(), req.MeetingID, candidates)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{"verified": result.Verified}
	if calculated != "" {
		resp["calculated_hash"] = calculated
	}
	if result.Verified {
		resp["version"] = result.Revision.Version
		resp["type"] = result.Revision.Kind
		resp["date"] = time.UnixMilli(result.Revision.CreatedAt).UTC().Format(time.RFC3339)
		if result.Method == "exact" {
			resp["message"] = "Content hash matches exactly"
		} else {
			resp["message"] = "Content matches after canonicalization (" + result.Method + ")"
		}
	} else {
		resp["message"] = "No matching revision found"
	}
	WriteJSONOK(w, resp)
}
