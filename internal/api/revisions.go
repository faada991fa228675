package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alfredjoe/Talktrace-backend/pkg/engine"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

type editRequest struct {
	Text     string           `json:"text"`
	Segments []engine.Segment `json:"segments"`
}

// Edit saves edited transcript content as a new revision.
// POST /api/edit/{id}
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	m := h.loadOwnedMeeting(w, r)
	if m == nil {
		return
	}

	var req editRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		BadRequest(w, "text is required")
		return
	}

	result, err := h.pipeline.SaveTranscriptRevision(r.Context(), m.ID, req.Text, req.Segments)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, map[string]any{
		"success": true,
		"version": result.Version,
		"hash":    result.Hash,
	})
}

// History returns the revision log for one artifact kind.
// GET /api/history/{id}?type=transcript|summary
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	m := h.loadOwnedMeeting(w, r)
	if m == nil {
		return
	}

	kind := models.ArtifactKind(r.URL.Query().Get("type"))
	if kind == "" {
		kind = models.KindTranscript
	}
	if !kind.IsValid() {
		BadRequest(w, "type must be transcript or summary")
		return
	}

	revs, err := h.pipeline.ListRevisions(r.Context(), m.ID, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(revs))
	for _, rev := range revs {
		out = append(out, map[string]any{
			"revision_id": rev.ID,
			"version":     rev.Version,
			"type":        rev.Kind,
			"hash":        rev.ContentHash,
			"created_at":  rev.CreatedAt,
			"active":      rev.Version == m.ActiveVersion,
		})
	}
	WriteJSONOK(w, map[string]any{"success": true, "revisions": out})
}

// RevisionContent returns one revision's decrypted content. The route
// is addressed by revision id alone, so ownership is resolved through
// the revision's meeting. The channel is already authenticated and
// owner-checked; hardened deployments can front this with the session
// envelope as well.
// GET /api/revision/{rid}/content
func (h *Handler) RevisionContent(w http.ResponseWriter, r *http.Request) {
	rid, err := strconv.ParseUint(chi.URLParam(r, "rid"), 10, 64)
	if err != nil {
		BadRequest(w, "invalid revision id")
		return
	}

	rev, err := h.store.GetRevision(r.Context(), uint(rid))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	m, err := h.store.GetMeeting(r.Context(), rev.MeetingID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil || m.UserID != claims.Identity() {
		Forbidden(w, "meeting belongs to another user")
		return
	}

	rev, cleartext, err := h.pipeline.ReadRevisionContent(r.Context(), m.ID, uint(rid))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var content any
	if err := json.Unmarshal(cleartext, &content); err != nil {
		InternalServerError(w, "malformed revision blob")
		return
	}
	WriteJSONOK(w, map[string]any{
		"success": true,
		"version": rev.Version,
		"type":    rev.Kind,
		"content": content,
	})
}

type revertRequest struct {
	RevisionID uint `json:"revision_id"`
}

// Revert restores an older transcript revision as a new version.
// POST /api/revert/{id}
func (h *Handler) Revert(w http.ResponseWriter, r *http.Request) {
	m := h.loadOwnedMeeting(w, r)
	if m == nil {
		return
	}

	var req revertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RevisionID == 0 {
		BadRequest(w, "revision_id is required")
		return
	}

	result, err := h.pipeline.RevertToRevision(r.Context(), m.ID, req.RevisionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, map[string]any{
		"success":     true,
		"new_version": result.Version,
	})
}

type checkoutRequest struct {
	Version int `json:"version"`
}

// Checkout points the meeting's head at an older version.
// POST /api/meeting/{id}/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	m := h.loadOwnedMeeting(w, r)
	if m == nil {
		return
	}

	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Version < 1 {
		BadRequest(w, "version must be a positive integer")
		return
	}

	if err := h.pipeline.CheckoutToVersion(r.Context(), m.ID, req.Version); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, map[string]any{"success": true})
}
