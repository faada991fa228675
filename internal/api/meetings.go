package api

import (
	"fmt"
	"net/http"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

type joinRequest struct {
	MeetingURL string `json:"meeting_url"`
	BotName    string `json:"bot_name"`
}

// Join dispatches a bot into a meeting.
// POST /api/join
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MeetingURL == "" {
		BadRequest(w, "meeting_url is required")
		return
	}

	claims := ClaimsFromContext(r.Context())
	meetingID, err := h.pipeline.Join(r.Context(), claims.Identity(), req.MeetingURL, req.BotName)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.MeetingsJoined.Inc()
	}
	WriteJSONOK(w, map[string]any{
		"success":    true,
		"meeting_id": meetingID,
		"message":    "Bot is joining the meeting",
	})
}

type leaveRequest struct {
	MeetingID string `json:"meeting_id"`
}

// Leave asks the bot to leave the call.
// POST /api/leave
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MeetingID == "" {
		BadRequest(w, "meeting_id is required")
		return
	}

	m, err := h.store.GetMeeting(r.Context(), req.MeetingID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if m.UserID != ClaimsFromContext(r.Context()).Identity() {
		Forbidden(w, "meeting belongs to another user")
		return
	}

	if err := h.pipeline.Leave(r.Context(), req.MeetingID); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, map[string]any{"success": true})
}

// Status answers a status poll for one meeting.
// GET /api/status/{id}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	m := h.loadOwnedMeeting(w, r)
	if m == nil {
		return
	}

	result, err := h.pipeline.HandleStatusPoll(r.Context(), m.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if result.Discarded {
		if h.metrics != nil {
			h.metrics.MeetingsDiscarded.Inc()
		}
		WriteJSONOK(w, map[string]any{
			"status":  "discarded",
			"message": "The meeting ended without producing audio and was removed",
		})
		return
	}

	resp := map[string]any{
		"status":        statusBadge(result.ProcessState),
		"process_state": string(result.ProcessState),
		"audio_ready":   result.AudioReady,
		"timestamp":     result.Timestamp,
	}
	if result.RawStatus != "" {
		resp["raw_status"] = result.RawStatus
	}
	if result.ProcessState == models.StateCompleted {
		artifacts := make([]string, 0, 3)
		for kind := range m.GetFilePaths() {
			artifacts = append(artifacts, kind)
		}
		resp["artifacts"] = artifacts
	}
	WriteJSONOK(w, resp)
}

// statusBadge translates a process state into the client-facing badge.
// The UI expects "complete", not "completed", and a single "processing"
// badge for every in-flight stage; only "failed" passes through.
func statusBadge(state models.ProcessState) string {
	switch state {
	case models.StateCompleted:
		return "complete"
	case models.StateInitializing, models.StateDownloading, models.StateDownloaded, models.StateTranscribing:
		return "processing"
	default:
		return string(state)
	}
}

// ListMeetings returns the caller's meetings, newest first.
// GET /api/meetings
func (h *Handler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	meetings, err := h.store.ListMeetingsByUser(r.Context(), claims.Identity())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, map[string]any{
			"id":         m.ID,
			"meeting_id": m.ID,
			"user_id":    m.UserID,
			// The listing shows the raw process state, unlike the
			// status endpoint's badge spelling.
			"status":        m.ProcessState,
			"process_state": m.ProcessState,
			"created_at":    m.CreatedAt,
			"duration":      formatDuration(m.DurationSeconds),
			"date":          m.CreatedTime().Format("2006-01-02"),
		})
	}
	WriteJSONOK(w, map[string]any{"success": true, "meetings": out})
}

// formatDuration renders whole seconds as MM:SS, or HH:MM:SS from one
// hour up.
func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Retry re-enters the processing stage for a stuck or failed meeting.
// POST /api/retry/{id}
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	m := h.loadOwnedMeeting(w, r)
	if m == nil {
		return
	}

	if err := h.pipeline.Retry(r.Context(), m.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSONOK(w, map[string]any{"success": true})
}

// DeleteMeeting crypto-shreds a meeting.
// DELETE /api/meeting/{id}
func (h *Handler) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	m := h.loadOwnedMeeting(w, r)
	if m == nil {
		return
	}

	if err := h.pipeline.DeleteMeeting(r.Context(), m.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	logger.Info("meeting deleted by user",
		logger.KeyMeetingID, m.ID, logger.KeyUserID, m.UserID)
	WriteJSONOK(w, map[string]any{"success": true})
}
