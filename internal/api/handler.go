package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alfredjoe/Talktrace-backend/internal/metrics"
	"github.com/alfredjoe/Talktrace-backend/pkg/engine"
	"github.com/alfredjoe/Talktrace-backend/pkg/pipeline"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

// Pipeline is the slice of the orchestrator the API consumes.
type Pipeline interface {
	Join(ctx context.Context, userID, meetingURL, botName string) (string, error)
	Leave(ctx context.Context, meetingID string) error
	HandleStatusPoll(ctx context.Context, meetingID string) (*pipeline.PollResult, error)
	Retry(ctx context.Context, meetingID string) error
	DeleteMeeting(ctx context.Context, meetingID string) error
	SaveTranscriptRevision(ctx context.Context, meetingID, text string, segments []engine.Segment) (*pipeline.RevisionResult, error)
	RevertToRevision(ctx context.Context, meetingID string, revisionID uint) (*pipeline.RevisionResult, error)
	CheckoutToVersion(ctx context.Context, meetingID string, version int) error
	ListRevisions(ctx context.Context, meetingID string, kind models.ArtifactKind) ([]*models.Revision, error)
	OpenArtifact(ctx context.Context, meetingID, kind string) (io.ReadCloser, error)
	ReadRevisionContent(ctx context.Context, meetingID string, revisionID uint) (*models.Revision, []byte, error)
	VerifyHash(ctx context.Context, meetingID string, candidates []string) (*pipeline.VerifyResult, error)
}

// MeetingStore is the read-only metadata access the API needs for
// ownership checks and listings.
type MeetingStore interface {
	GetMeeting(ctx context.Context, id string) (*models.Meeting, error)
	ListMeetingsByUser(ctx context.Context, userID string) ([]*models.Meeting, error)
	GetRevision(ctx context.Context, id uint) (*models.Revision, error)
}

// Handler implements the /api routes. Policy lives in the pipeline;
// handlers authenticate, check ownership, translate states and own the
// per-request response envelope.
type Handler struct {
	pipeline Pipeline
	store    MeetingStore
	metrics  *metrics.Metrics
}

// NewHandler creates the API handler.
func NewHandler(p Pipeline, store MeetingStore, m *metrics.Metrics) *Handler {
	return &Handler{pipeline: p, store: store, metrics: m}
}

// decodeJSON decodes a JSON request body, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// loadOwnedMeeting enforces the authenticate-then-ownership policy for
// a meeting-scoped route. It writes the error response itself and
// returns nil when the caller should stop.
func (h *Handler) loadOwnedMeeting(w http.ResponseWriter, r *http.Request) *models.Meeting {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "missing meeting id")
		return nil
	}

	m, err := h.store.GetMeeting(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil
	}

	claims := ClaimsFromContext(r.Context())
	if claims == nil || m.UserID != claims.Identity() {
		Forbidden(w, "meeting belongs to another user")
		return nil
	}
	return m
}
