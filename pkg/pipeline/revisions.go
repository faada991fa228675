package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
	"github.com/alfredjoe/Talktrace-backend/pkg/engine"
	"github.com/alfredjoe/Talktrace-backend/pkg/store"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

// RevisionResult reports a successful revision write.
type RevisionResult struct {
	Version int
	Hash    string
}

// SaveTranscriptRevision persists edited transcript content as the next
// version: new head blobs, new snapshots, and revision rows for both the
// transcript and a regenerated summary. Transcript and summary share the
// version number so a later checkout restores a consistent pair.
func (o *Orchestrator) SaveTranscriptRevision(ctx context.Context, meetingID, text string,
	segments []engine.Segment) (*RevisionResult, error) {

	unlock := o.lockMeeting(meetingID)
	defer unlock()

	if _, err := o.requireState(ctx, meetingID, models.StateCompleted, models.StateFailed); err != nil {
		return nil, err
	}

	key, iv, err := o.store.GetMeetingKey(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	transcript := &engine.Transcript{Text: text, Segments: segments}
	version, hash, err := o.writeArtifacts(ctx, meetingID, key, iv, transcript)
	if err != nil {
		return nil, err
	}

	// A prior checkout may have pointed file_paths at snapshots; a new
	// revision always brings the head pointers back.
	if err := o.store.UpdateProcessState(ctx, meetingID, models.StateCompleted, &store.StateUpdate{
		FilePaths: map[string]string{
			"audio":      o.vault.AudioPath(meetingID),
			"transcript": o.vault.DataPath(meetingID, string(models.KindTranscript)),
			"summary":    o.vault.DataPath(meetingID, string(models.KindSummary)),
		},
		ActiveVersion: &version,
	}); err != nil {
		return nil, err
	}

	logger.Info("transcript revision saved",
		logger.KeyMeetingID, meetingID, logger.KeyVersion, version, logger.KeyHash, hash)
	return &RevisionResult{Version: version, Hash: hash}, nil
}

// RevertToRevision restores the content of an older transcript revision
// as a brand-new version. History is append-only: reverting to version M
// produces version N+1 with M's content, never a rewrite.
func (o *Orchestrator) RevertToRevision(ctx context.Context, meetingID string, revisionID uint) (*RevisionResult, error) {
	rev, err := o.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.MeetingID != meetingID {
		return nil, models.ErrRevisionNotFound
	}
	if rev.Kind != string(models.KindTranscript) {
		return nil, ErrNotTranscript
	}

	key, iv, err := o.store.GetMeetingKey(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	cleartext, err := o.vault.DecryptFileToBuffer(rev.FilePath, key, iv)
	if err != nil {
		return nil, fmt.Errorf("failed to load revision snapshot: %w", err)
	}

	var transcript engine.Transcript
	if err := json.Unmarshal(cleartext, &transcript); err != nil {
		return nil, fmt.Errorf("malformed revision snapshot: %w", err)
	}

	return o.SaveTranscriptRevision(ctx, meetingID, transcript.Text, transcript.Segments)
}

// CheckoutToVersion points the meeting's head at an older version
// without touching history.
func (o *Orchestrator) CheckoutToVersion(ctx context.Context, meetingID string, version int) error {
	unlock := o.lockMeeting(meetingID)
	defer unlock()

	if err := o.store.CheckoutVersion(ctx, meetingID, version); err != nil {
		return err
	}
	logger.Info("version checked out", logger.KeyMeetingID, meetingID, logger.KeyVersion, version)
	return nil
}

// ListRevisions returns the revision log for one artifact kind,
// newest first.
func (o *Orchestrator) ListRevisions(ctx context.Context, meetingID string, kind models.ArtifactKind) ([]*models.Revision, error) {
	if _, err := o.store.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	return o.store.ListRevisions(ctx, meetingID, kind)
}

// OpenArtifact returns a cleartext stream of one of the meeting's head
// artifacts ("audio", "transcript" or "summary"). Callers re-encrypt
// under a session key before any byte leaves the process.
func (o *Orchestrator) OpenArtifact(ctx context.Context, meetingID, kind string) (io.ReadCloser, error) {
	m, err := o.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	relPath, ok := m.GetFilePaths()[kind]
	if !ok || relPath == "" {
		return nil, fmt.Errorf("meeting %s has no %s artifact: %w", meetingID, kind, models.ErrRevisionNotFound)
	}

	key, iv, err := o.store.GetMeetingKey(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	return o.vault.DecryptStream(relPath, key, iv)
}

// ReadRevisionContent decrypts one revision snapshot into memory.
func (o *Orchestrator) ReadRevisionContent(ctx context.Context, meetingID string, revisionID uint) (*models.Revision, []byte, error) {
	rev, err := o.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, nil, err
	}
	if rev.MeetingID != meetingID {
		return nil, nil, models.ErrRevisionNotFound
	}

	key, iv, err := o.store.GetMeetingKey(ctx, meetingID)
	if err != nil {
		return nil, nil, err
	}
	cleartext, err := o.vault.DecryptFileToBuffer(rev.FilePath, key, iv)
	if err != nil {
		return nil, nil, err
	}
	return rev, cleartext, nil
}
