package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
	"github.com/alfredjoe/Talktrace-backend/pkg/crypto"
	"github.com/alfredjoe/Talktrace-backend/pkg/engine"
	"github.com/alfredjoe/Talktrace-backend/pkg/store"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

// IngestRecording consumes provider-supplied audio bytes, transcodes
// them to MP3 and encrypt-streams the result into the vault. On success
// the meeting is marked downloaded and processing is dispatched
// asynchronously. Cleartext never touches disk on this path.
func (o *Orchestrator) IngestRecording(ctx context.Context, meetingID string, r io.Reader) error {
	if err := o.ingest(ctx, meetingID, r); err != nil {
		o.metrics.recordIngest(err)
		o.markFailed(ctx, meetingID)
		_ = o.vault.Remove(o.vault.AudioPath(meetingID))
		return fmt.Errorf("%w: %v", ErrIngest, err)
	}
	o.metrics.recordIngest(nil)

	o.background(o.cfg.ProcessTimeout, func(ctx context.Context) {
		if err := o.ProcessMeeting(ctx, meetingID); err != nil {
			logger.Error("processing after ingest failed",
				logger.KeyMeetingID, meetingID, logger.KeyError, err)
		}
	})
	return nil
}

func (o *Orchestrator) ingest(ctx context.Context, meetingID string, r io.Reader) error {
	key, iv, err := crypto.GenerateDataKey()
	if err != nil {
		return err
	}

	mp3, transcodeErr, err := o.media.Transcode(ctx, r)
	if err != nil {
		return err
	}
	defer mp3.Close()

	audioPath := o.vault.AudioPath(meetingID)
	start := time.Now()
	if err := o.vault.EncryptStreamToFile(mp3, audioPath, key, iv); err != nil {
		return fmt.Errorf("failed to encrypt audio stream: %w", err)
	}
	// The pipe has ended; a transcode failure now invalidates whatever
	// partial output made it into the vault.
	if err, ok := <-transcodeErr; ok && err != nil {
		return err
	}

	if err := o.store.StoreMeetingKey(ctx, meetingID, key, iv); err != nil {
		return fmt.Errorf("failed to persist meeting key: %w", err)
	}
	if err := o.store.UpdateProcessState(ctx, meetingID, models.StateDownloaded, &store.StateUpdate{
		FilePaths: map[string]string{"audio": audioPath},
	}); err != nil {
		return err
	}

	logger.Info("recording ingested",
		logger.KeyMeetingID, meetingID,
		logger.KeyVaultPath, audioPath,
		logger.KeySeconds, int(time.Since(start).Seconds()))
	return nil
}

// ProcessMeeting runs the full transcribe-and-summarize pass: decrypt
// the audio to a temp file, probe and transcribe it, then persist
// transcript and summary as encrypted head blobs plus immutable
// versioned snapshots. Any failure parks the meeting in failed; head
// pointers are only advertised after everything succeeded.
func (o *Orchestrator) ProcessMeeting(ctx context.Context, meetingID string) error {
	unlock := o.lockMeeting(meetingID)
	defer unlock()
	defer o.metrics.recordProcess(time.Now())

	if err := o.store.UpdateProcessState(ctx, meetingID, models.StateTranscribing, nil); err != nil {
		return err
	}

	if err := o.process(ctx, meetingID); err != nil {
		o.markFailed(ctx, meetingID)
		return err
	}
	return nil
}

func (o *Orchestrator) process(ctx context.Context, meetingID string) error {
	key, iv, err := o.store.GetMeetingKey(ctx, meetingID)
	if err != nil {
		return err
	}

	tempPath, err := o.stageDecryptedAudio(meetingID, key, iv)
	if err != nil {
		return err
	}
	// Cleartext audio lives only for the duration of this run.
	defer os.Remove(tempPath)

	duration := 0
	if d, err := o.media.ProbeDuration(ctx, tempPath); err != nil {
		logger.Warn("duration probe failed", logger.KeyMeetingID, meetingID, logger.KeyError, err)
	} else {
		duration = d
	}

	transcript, err := o.transcriber.Transcribe(ctx, tempPath)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	os.Remove(tempPath)

	version, hash, err := o.writeArtifacts(ctx, meetingID, key, iv, transcript)
	if err != nil {
		return err
	}

	if err := o.store.UpdateProcessState(ctx, meetingID, models.StateCompleted, &store.StateUpdate{
		FilePaths: map[string]string{
			"audio":      o.vault.AudioPath(meetingID),
			"transcript": o.vault.DataPath(meetingID, string(models.KindTranscript)),
			"summary":    o.vault.DataPath(meetingID, string(models.KindSummary)),
		},
		DurationSeconds: &duration,
		ActiveVersion:   &version,
	}); err != nil {
		return err
	}

	logger.Info("meeting processed",
		logger.KeyMeetingID, meetingID,
		logger.KeyVersion, version,
		logger.KeyHash, hash,
		logger.KeySeconds, duration)
	return nil
}

// stageDecryptedAudio stream-decrypts the vault audio blob into a temp
// file for the subprocess engines. The caller removes it.
func (o *Orchestrator) stageDecryptedAudio(meetingID string, key, iv []byte) (string, error) {
	src, err := o.vault.DecryptStream(o.vault.AudioPath(meetingID), key, iv)
	if err != nil {
		return "", fmt.Errorf("failed to open audio blob: %w", err)
	}
	defer src.Close()

	// Owner-only perms and an unguessable name: this is the only moment
	// cleartext audio touches disk.
	path := filepath.Join(os.TempDir(), fmt.Sprintf("talktrace-%s.mp3", uuid.NewString()))
	tmp, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to stage decrypted audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// writeArtifacts persists a transcript and its freshly generated summary
// at the next revision version: encrypted head blobs, immutable
// snapshots, and matching revision rows for both kinds.
func (o *Orchestrator) writeArtifacts(ctx context.Context, meetingID string, key, iv []byte,
	transcript *engine.Transcript) (version int, hash string, err error) {

	latest, err := o.store.LatestVersion(ctx, meetingID, models.KindTranscript)
	if err != nil {
		return 0, "", err
	}
	version = latest + 1
	hash = crypto.ContentHash(transcript.Text)

	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return 0, "", err
	}
	if err := o.writeVersioned(ctx, meetingID, models.KindTranscript, version, hash, transcriptJSON, key, iv); err != nil {
		return 0, "", err
	}

	summary := o.summarizer.Summarize(ctx, transcript.Text)
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return 0, "", err
	}
	// The summary hashes over the summary sentence alone; action items
	// are presentation, not content.
	if err := o.writeVersioned(ctx, meetingID, models.KindSummary, version,
		crypto.ContentHash(summary.Summary), summaryJSON, key, iv); err != nil {
		return 0, "", err
	}

	return version, hash, nil
}

// writeVersioned writes one artifact's encrypted head blob and version
// snapshot and appends the revision row.
func (o *Orchestrator) writeVersioned(ctx context.Context, meetingID string, kind models.ArtifactKind,
	version int, hash string, cleartext, key, iv []byte) error {

	head := o.vault.DataPath(meetingID, string(kind))
	snapshot := o.vault.SnapshotPath(meetingID, string(kind), version)

	if err := o.vault.EncryptBufferToFile(cleartext, head, key, iv); err != nil {
		return fmt.Errorf("failed to write %s head: %w", kind, err)
	}
	if err := o.vault.EncryptBufferToFile(cleartext, snapshot, key, iv); err != nil {
		return fmt.Errorf("failed to write %s snapshot: %w", kind, err)
	}
	if _, err := o.store.AddRevision(ctx, meetingID, version, hash, snapshot, kind); err != nil {
		return fmt.Errorf("failed to append %s revision: %w", kind, err)
	}
	o.metrics.recordRevision(string(kind))
	return nil
}

// ResumeProcessing retries the processing pass for a meeting with a
// claimed or finished download. Meetings still initializing have
// nothing to resume, and an in-flight transcription is left alone.
// Resuming from downloading covers a crash between the download claim
// and the downloaded write; without vault audio the run fails and the
// meeting lands in failed instead of staying stuck.
func (o *Orchestrator) ResumeProcessing(ctx context.Context, meetingID string) error {
	m, err := o.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	switch m.State() {
	case models.StateInitializing:
		return fmt.Errorf("meeting %s has no audio to process yet: %w", meetingID, ErrProcessingActive)
	case models.StateTranscribing:
		return nil
	}
	return o.ProcessMeeting(ctx, meetingID)
}

// Retry validates that a retry makes sense and dispatches the
// processing pass in the background. This is the asynchronous face of
// ResumeProcessing for request handlers.
func (o *Orchestrator) Retry(ctx context.Context, meetingID string) error {
	m, err := o.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	switch m.State() {
	case models.StateInitializing:
		return fmt.Errorf("meeting %s has no audio to process yet: %w", meetingID, ErrProcessingActive)
	case models.StateTranscribing:
		return nil
	}

	o.background(o.cfg.ProcessTimeout, func(ctx context.Context) {
		if err := o.ProcessMeeting(ctx, meetingID); err != nil {
			logger.Error("retry processing failed",
				logger.KeyMeetingID, meetingID, logger.KeyError, err)
		}
	})
	return nil
}
