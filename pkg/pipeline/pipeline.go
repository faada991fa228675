// Package pipeline orchestrates the meeting lifecycle: joining via the
// bot provider, ingesting and encrypting the recording, driving the
// transcription and summarization engines, and maintaining the revision
// log. All cryptographic material flows through here; the HTTP layer
// only ever sees ciphertext streams and metadata.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
	"github.com/alfredjoe/Talktrace-backend/pkg/botclient"
	"github.com/alfredjoe/Talktrace-backend/pkg/engine"
	"github.com/alfredjoe/Talktrace-backend/pkg/store"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
	"github.com/alfredjoe/Talktrace-backend/pkg/vault"
)

var (
	// ErrIngest wraps failures of the download-transcode-encrypt path.
	ErrIngest = errors.New("recording ingestion failed")
	// ErrNotTranscript rejects reverts that target a summary revision.
	ErrNotTranscript = errors.New("only transcript revisions can be reverted")
	// ErrProcessingActive rejects operations on a meeting whose pipeline
	// run is still in flight.
	ErrProcessingActive = errors.New("meeting is still processing")
)

// BotProvider is the slice of the provider client the orchestrator uses.
type BotProvider interface {
	Join(ctx context.Context, meetingURL, botName string) (string, error)
	Status(ctx context.Context, botID string) (botclient.BotStatus, error)
	DownloadAudio(ctx context.Context, url string) (io.ReadCloser, error)
	Leave(ctx context.Context, botID string) error
}

// TranscriberEngine converts a decrypted audio file into a transcript.
type TranscriberEngine interface {
	Transcribe(ctx context.Context, audioPath string) (*engine.Transcript, error)
}

// SummarizerEngine condenses transcript text into a summary.
type SummarizerEngine interface {
	Summarize(ctx context.Context, text string) *engine.Summary
}

// MediaEngine transcodes and probes audio via ffmpeg.
type MediaEngine interface {
	Transcode(ctx context.Context, in io.Reader) (io.ReadCloser, <-chan error, error)
	ProbeDuration(ctx context.Context, path string) (int, error)
}

// Config bounds the orchestrator's background work.
type Config struct {
	// ProcessTimeout caps one full transcribe-and-summarize run.
	// Zero means 45 minutes.
	ProcessTimeout time.Duration
	// IngestTimeout caps one download-transcode-encrypt run.
	// Zero means 30 minutes.
	IngestTimeout time.Duration
	// Metrics, when set, receives pipeline stage counters.
	Metrics *Metrics
}

// Orchestrator drives the per-meeting state machine.
type Orchestrator struct {
	store       *store.Store
	vault       *vault.Vault
	bots        BotProvider
	transcriber TranscriberEngine
	summarizer  SummarizerEngine
	media       MediaEngine
	cfg         Config
	metrics     *Metrics

	// flight dedupes concurrent provider polls per meeting.
	flight singleflight.Group

	// mu guards locks; each meeting gets its own mutex serializing its
	// pipeline runs and revision writes.
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// wg tracks background tasks for clean shutdown.
	wg sync.WaitGroup
}

// New wires the orchestrator.
func New(st *store.Store, vlt *vault.Vault, bots BotProvider,
	transcriber TranscriberEngine, summarizer SummarizerEngine, media MediaEngine,
	cfg Config) *Orchestrator {
	if cfg.ProcessTimeout == 0 {
		cfg.ProcessTimeout = 45 * time.Minute
	}
	if cfg.IngestTimeout == 0 {
		cfg.IngestTimeout = 30 * time.Minute
	}
	return &Orchestrator{
		store:       st,
		vault:       vlt,
		bots:        bots,
		transcriber: transcriber,
		summarizer:  summarizer,
		media:       media,
		cfg:         cfg,
		metrics:     cfg.Metrics,
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockMeeting serializes pipeline work for one meeting and returns the
// unlock function.
func (o *Orchestrator) lockMeeting(id string) func() {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	o.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// background runs fn detached from the request context with its own
// deadline. Wait blocks on all such tasks.
func (o *Orchestrator) background(timeout time.Duration, fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until all background pipeline tasks have finished. Used
// during shutdown and in tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Join dispatches a bot into the meeting and registers the meeting for
// the user. The provider's bot id becomes the meeting id.
func (o *Orchestrator) Join(ctx context.Context, userID, meetingURL, botName string) (string, error) {
	botID, err := o.bots.Join(ctx, meetingURL, botName)
	if err != nil {
		return "", err
	}

	if _, err := o.store.CreateMeeting(ctx, userID, botID); err != nil {
		// The bot is already in the call; pull it back out rather than
		// leak an unowned recording.
		if leaveErr := o.bots.Leave(context.WithoutCancel(ctx), botID); leaveErr != nil {
			logger.Warn("failed to remove bot after registration failure",
				logger.KeyBotID, botID, logger.KeyError, leaveErr)
		}
		return "", fmt.Errorf("failed to register meeting: %w", err)
	}

	logger.Info("meeting joined", logger.KeyMeetingID, botID, logger.KeyUserID, userID)
	return botID, nil
}

// Leave asks the bot to leave the call. Meeting state is untouched; the
// provider will eventually report a terminal status and the poll path
// takes over.
func (o *Orchestrator) Leave(ctx context.Context, meetingID string) error {
	return o.bots.Leave(ctx, meetingID)
}

// DeleteMeeting crypto-shreds a meeting. The metadata transaction
// removes the key record first, making every vault blob unrecoverable;
// unlinking the blobs afterwards is best-effort cleanup.
func (o *Orchestrator) DeleteMeeting(ctx context.Context, meetingID string) error {
	if err := o.store.DeleteMeeting(ctx, meetingID); err != nil {
		return err
	}
	o.vault.RemoveMeeting(meetingID)
	o.dropMeetingLock(meetingID)
	o.metrics.recordDelete()
	logger.Info("meeting deleted", logger.KeyMeetingID, meetingID)
	return nil
}

// dropMeetingLock forgets a deleted meeting's mutex so the lock map
// does not grow without bound. A straggling run still holding the old
// mutex only races against store lookups that now return not-found.
func (o *Orchestrator) dropMeetingLock(id string) {
	o.mu.Lock()
	delete(o.locks, id)
	o.mu.Unlock()
}

// requireState loads the meeting and verifies its process state is one
// of the allowed states.
func (o *Orchestrator) requireState(ctx context.Context, meetingID string, allowed ...models.ProcessState) (*models.Meeting, error) {
	m, err := o.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	for _, s := range allowed {
		if m.State() == s {
			return m, nil
		}
	}
	return nil, fmt.Errorf("meeting %s is in state %s: %w", meetingID, m.ProcessState, ErrProcessingActive)
}
