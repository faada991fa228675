package pipeline

import (
	"context"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
	"github.com/alfredjoe/Talktrace-backend/pkg/botclient"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

// PollResult is the normalized answer to a status poll.
type PollResult struct {
	// ProcessState is the meeting's pipeline state, empty when discarded.
	ProcessState models.ProcessState
	// RawStatus is the provider's state name when the provider was
	// consulted during this poll.
	RawStatus string
	// AudioReady reports whether the provider has a recording available.
	AudioReady bool
	// Timestamp is the last state-transition time, epoch ms.
	Timestamp int64
	// Discarded reports that the meeting ended without audio and was
	// auto-deleted during this poll.
	Discarded bool
}

// HandleStatusPoll answers a client status poll and doubles as the
// pipeline's heartbeat. Depending on the stored state it consults the
// provider, claims the download exactly once when audio appears,
// auto-discards audio-less terminal meetings, and nudges stalled
// processing forward.
func (o *Orchestrator) HandleStatusPoll(ctx context.Context, meetingID string) (*PollResult, error) {
	m, err := o.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	result := &PollResult{
		ProcessState: m.State(),
		Timestamp:    m.CurrentTimestamp,
	}

	switch m.State() {
	case models.StateInitializing:
		return o.pollProvider(ctx, meetingID, result)

	case models.StateDownloaded:
		// Processing was dispatched but never finished (for example a
		// restart between download and transcription). Nudge it.
		o.background(o.cfg.ProcessTimeout, func(ctx context.Context) {
			if err := o.ResumeProcessing(ctx, meetingID); err != nil {
				logger.Error("resume after poll failed",
					logger.KeyMeetingID, meetingID, logger.KeyError, err)
			}
		})
		return result, nil

	default:
		// downloading, transcribing, completed, failed: the stored state
		// is the answer.
		return result, nil
	}
}

// pollProvider consults the bot provider for a meeting still waiting on
// audio. Concurrent polls for the same meeting collapse into one
// provider call.
func (o *Orchestrator) pollProvider(ctx context.Context, meetingID string, result *PollResult) (*PollResult, error) {
	v, err, _ := o.flight.Do("poll:"+meetingID, func() (any, error) {
		return o.bots.Status(ctx, meetingID)
	})
	if err != nil {
		return nil, err
	}
	status := v.(botclient.BotStatus)

	result.RawStatus = status.RawStatus
	result.AudioReady = status.AudioReady

	switch {
	case status.AudioReady:
		won, err := o.store.ClaimForDownload(ctx, meetingID)
		if err != nil {
			return nil, err
		}
		if won {
			logger.Info("audio ready, ingestion claimed",
				logger.KeyMeetingID, meetingID, logger.KeyState, models.StateDownloading)
			o.background(o.cfg.IngestTimeout, func(ctx context.Context) {
				o.downloadAndIngest(ctx, meetingID, status.AudioURL)
			})
		}
		result.ProcessState = models.StateDownloading
		return result, nil

	case status.Terminal():
		// The call ended and no recording will ever appear. Discard.
		logger.Info("terminal provider state without audio, discarding",
			logger.KeyMeetingID, meetingID, "raw_status", status.RawStatus)
		if err := o.DeleteMeeting(ctx, meetingID); err != nil {
			return nil, err
		}
		return &PollResult{Discarded: true, RawStatus: status.RawStatus}, nil

	default:
		return result, nil
	}
}

// downloadAndIngest retrieves the recording and feeds it through the
// ingestion path. Failures mark the meeting failed.
func (o *Orchestrator) downloadAndIngest(ctx context.Context, meetingID, audioURL string) {
	body, err := o.bots.DownloadAudio(ctx, audioURL)
	if err != nil {
		logger.Error("recording download failed",
			logger.KeyMeetingID, meetingID, logger.KeyError, err)
		o.markFailed(ctx, meetingID)
		return
	}
	defer body.Close()

	if err := o.IngestRecording(ctx, meetingID, body); err != nil {
		logger.Error("ingestion failed",
			logger.KeyMeetingID, meetingID, logger.KeyError, err)
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, meetingID string) {
	if err := o.store.UpdateProcessState(ctx, meetingID, models.StateFailed, nil); err != nil {
		logger.Error("failed to record failure state",
			logger.KeyMeetingID, meetingID, logger.KeyError, err)
	}
}
