package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
)

// MediaConfig points at the ffmpeg binaries. Zero values select the
// binaries from PATH.
type MediaConfig struct {
	FFmpegPath  string
	FFprobePath string
}

// Media runs the ffmpeg transcode and probe subprocesses.
type Media struct {
	ffmpeg  string
	ffprobe string
}

// NewMedia builds the media helper from config.
func NewMedia(cfg MediaConfig) *Media {
	m := &Media{ffmpeg: cfg.FFmpegPath, ffprobe: cfg.FFprobePath}
	if m.ffmpeg == "" {
		m.ffmpeg = "ffmpeg"
	}
	if m.ffprobe == "" {
		m.ffprobe = "ffprobe"
	}
	return m
}

// Transcode starts an ffmpeg process that reads arbitrary provider
// audio from in and emits MP3 frames on the returned reader. The error
// channel receives the process result exactly once after the stream
// ends; a failed transcode surfaces there, not as a read error.
func (m *Media) Transcode(ctx context.Context, in io.Reader) (io.ReadCloser, <-chan error, error) {
	cmd := exec.CommandContext(ctx, m.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-codec:a", "libmp3lame",
		"-b:a", "128k",
		"-f", "mp3",
		"pipe:1",
	)
	cmd.Stdin = in

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := cmd.Wait(); err != nil {
			msg := truncate(strings.TrimSpace(stderr.String()), maxStderrCapture)
			logger.Error("ffmpeg transcode failed", logger.KeyError, err, "stderr", msg)
			errCh <- fmt.Errorf("ffmpeg transcode failed: %s: %w", msg, err)
		}
	}()
	return stdout, errCh, nil
}

// ProbeDuration returns the audio duration in whole seconds, rounded.
// Callers treat probe failures as non-fatal and fall back to zero.
func (m *Media) ProbeDuration(ctx context.Context, path string) (int, error) {
	out, err := exec.CommandContext(ctx, m.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return int(math.Round(seconds)), nil
}
