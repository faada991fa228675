package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
)

// TranscriberConfig configures the transcriber subprocess.
type TranscriberConfig struct {
	// Command is the argv prefix, e.g. ["python3", "scripts/diarize.py"].
	// The audio path is appended as the final argument. An empty command
	// enables the development mock.
	Command []string
	// Model is passed through as WHISPER_MODEL when set.
	Model string
	// Timeout bounds one transcription run. Zero means 30 minutes.
	Timeout time.Duration
}

// Transcriber runs the diarizing speech-to-text subprocess and
// normalizes its output.
type Transcriber struct {
	cfg TranscriberConfig
}

// NewTranscriber builds a transcriber from config.
func NewTranscriber(cfg TranscriberConfig) *Transcriber {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &Transcriber{cfg: cfg}
}

const maxStderrCapture = 8 * 1024

// Transcribe runs the subprocess on the decrypted audio file and returns
// the normalized transcript. The process writes JSON to stdout mixed with
// progress noise on stderr; a nonzero exit is tolerated when the stdout
// JSON parses. Speaker self-introductions in the transcript rename the
// diarized labels afterwards.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	if len(t.cfg.Command) == 0 {
		logger.Warn("transcriber command not configured, using mock output",
			logger.KeyMock, true, logger.KeyEngine, "transcriber")
		return mockTranscript(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, t.cfg.Command[1:]...), audioPath)
	cmd := exec.CommandContext(ctx, t.cfg.Command[0], args...)
	cmd.Env = os.Environ()
	if t.cfg.Model != "" {
		cmd.Env = append(cmd.Env, "WHISPER_MODEL="+t.cfg.Model)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// Spawn failure, e.g. missing interpreter.
			logger.Warn("transcriber binary unavailable, using mock output",
				logger.KeyMock, true, logger.KeyEngine, "transcriber",
				logger.KeyError, runErr)
			return mockTranscript(), nil
		}
	}

	transcript, err := parseTranscriberOutput(stdout.Bytes())
	if err != nil {
		return nil, &TranscriberError{
			ExitCode: exitCode,
			Stderr:   truncate(stderr.String(), maxStderrCapture),
			Err:      err,
		}
	}

	applySpeakerNames(transcript)
	logger.Info("transcription finished",
		logger.KeySeconds, int(time.Since(start).Seconds()),
		logger.KeyExitCode, exitCode)
	return transcript, nil
}

// parseTranscriberOutput extracts the outermost JSON object from the
// stdout stream (first '{' to last '}') and decodes it. The subprocess
// reports its own failures as {"error": "..."} with exit code 1.
func parseTranscriberOutput(stdout []byte) (*Transcript, error) {
	first := bytes.IndexByte(stdout, '{')
	last := bytes.LastIndexByte(stdout, '}')
	if first == -1 || last <= first {
		return nil, fmt.Errorf("no JSON object in transcriber output")
	}

	var payload struct {
		Error    string    `json:"error"`
		Text     string    `json:"text"`
		Segments []Segment `json:"segments"`
	}
	if err := json.Unmarshal(stdout[first:last+1], &payload); err != nil {
		return nil, fmt.Errorf("malformed transcriber JSON: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("transcriber reported: %s", payload.Error)
	}
	return &Transcript{Text: payload.Text, Segments: payload.Segments}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// mockTranscript is the development fallback when no engine is installed.
func mockTranscript() *Transcript {
	text := "This is a mock transcription. Install the transcription engine to process real audio."
	return &Transcript{
		Text: text,
		Segments: []Segment{
			{Start: 0, End: 5, Text: text, Speaker: "SPEAKER_00"},
		},
	}
}

// speakerIntro matches "my name is <name>" with an optional
// "and my id is <id>" tail, terminated by punctuation or end of text.
var speakerIntro = regexp.MustCompile(
	`(?i)\bmy\s+name\s+is\s+([a-z\s]+?)(?:\s+and\s+my\s+id\s+is\s+(\w+))?\s*(?:[.,!?]|$)`)

// applySpeakerNames replaces diarized speaker labels (SPEAKER_00 style)
// with names the speakers introduced themselves with. The first
// introduction per label wins.
func applySpeakerNames(t *Transcript) {
	names := make(map[string]string)
	for _, seg := range t.Segments {
		if seg.Speaker == "" || names[seg.Speaker] != "" {
			continue
		}
		if name := extractSpeakerName(seg.Text); name != "" {
			names[seg.Speaker] = name
			logger.Info("speaker identified", "label", seg.Speaker, "name", name)
		}
	}
	if len(names) == 0 {
		return
	}
	for i := range t.Segments {
		if name, ok := names[t.Segments[i].Speaker]; ok {
			t.Segments[i].Speaker = name
		}
	}
}

// extractSpeakerName parses one segment for a self-introduction and
// returns the title-cased name, with the id suffixed when present.
// Implausible lengths are ignored.
func extractSpeakerName(text string) string {
	m := speakerIntro.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	if len(name) <= 1 || len(name) >= 50 {
		return ""
	}
	name = titleCase(name)
	if m[2] != "" {
		name += " " + m[2]
	}
	return name
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
