// Package engine adapts the external processors: the diarizing
// transcriber subprocess, the LLM summarizer and the ffmpeg transcode
// helpers. Adapters never touch the vault or any data key; they operate
// on decrypted temp files and plain text handed in by the orchestrator.
package engine

import "fmt"

// Segment is one diarized slice of recognized speech.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Transcript is the normalized transcriber output. This is also the
// exact shape persisted in the vault's transcript blobs.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Summary is the normalized summarizer output.
type Summary struct {
	Summary string   `json:"summary"`
	Actions []string `json:"actions"`
}

// TranscriberError is a transcription run that produced no usable JSON.
type TranscriberError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *TranscriberError) Error() string {
	return fmt.Sprintf("transcriber failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *TranscriberError) Unwrap() error { return e.Err }

// SummarizerError is a summarization attempt that could not produce a
// usable result. Callers fall back to a mock summary on it.
type SummarizerError struct {
	Reason string
	Err    error
}

func (e *SummarizerError) Error() string {
	return fmt.Sprintf("summarizer failed: %s", e.Reason)
}

func (e *SummarizerError) Unwrap() error { return e.Err }
