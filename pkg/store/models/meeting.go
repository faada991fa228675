package models

import (
	"encoding/json"
	"time"
)

// ProcessState tracks a meeting through the artifact pipeline.
type ProcessState string

const (
	// StateInitializing is the state at creation; the bot has joined but no
	// audio has been observed yet.
	StateInitializing ProcessState = "initializing"
	// StateDownloading is set synchronously before the download task is
	// dispatched, so concurrent status polls cannot trigger a second
	// ingestion.
	StateDownloading ProcessState = "downloading"
	// StateDownloaded means the encrypted audio blob is in the vault.
	StateDownloaded ProcessState = "downloaded"
	// StateTranscribing means the processing task is running.
	StateTranscribing ProcessState = "transcribing"
	// StateCompleted means transcript and summary artifacts exist.
	StateCompleted ProcessState = "completed"
	// StateFailed means processing aborted; /retry can re-enter the pipeline.
	StateFailed ProcessState = "failed"
)

// IsTerminal reports whether the pipeline is finished with this meeting.
func (s ProcessState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ArtifactKind distinguishes the two parallel artifact histories.
type ArtifactKind string

const (
	KindTranscript ArtifactKind = "transcript"
	KindSummary    ArtifactKind = "summary"
)

// IsValid checks if the kind is a known ArtifactKind.
func (k ArtifactKind) IsValid() bool {
	return k == KindTranscript || k == KindSummary
}

// Meeting is the primary aggregate. The ID is the bot provider's identifier.
type Meeting struct {
	ID               string `gorm:"primaryKey;size:191" json:"id"`
	UserID           string `gorm:"index;not null;size:191" json:"user_id"`
	CreatedAt        int64  `gorm:"not null" json:"created_at"` // epoch ms
	ProcessState     string `gorm:"not null;size:50;default:initializing" json:"process_state"`
	CurrentTimestamp int64  `gorm:"not null" json:"current_timestamp"` // last transition, epoch ms
	DurationSeconds  int    `json:"duration_seconds"`
	FilePaths        string `json:"-"` // JSON mapping of artifact kind to vault path
	ActiveVersion    int    `json:"active_version"`

	Key       *MeetingKey `gorm:"foreignKey:MeetingID" json:"-"`
	Revisions []Revision  `gorm:"foreignKey:MeetingID" json:"-"`
}

// TableName returns the table name for Meeting.
func (Meeting) TableName() string {
	return "meetings"
}

// State returns the typed process state.
func (m *Meeting) State() ProcessState {
	return ProcessState(m.ProcessState)
}

// GetFilePaths decodes the artifact-kind to vault-path mapping. A missing or
// empty column yields an empty map.
func (m *Meeting) GetFilePaths() map[string]string {
	paths := make(map[string]string)
	if m.FilePaths != "" {
		_ = json.Unmarshal([]byte(m.FilePaths), &paths)
	}
	return paths
}

// SetFilePaths encodes the artifact-kind to vault-path mapping.
func (m *Meeting) SetFilePaths(paths map[string]string) {
	b, err := json.Marshal(paths)
	if err != nil {
		return
	}
	m.FilePaths = string(b)
}

// CreatedTime returns the creation timestamp as time.Time.
func (m *Meeting) CreatedTime() time.Time {
	return time.UnixMilli(m.CreatedAt)
}
