package models

// Revision is an append-only audit entry. Versions are monotonically
// increasing per (meeting, kind) with no gaps; transcript and summary
// revisions produced by the same edit share a version number so a checkout
// restores a consistent pair.
type Revision struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	MeetingID   string `gorm:"index;not null;size:191;uniqueIndex:idx_meeting_kind_version" json:"meeting_id"`
	Version     int    `gorm:"not null;uniqueIndex:idx_meeting_kind_version" json:"version"`
	Kind        string `gorm:"not null;size:20;uniqueIndex:idx_meeting_kind_version" json:"type"`
	ContentHash string `gorm:"index;not null;size:64" json:"hash"`
	FilePath    string `gorm:"not null" json:"-"` // vault snapshot path
	CreatedAt   int64  `gorm:"not null" json:"created_at"` // epoch ms
}

// TableName returns the table name for Revision.
func (Revision) TableName() string {
	return "revisions"
}
