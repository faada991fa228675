package models

// MeetingKey holds the wrapped data key for one meeting. At most one record
// exists per meeting and it is never updated in place after creation; key
// rotation implies a new meeting identity.
//
// WrappedKey is `wrapper_iv ':' ciphertext` (both hex); AuthTag is the
// 16-byte GCM tag (hex); FileIV is the 16-byte at-rest CBC IV (hex). The raw
// 32-byte data key never touches storage unwrapped.
type MeetingKey struct {
	MeetingID  string `gorm:"primaryKey;size:191" json:"meeting_id"`
	FileIV     string `gorm:"not null;size:32" json:"-"`
	WrappedKey string `gorm:"not null" json:"-"`
	AuthTag    string `gorm:"not null;size:32" json:"-"`
	CreatedAt  int64  `gorm:"not null" json:"created_at"` // epoch ms
}

// TableName returns the table name for MeetingKey.
func (MeetingKey) TableName() string {
	return "meeting_keys"
}
