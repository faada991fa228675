package store

import (
	"context"
	"encoding/hex"
	"time"

	"gorm.io/gorm/clause"

	"github.com/alfredjoe/Talktrace-backend/pkg/crypto"
	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

// StoreMeetingKey wraps the raw data key under the master key and persists
// the wrapped blob together with the file IV. Upsert by primary key: a
// replayed ingestion overwrites its own record, but key rotation for a live
// meeting is not supported.
func (s *Store) StoreMeetingKey(ctx context.Context, meetingID string, rawKey, fileIV []byte) error {
	wk, err := crypto.WrapKey(s.masterKey, rawKey)
	if err != nil {
		return err
	}

	record := &models.MeetingKey{
		MeetingID:  meetingID,
		FileIV:     hex.EncodeToString(fileIV),
		WrappedKey: wk.Blob,
		AuthTag:    wk.Tag,
		CreatedAt:  time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "meeting_id"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

// GetMeetingKey unwraps and returns the meeting's raw data key and file IV.
// Returns models.ErrKeyNotFound when no record exists (for example after a
// crypto-shred) and crypto.ErrKeyUnwrap when the stored blob fails
// authentication.
func (s *Store) GetMeetingKey(ctx context.Context, meetingID string) (rawKey, fileIV []byte, err error) {
	var record models.MeetingKey
	if err := s.db.WithContext(ctx).Where("meeting_id = ?", meetingID).First(&record).Error; err != nil {
		return nil, nil, convertNotFoundError(err, models.ErrKeyNotFound)
	}

	rawKey, err = crypto.UnwrapKey(s.masterKey, crypto.WrappedKey{
		Blob: record.WrappedKey,
		Tag:  record.AuthTag,
	})
	if err != nil {
		return nil, nil, err
	}

	fileIV, err = hex.DecodeString(record.FileIV)
	if err != nil || len(fileIV) != crypto.FileIVSize {
		return nil, nil, crypto.ErrKeyUnwrap
	}
	return rawKey, fileIV, nil
}

// HasMeetingKey reports whether a key record exists for the meeting.
func (s *Store) HasMeetingKey(ctx context.Context, meetingID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.MeetingKey{}).
		Where("meeting_id = ?", meetingID).
		Count(&count).Error
	return count > 0, err
}
