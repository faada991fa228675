package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

// CreateMeeting inserts a new meeting in state `initializing`.
func (s *Store) CreateMeeting(ctx context.Context, userID, botID string) (*models.Meeting, error) {
	now := time.Now().UnixMilli()
	meeting := &models.Meeting{
		ID:               botID,
		UserID:           userID,
		CreatedAt:        now,
		ProcessState:     string(models.StateInitializing),
		CurrentTimestamp: now,
	}
	if err := s.db.WithContext(ctx).Create(meeting).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, models.ErrDuplicateMeeting
		}
		return nil, err
	}
	return meeting, nil
}

// GetMeeting fetches a meeting by id.
func (s *Store) GetMeeting(ctx context.Context, id string) (*models.Meeting, error) {
	var meeting models.Meeting
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&meeting).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrMeetingNotFound)
	}
	return &meeting, nil
}

// ListMeetingsByUser returns the user's meetings, newest first.
func (s *Store) ListMeetingsByUser(ctx context.Context, userID string) ([]*models.Meeting, error) {
	var meetings []*models.Meeting
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&meetings).Error
	if err != nil {
		return nil, err
	}
	return meetings, nil
}

// StateUpdate carries the optional fields of UpdateProcessState. Nil fields
// are left untouched.
type StateUpdate struct {
	FilePaths       map[string]string
	DurationSeconds *int
	ActiveVersion   *int
}

// UpdateProcessState performs a partial update of a meeting's pipeline state.
// The last-transition timestamp is always bumped.
func (s *Store) UpdateProcessState(ctx context.Context, id string, state models.ProcessState, upd *StateUpdate) error {
	fields := map[string]any{
		"process_state":     string(state),
		"current_timestamp": time.Now().UnixMilli(),
	}
	if upd != nil {
		if upd.FilePaths != nil {
			m := models.Meeting{}
			m.SetFilePaths(upd.FilePaths)
			fields["file_paths"] = m.FilePaths
		}
		if upd.DurationSeconds != nil {
			fields["duration_seconds"] = *upd.DurationSeconds
		}
		if upd.ActiveVersion != nil {
			fields["active_version"] = *upd.ActiveVersion
		}
	}

	result := s.db.WithContext(ctx).
		Model(&models.Meeting{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrMeetingNotFound
	}
	return nil
}

// ClaimForDownload performs the compare-and-set transition
// `initializing` -> `downloading`. It returns true only for the single
// caller that wins the race; concurrent status polls that observe
// audio_ready at the same time all lose except one.
func (s *Store) ClaimForDownload(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Meeting{}).
		Where("id = ? AND process_state = ?", id, string(models.StateInitializing)).
		Updates(map[string]any{
			"process_state":     string(models.StateDownloading),
			"current_timestamp": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CheckoutVersion rewrites the meeting's head pointers to the snapshot paths
// registered at the given version and records it as the active version. Paths
// for kinds without a revision at that version (audio) are preserved. No new
// revision is created.
func (s *Store) CheckoutVersion(ctx context.Context, id string, version int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.Where("id = ?", id).First(&meeting).Error; err != nil {
			return convertNotFoundError(err, models.ErrMeetingNotFound)
		}

		var revs []models.Revision
		if err := tx.Where("meeting_id = ? AND version = ?", id, version).Find(&revs).Error; err != nil {
			return err
		}
		if len(revs) == 0 {
			return models.ErrRevisionNotFound
		}

		paths := meeting.GetFilePaths()
		for _, rev := range revs {
			paths[rev.Kind] = rev.FilePath
		}
		meeting.SetFilePaths(paths)

		return tx.Model(&meeting).Updates(map[string]any{
			"file_paths":        meeting.FilePaths,
			"active_version":    version,
			"current_timestamp": time.Now().UnixMilli(),
		}).Error
	})
}

// DeleteMeeting removes the meeting and everything derived from it. The key
// record goes first: once it is gone the vault blobs are unrecoverable, which
// is the authoritative crypto-shred. On-disk unlinking is the orchestrator's
// job and best-effort.
func (s *Store) DeleteMeeting(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.Where("id = ?", id).First(&meeting).Error; err != nil {
			return convertNotFoundError(err, models.ErrMeetingNotFound)
		}
		if err := tx.Where("meeting_id = ?", id).Delete(&models.MeetingKey{}).Error; err != nil {
			return err
		}
		if err := tx.Where("meeting_id = ?", id).Delete(&models.Revision{}).Error; err != nil {
			return err
		}
		return tx.Delete(&meeting).Error
	})
}
