package store

import (
	"context"
	"time"

	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

// AddRevision appends an audit entry for a new artifact version.
func (s *Store) AddRevision(ctx context.Context, meetingID string, version int, hash, filePath string, kind models.ArtifactKind) (*models.Revision, error) {
	rev := &models.Revision{
		MeetingID:   meetingID,
		Version:     version,
		Kind:        string(kind),
		ContentHash: hash,
		FilePath:    filePath,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(rev).Error; err != nil {
		return nil, err
	}
	return rev, nil
}

// LatestVersion returns the highest version for (meeting, kind), or 0 when
// no revision exists yet.
func (s *Store) LatestVersion(ctx context.Context, meetingID string, kind models.ArtifactKind) (int, error) {
	var version *int
	err := s.db.WithContext(ctx).
		Model(&models.Revision{}).
		Where("meeting_id = ? AND kind = ?", meetingID, string(kind)).
		Select("MAX(version)").
		Scan(&version).Error
	if err != nil {
		return 0, err
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

// GetRevision fetches a revision by its numeric id.
func (s *Store) GetRevision(ctx context.Context, id uint) (*models.Revision, error) {
	var rev models.Revision
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rev).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrRevisionNotFound)
	}
	return &rev, nil
}

// FindRevisionByHash performs an exact content-hash lookup. Used by the
// verification endpoint before falling back to fuzzy matching.
func (s *Store) FindRevisionByHash(ctx context.Context, hash string) (*models.Revision, error) {
	var rev models.Revision
	if err := s.db.WithContext(ctx).Where("content_hash = ?", hash).First(&rev).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrRevisionNotFound)
	}
	return &rev, nil
}

// ListRevisions returns the revision log for (meeting, kind), newest first.
func (s *Store) ListRevisions(ctx context.Context, meetingID string, kind models.ArtifactKind) ([]*models.Revision, error) {
	var revs []*models.Revision
	err := s.db.WithContext(ctx).
		Where("meeting_id = ? AND kind = ?", meetingID, string(kind)).
		Order("version DESC").
		Find(&revs).Error
	if err != nil {
		return nil, err
	}
	return revs, nil
}

// ListAllRevisions returns every revision for a meeting regardless of kind,
// newest first. The fuzzy verification fallback walks this list.
func (s *Store) ListAllRevisions(ctx context.Context, meetingID string) ([]*models.Revision, error) {
	var revs []*models.Revision
	err := s.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("version DESC").
		Find(&revs).Error
	if err != nil {
		return nil, err
	}
	return revs, nil
}
