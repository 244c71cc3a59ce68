package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pointdeck/pointdeck/internal/models"
	apperrors "github.com/pointdeck/pointdeck/pkg/errors"
	"github.com/pointdeck/pointdeck/pkg/logger"
)

// DefaultRetentionDays is how long a session stays reachable after creation.
const DefaultRetentionDays = 28

// CleanupService enforces the session retention window.
type CleanupService struct {
	db        *gorm.DB
	log       *zap.Logger
	retention time.Duration
	now       func() time.Time
}

// CleanupOption customises the CleanupService.
type CleanupOption func(*CleanupService)

// WithRetentionDays overrides the retention window.
func WithRetentionDays(days int) CleanupOption {
	return func(s *CleanupService) {
		if days > 0 {
			s.retention = time.Duration(days) * 24 * time.Hour
		}
	}
}

// WithNow overrides the clock used for cutoff comparisons, for tests.
func WithNow(now func() time.Time) CleanupOption {
	return func(s *CleanupService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCleanupService constructs a CleanupService with the default retention.
func NewCleanupService(db *gorm.DB, opts ...CleanupOption) (*CleanupService, error) {
	if db == nil {
		return nil, errors.New("cleanup service: db is required")
	}

	svc := &CleanupService{
		db:        db,
		log:       logger.WithModule("cleanup"),
		retention: DefaultRetentionDays * 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

func (s *CleanupService) cutoff() time.Time {
	return s.now().Add(-s.retention)
}

// IsSessionValid reports whether the session exists and is inside the
// retention window.
func (s *CleanupService) IsSessionValid(ctx context.Context, sessionID string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND created_at >= ?", sessionID, s.cutoff()).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Wrap(err, "Failed to check session")
	}

	return count > 0, nil
}

// DeleteOldSessions purges sessions past the retention window; participants,
// features, and votes cascade. Returns the number of sessions removed.
func (s *CleanupService) DeleteOldSessions(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("created_at < ?", s.cutoff()).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, apperrors.Wrap(result.Error, "Failed to delete old sessions")
	}

	if result.RowsAffected > 0 {
		s.log.Info("purged expired sessions", zap.Int64("count", result.RowsAffected))
	}

	return result.RowsAffected, nil
}

// CountOldSessions reports how many sessions are past the retention window.
func (s *CleanupService) CountOldSessions(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("created_at < ?", s.cutoff()).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "Failed to count old sessions")
	}

	return count, nil
}
