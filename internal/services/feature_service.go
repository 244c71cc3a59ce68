package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pointdeck/pointdeck/internal/models"
	apperrors "github.com/pointdeck/pointdeck/pkg/errors"
	"github.com/pointdeck/pointdeck/pkg/logger"
)

// FeatureService manages features and their votes.
type FeatureService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewFeatureService constructs a FeatureService.
func NewFeatureService(db *gorm.DB) (*FeatureService, error) {
	if db == nil {
		return nil, errors.New("feature service: db is required")
	}
	return &FeatureService{db: db, log: logger.WithModule("features")}, nil
}

// Create opens a new unrevealed feature. By construction it becomes the
// session's current feature (most recently created, unrevealed).
func (s *FeatureService) Create(ctx context.Context, sessionID, name, link string) (*models.Feature, error) {
	ctx = ensureContext(ctx)

	feature := models.Feature{
		SessionID: sessionID,
		Name:      strings.TrimSpace(name),
		Link:      strings.TrimSpace(link),
	}

	if err := s.db.WithContext(ctx).Create(&feature).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to start feature")
	}

	s.log.Info("feature started",
		zap.String("session_id", sessionID),
		zap.String("feature_id", feature.ID))

	return &feature, nil
}

// List returns the session's features, newest first, with votes attached.
func (s *FeatureService) List(ctx context.Context, sessionID string) ([]models.Feature, error) {
	ctx = ensureContext(ctx)

	var features []models.Feature
	err := s.db.WithContext(ctx).
		Preload("Votes").
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&features).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to fetch features")
	}

	return features, nil
}

// Get returns one feature with its votes.
func (s *FeatureService) Get(ctx context.Context, featureID string) (*models.Feature, error) {
	ctx = ensureContext(ctx)

	var feature models.Feature
	err := s.db.WithContext(ctx).
		Preload("Votes").
		First(&feature, "id = ?", featureID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrFeatureNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to fetch feature")
	}

	return &feature, nil
}

// SubmitVote records a participant's estimate for a feature. The value must
// be a card on the session's estimation scale or one of the sentinels.
// Resubmitting overwrites the previous value (last write wins per
// (feature, participant)).
func (s *FeatureService) SubmitVote(ctx context.Context, featureID, participantID, value string) (*models.Vote, error) {
	ctx = ensureContext(ctx)

	var feature models.Feature
	err := s.db.WithContext(ctx).First(&feature, "id = ?", featureID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrFeatureNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to submit vote")
	}

	var session models.Session
	if err := s.db.WithContext(ctx).First(&session, "id = ?", feature.SessionID).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to submit vote")
	}

	if !models.IsSentinel(value) && !slices.Contains(session.EstimationType.Values(), value) {
		return nil, apperrors.NewBadRequest("Invalid vote value for " + string(session.EstimationType) + " scale")
	}

	vote := models.Vote{
		FeatureID:     featureID,
		ParticipantID: participantID,
		Value:         value,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "feature_id"}, {Name: "participant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&vote).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to submit vote")
	}

	return &vote, nil
}

// DeleteVote withdraws a participant's estimate. Deleting a vote that was
// never submitted is a no-op, not an error.
func (s *FeatureService) DeleteVote(ctx context.Context, featureID, participantID string) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).
		Where("feature_id = ? AND participant_id = ?", featureID, participantID).
		Delete(&models.Vote{}).Error
	if err != nil {
		return apperrors.Wrap(err, "Failed to unsubmit vote")
	}

	return nil
}

// Reveal flips the feature's revealed flag. The flag is monotonic: revealing
// an already revealed feature is a no-op that returns the current state.
func (s *FeatureService) Reveal(ctx context.Context, featureID string) (*models.Feature, error) {
	ctx = ensureContext(ctx)

	feature, err := s.Get(ctx, featureID)
	if err != nil {
		return nil, err
	}

	if !feature.IsRevealed {
		err = s.db.WithContext(ctx).
			Model(&models.Feature{}).
			Where("id = ?", featureID).
			Update("is_revealed", true).Error
		if err != nil {
			return nil, apperrors.Wrap(err, "Failed to reveal results")
		}
		feature.IsRevealed = true

		s.log.Info("results revealed", zap.String("feature_id", featureID))
	}

	return feature, nil
}

// CheckConsensus reports whether all non-sentinel votes on a feature agree.
// Sentinel votes ("?" and "☕") are excluded; a feature with no non-sentinel
// votes has no consensus.
func (s *FeatureService) CheckConsensus(ctx context.Context, featureID string) (bool, error) {
	ctx = ensureContext(ctx)

	var votes []models.Vote
	err := s.db.WithContext(ctx).
		Where("feature_id = ?", featureID).
		Find(&votes).Error
	if err != nil {
		return false, apperrors.Wrap(err, "Failed to check consensus")
	}

	return hasConsensus(votes), nil
}

func hasConsensus(votes []models.Vote) bool {
	agreed := ""
	counted := 0

	for _, vote := range votes {
		if models.IsSentinel(vote.Value) {
			continue
		}
		if counted == 0 {
			agreed = vote.Value
		} else if vote.Value != agreed {
			return false
		}
		counted++
	}

	return counted > 0
}
