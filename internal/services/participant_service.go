package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pointdeck/pointdeck/internal/models"
	apperrors "github.com/pointdeck/pointdeck/pkg/errors"
	"github.com/pointdeck/pointdeck/pkg/logger"
)

// JoinSessionInput defines attributes for registering a participant.
type JoinSessionInput struct {
	SessionID     string
	ParticipantID string
	Name          string
	Email         string
}

// ParticipantService manages session membership records.
type ParticipantService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewParticipantService constructs a ParticipantService.
func NewParticipantService(db *gorm.DB) (*ParticipantService, error) {
	if db == nil {
		return nil, errors.New("participant service: db is required")
	}
	return &ParticipantService{db: db, log: logger.WithModule("participants")}, nil
}

// Join registers a participant in a session. Participant ids are generated
// client-side and survive reconnects, so a join with an id that already
// exists returns the existing record instead of failing.
func (s *ParticipantService) Join(ctx context.Context, input JoinSessionInput) (*models.Participant, error) {
	ctx = ensureContext(ctx)

	participantID := strings.TrimSpace(input.ParticipantID)
	name := strings.TrimSpace(input.Name)
	if participantID == "" || name == "" {
		return nil, apperrors.NewBadRequest("Missing required fields: participantId and name")
	}

	var existing models.Participant
	err := s.db.WithContext(ctx).First(&existing, "id = ?", participantID).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(err, "Failed to join session")
	}

	participant := models.Participant{
		BaseModel: models.BaseModel{ID: participantID},
		SessionID: input.SessionID,
		Name:      name,
		Email:     strings.TrimSpace(input.Email),
		IsHost:    false,
	}

	if err := s.db.WithContext(ctx).Create(&participant).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to join session")
	}

	s.log.Info("participant joined",
		zap.String("session_id", input.SessionID),
		zap.String("participant_id", participant.ID))

	return &participant, nil
}

// Get returns a participant record, or ErrParticipantNotFound.
func (s *ParticipantService) Get(ctx context.Context, participantID string) (*models.Participant, error) {
	ctx = ensureContext(ctx)

	var participant models.Participant
	err := s.db.WithContext(ctx).First(&participant, "id = ?", participantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrParticipantNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to fetch participant")
	}

	return &participant, nil
}

// ExistsInSession reports whether the participant belongs to the session.
func (s *ParticipantService) ExistsInSession(ctx context.Context, participantID, sessionID string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ? AND session_id = ?", participantID, sessionID).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Wrap(err, "Failed to check participant")
	}

	return count > 0, nil
}

// Remove deletes a participant record. Missing records report false, not an
// error, since departures and session closes can race.
func (s *ParticipantService) Remove(ctx context.Context, participantID string) (bool, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Delete(&models.Participant{}, "id = ?", participantID)
	if result.Error != nil {
		return false, apperrors.Wrap(result.Error, "Failed to remove participant")
	}

	return result.RowsAffected > 0, nil
}
