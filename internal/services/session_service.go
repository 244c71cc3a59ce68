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

// CreateSessionInput defines attributes required to open a new session.
type CreateSessionInput struct {
	HostName       string
	HostEmail      string
	EstimationType models.EstimationType
}

// CreateSessionResult carries the identifiers a new host needs to rejoin.
type CreateSessionResult struct {
	SessionID         string `json:"sessionId"`
	HostParticipantID string `json:"hostParticipantId"`
}

// SessionService manages estimation sessions and host privileges.
type SessionService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	return &SessionService{db: db, log: logger.WithModule("sessions")}, nil
}

// Create opens a session together with its host participant in one
// transaction, so the one-host invariant holds from the first row.
func (s *SessionService) Create(ctx context.Context, input CreateSessionInput) (*CreateSessionResult, error) {
	ctx = ensureContext(ctx)

	hostName := strings.TrimSpace(input.HostName)
	if hostName == "" {
		return nil, apperrors.NewBadRequest("Missing required fields: hostName and estimationType")
	}
	if !input.EstimationType.Valid() {
		return nil, apperrors.NewBadRequest("Invalid estimationType. Must be FIBONACCI or TSHIRT")
	}

	session := models.Session{
		EstimationType: input.EstimationType,
		Participants: []models.Participant{{
			Name:   hostName,
			Email:  strings.TrimSpace(input.HostEmail),
			IsHost: true,
		}},
	}

	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to create session")
	}

	s.log.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("estimation_type", string(session.EstimationType)))

	return &CreateSessionResult{
		SessionID:         session.ID,
		HostParticipantID: session.Participants[0].ID,
	}, nil
}

// GetSnapshot loads the full session state: participants, features with
// votes, and the derived current feature (most recently created unrevealed
// feature, falling back to the most recently created one).
func (s *SessionService) GetSnapshot(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	ctx = ensureContext(ctx)

	var session models.Session
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Features", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Features.Votes").
		First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to fetch session")
	}

	snapshot := models.SessionSnapshot{Session: &session}
	for i := range session.Features {
		feature := &session.Features[i]
		if !feature.IsRevealed {
			snapshot.CurrentFeature = feature
		}
	}
	if snapshot.CurrentFeature == nil && len(session.Features) > 0 {
		snapshot.CurrentFeature = &session.Features[len(session.Features)-1]
	}

	return &snapshot, nil
}

// IsHost reports whether the participant carries the host flag for the session.
func (s *SessionService) IsHost(ctx context.Context, sessionID, participantID string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ? AND session_id = ? AND is_host = ?", participantID, sessionID, true).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Wrap(err, "Failed to check host status")
	}

	return count > 0, nil
}

// Delete closes a session; participants, features, and votes cascade.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Delete(&models.Session{}, "id = ?", sessionID)
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "Failed to close session")
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrSessionNotFound
	}

	s.log.Info("session closed", zap.String("session_id", sessionID))
	return nil
}
