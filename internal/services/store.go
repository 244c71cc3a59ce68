package services

import (
	"context"
	"errors"

	"github.com/pointdeck/pointdeck/internal/models"
)

// CoordinatorStore bundles the domain services behind the single state
// interface the realtime coordinator consumes.
type CoordinatorStore struct {
	sessions     *SessionService
	participants *ParticipantService
	features     *FeatureService
	cleanup      *CleanupService
}

// NewCoordinatorStore constructs a CoordinatorStore.
func NewCoordinatorStore(
	sessions *SessionService,
	participants *ParticipantService,
	features *FeatureService,
	cleanup *CleanupService,
) (*CoordinatorStore, error) {
	if sessions == nil || participants == nil || features == nil || cleanup == nil {
		return nil, errors.New("coordinator store: all services are required")
	}

	return &CoordinatorStore{
		sessions:     sessions,
		participants: participants,
		features:     features,
		cleanup:      cleanup,
	}, nil
}

func (s *CoordinatorStore) IsSessionValid(ctx context.Context, sessionID string) (bool, error) {
	return s.cleanup.IsSessionValid(ctx, sessionID)
}

func (s *CoordinatorStore) IsHost(ctx context.Context, sessionID, participantID string) (bool, error) {
	return s.sessions.IsHost(ctx, sessionID, participantID)
}

func (s *CoordinatorStore) GetParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	return s.participants.Get(ctx, participantID)
}

func (s *CoordinatorStore) ParticipantExistsInSession(ctx context.Context, participantID, sessionID string) (bool, error) {
	return s.participants.ExistsInSession(ctx, participantID, sessionID)
}

func (s *CoordinatorStore) GetSnapshot(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	return s.sessions.GetSnapshot(ctx, sessionID)
}

func (s *CoordinatorStore) CreateFeature(ctx context.Context, sessionID, name, link string) (*models.Feature, error) {
	return s.features.Create(ctx, sessionID, name, link)
}

func (s *CoordinatorStore) SubmitVote(ctx context.Context, featureID, participantID, value string) (*models.Vote, error) {
	return s.features.SubmitVote(ctx, featureID, participantID, value)
}

func (s *CoordinatorStore) DeleteVote(ctx context.Context, featureID, participantID string) error {
	return s.features.DeleteVote(ctx, featureID, participantID)
}

func (s *CoordinatorStore) RevealResults(ctx context.Context, featureID string) (*models.Feature, error) {
	return s.features.Reveal(ctx, featureID)
}

func (s *CoordinatorStore) CheckConsensus(ctx context.Context, featureID string) (bool, error) {
	return s.features.CheckConsensus(ctx, featureID)
}

func (s *CoordinatorStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}
