package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pointdeck/pointdeck/internal/database/testutil"
	"github.com/pointdeck/pointdeck/internal/models"
)

type testStack struct {
	db           *gorm.DB
	sessions     *SessionService
	participants *ParticipantService
	features     *FeatureService
	cleanup      *CleanupService
}

func newTestStack(t *testing.T, opts ...CleanupOption) *testStack {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	sessions, err := NewSessionService(db)
	require.NoError(t, err)
	participants, err := NewParticipantService(db)
	require.NoError(t, err)
	features, err := NewFeatureService(db)
	require.NoError(t, err)
	cleanup, err := NewCleanupService(db, opts...)
	require.NoError(t, err)

	return &testStack{
		db:           db,
		sessions:     sessions,
		participants: participants,
		features:     features,
		cleanup:      cleanup,
	}
}

// mustCreateSession opens a FIBONACCI session and returns (sessionID, hostID).
func (s *testStack) mustCreateSession(t *testing.T) (string, string) {
	t.Helper()

	result, err := s.sessions.Create(context.Background(), CreateSessionInput{
		HostName:       "alice",
		HostEmail:      "alice@example.com",
		EstimationType: models.EstimationFibonacci,
	})
	require.NoError(t, err)
	return result.SessionID, result.HostParticipantID
}
