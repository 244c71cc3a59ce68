package database

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pointdeck/pointdeck/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file::memory:?_foreign_keys=1"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigratedSchemaRoundTrip(t *testing.T) {
	db := openTestDB(t)

	session := models.Session{EstimationType: models.EstimationFibonacci}
	require.NoError(t, db.Create(&session).Error)
	require.NotEmpty(t, session.ID)

	var count int64
	require.NoError(t, db.Model(&models.Session{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestAutoMigrateNilHandle(t *testing.T) {
	require.Error(t, AutoMigrate(nil))
}

func TestVoteUniquePerFeatureParticipant(t *testing.T) {
	db := openTestDB(t)

	session := models.Session{EstimationType: models.EstimationFibonacci}
	require.NoError(t, db.Create(&session).Error)

	participant := models.Participant{SessionID: session.ID, Name: "alice", IsHost: true}
	require.NoError(t, db.Create(&participant).Error)

	feature := models.Feature{SessionID: session.ID, Name: "login flow"}
	require.NoError(t, db.Create(&feature).Error)

	vote := models.Vote{FeatureID: feature.ID, ParticipantID: participant.ID, Value: "5"}
	require.NoError(t, db.Create(&vote).Error)

	dup := models.Vote{FeatureID: feature.ID, ParticipantID: participant.ID, Value: "8"}
	require.Error(t, db.Create(&dup).Error)
}
