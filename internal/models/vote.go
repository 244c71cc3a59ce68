package models

// Vote is one participant's estimate for a feature. The unique index makes
// resubmission an overwrite rather than a duplicate row.
type Vote struct {
	BaseModel
	FeatureID     string `gorm:"not null;uniqueIndex:idx_votes_feature_participant" json:"featureId"`
	ParticipantID string `gorm:"not null;uniqueIndex:idx_votes_feature_participant" json:"participantId"`
	Value         string `gorm:"not null" json:"value"`
}
