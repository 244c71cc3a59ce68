package models

// Feature is a work item being estimated within a session. The revealed flag
// is monotonic: once true it never reverts.
type Feature struct {
	BaseModel
	SessionID  string `gorm:"index;not null" json:"sessionId"`
	Name       string `json:"name,omitempty"`
	Link       string `json:"link,omitempty"`
	IsRevealed bool   `gorm:"not null;default:false" json:"isRevealed"`

	Votes []Vote `gorm:"foreignKey:FeatureID;constraint:OnDelete:CASCADE" json:"votes,omitempty"`
}
