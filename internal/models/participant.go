package models

import (
	"gorm.io/gorm"

	"github.com/pointdeck/pointdeck/pkg/avatar"
)

// Participant is a member of one session. Ids are generated by the client and
// persisted in its local storage so reconnects map back to the same record.
type Participant struct {
	BaseModel
	SessionID string `gorm:"index;not null" json:"sessionId"`
	Name      string `gorm:"not null" json:"name"`
	Email     string `json:"email,omitempty"`
	IsHost    bool   `gorm:"not null;default:false" json:"isHost"`

	// AvatarHash is derived from the email, never stored.
	AvatarHash string `gorm:"-" json:"avatarHash,omitempty"`
}

// AfterFind populates the derived Gravatar hash on every load.
func (p *Participant) AfterFind(tx *gorm.DB) error {
	p.AvatarHash = avatar.Hash(p.Email)
	return nil
}

// AfterCreate keeps freshly inserted records consistent with loaded ones.
func (p *Participant) AfterCreate(tx *gorm.DB) error {
	p.AvatarHash = avatar.Hash(p.Email)
	return nil
}
