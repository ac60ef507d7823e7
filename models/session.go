package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is the server-side record behind the session cookie. Only a
// one-way hash of the bearer token is stored, never the raw value.
type Session struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	ProfileID string `gorm:"type:uuid;not null;index" json:"profile_id"`
	TokenHash string `gorm:"uniqueIndex;not null" json:"-"`

	// Set when the session was established through the external identity
	// authority; refresh re-validates the credential against it.
	ExternalIdentityID string `gorm:"index" json:"external_identity_id,omitempty"`

	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	IP        string    `gorm:"type:varchar(64)" json:"ip,omitempty"`
	UserAgent string    `gorm:"type:varchar(512)" json:"user_agent,omitempty"`

	Timestamps
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
