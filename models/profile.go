package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile is the identity anchor. One profile can own accounts on several
// chains; it is created on the first successful proof-of-control (or
// external identity validation) and never hard-deleted.
type Profile struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Email       string `gorm:"index" json:"email,omitempty"`
	DisplayName string `json:"display_name"`
	Handle      string `gorm:"index" json:"handle"`
	AvatarURL   string `json:"avatar_url,omitempty"`

	// Stable user id at the external identity authority, set for profiles
	// created through the external login flow.
	ExternalIdentityID string `gorm:"index" json:"external_identity_id,omitempty"`

	ReferralCode      string `gorm:"uniqueIndex;not null" json:"referral_code"`
	MaxReferrals      int    `gorm:"not null;default:5" json:"max_referrals"`
	// Unique so two concurrent gated signups can never be assigned the
	// same position (NULLs do not collide).
	WaitlistPosition  *int64 `gorm:"uniqueIndex" json:"waitlist_position,omitempty"`
	GameAccessGranted bool   `gorm:"not null;default:false" json:"game_access_granted"`

	Role Role `gorm:"type:varchar(32);not null;default:'player'" json:"role"`

	Timestamps
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = RolePlayer
	}
	return nil
}
