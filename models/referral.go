package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Referral doubles as a referral code and, once claimed, the relationship
// between referrer and referred profile. Every profile gets one code row
// with ReferredProfileID nil; each claim of that code inserts a fresh row
// carrying the same code with the referred profile set. The unique index on
// ReferredProfileID guarantees at most one referral per referred profile
// (NULLs don't collide, so code rows are unaffected).
type Referral struct {
	ID                string  `gorm:"primaryKey;type:uuid" json:"id"`
	Code              string  `gorm:"index;not null" json:"code"`
	ReferrerProfileID string  `gorm:"type:uuid;index;not null" json:"referrer_profile_id"`
	ReferredProfileID *string `gorm:"type:uuid;uniqueIndex" json:"referred_profile_id,omitempty"`

	// Active referrals count against the referrer's capacity. A claim that
	// finds no free slot stays inactive (queued) with no activation time.
	IsActive    bool       `gorm:"not null;default:false" json:"is_active"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`

	// DeactivatedAt is only ever set on an unused code row.
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`

	// AttributedAt is the first-click timestamp: set on the code row the
	// first time the code is validated, and on claims at claim time.
	AttributedAt *time.Time `json:"attributed_at,omitempty"`

	Timestamps
}

func (r *Referral) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
