package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Nonce binds a pending sign-in challenge to a (chain, address) pair.
// Issuing a new challenge for the same pair replaces the previous row
// (last writer wins); expiry is checked again at redemption.
type Nonce struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Chain     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_nonces_chain_address" json:"chain"`
	Address   string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_nonces_chain_address" json:"address"`
	Value     string    `gorm:"not null" json:"value"`
	IssuedAt  time.Time `gorm:"not null" json:"issued_at"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`

	Timestamps
}

func (n *Nonce) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
