package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is a (chain, address) pair owned by exactly one profile.
// The pair is globally unique: an address can never belong to two profiles.
type Account struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	ProfileID string `gorm:"type:uuid;not null;index" json:"profile_id"`
	Chain     string `gorm:"type:varchar(64);not null;uniqueIndex:idx_accounts_chain_address" json:"chain"`
	Address   string `gorm:"type:varchar(128);not null;uniqueIndex:idx_accounts_chain_address" json:"address"`
	IsPrimary bool   `gorm:"not null;default:false" json:"is_primary"`

	// Provenance for cross-chain linking: set when this address was proven
	// through a challenge bound to another already-linked address.
	DerivedFromChain   *string `gorm:"type:varchar(64)" json:"derived_from_chain,omitempty"`
	DerivedFromAddress *string `gorm:"type:varchar(128)" json:"derived_from_address,omitempty"`

	Timestamps
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
