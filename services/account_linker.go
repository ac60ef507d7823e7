// services/account_linker.go
package services

import (
	"errors"

	"player-identity-system/models"
	"player-identity-system/utils"

	"gorm.io/gorm"
)

// LinkOptions is the mutable metadata carried by a link request.
type LinkOptions struct {
	IsPrimary          bool
	DerivedFromChain   string
	DerivedFromAddress string
}

// AccountLinker owns the profile↔address graph.
type AccountLinker struct {
	DB *gorm.DB
}

func NewAccountLinker(db *gorm.DB) *AccountLinker {
	return &AccountLinker{DB: db}
}

// Link upserts the (chain, address) pair for profileID. An existing pair
// owned by the same profile gets its metadata updated in place; a pair
// owned by a different profile is a conflict — addresses never transfer
// silently between profiles. Runs against db so callers can compose it
// into a larger transaction.
func (l *AccountLinker) Link(db *gorm.DB, profileID, chain, address string, opts LinkOptions) (*models.Account, error) {
	var existing models.Account
	err := db.Where("chain = ? AND address = ?", chain, address).First(&existing).Error

	switch {
	case err == nil:
		if existing.ProfileID != profileID {
			return nil, utils.E(utils.KindAccountConflict, "address already linked to another profile")
		}
		if opts.IsPrimary {
			existing.IsPrimary = true
		}
		if opts.DerivedFromChain != "" {
			existing.DerivedFromChain = &opts.DerivedFromChain
			existing.DerivedFromAddress = &opts.DerivedFromAddress
		}
		if serr := db.Save(&existing).Error; serr != nil {
			return nil, utils.Wrap(utils.KindStorage, "failed to update account", serr)
		}
		return &existing, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		acct := models.Account{
			ProfileID: profileID,
			Chain:     chain,
			Address:   address,
			IsPrimary: opts.IsPrimary,
		}
		if opts.DerivedFromChain != "" {
			acct.DerivedFromChain = &opts.DerivedFromChain
			acct.DerivedFromAddress = &opts.DerivedFromAddress
		}
		if cerr := db.Create(&acct).Error; cerr != nil {
			// Unique index race: someone created the pair between our read
			// and insert. Re-read and converge.
			if rerr := db.Where("chain = ? AND address = ?", chain, address).First(&existing).Error; rerr == nil {
				if existing.ProfileID != profileID {
					return nil, utils.E(utils.KindAccountConflict, "address already linked to another profile")
				}
				return &existing, nil
			}
			return nil, utils.Wrap(utils.KindStorage, "failed to create account", cerr)
		}
		return &acct, nil

	default:
		return nil, utils.Wrap(utils.KindStorage, "failed to look up account", err)
	}
}

// PrimaryForChain returns "the" address for a chain: the one flagged
// primary if any, else the first linked. Returns (nil, nil) when the
// profile has no account on that chain.
func (l *AccountLinker) PrimaryForChain(profileID, chain string) (*models.Account, error) {
	var acct models.Account
	err := l.DB.Where("profile_id = ? AND chain = ?", profileID, chain).
		Order("is_primary DESC, created_at ASC").
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, "failed to look up account", err)
	}
	return &acct, nil
}

// Exists reports whether the profile has any account on the given chain.
func (l *AccountLinker) Exists(profileID, chain string) (bool, error) {
	var count int64
	err := l.DB.Model(&models.Account{}).
		Where("profile_id = ? AND chain = ?", profileID, chain).
		Count(&count).Error
	if err != nil {
		return false, utils.Wrap(utils.KindStorage, "failed to count accounts", err)
	}
	return count > 0, nil
}

// ForProfile lists every account linked to the profile.
func (l *AccountLinker) ForProfile(profileID string) ([]models.Account, error) {
	var accounts []models.Account
	if err := l.DB.Where("profile_id = ?", profileID).
		Order("created_at ASC").
		Find(&accounts).Error; err != nil {
		return nil, utils.Wrap(utils.KindStorage, "failed to list accounts", err)
	}
	return accounts, nil
}
