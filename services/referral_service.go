// services/referral_service.go
package services

import (
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"regexp"
	"strings"

	"player-identity-system/models"
	"player-identity-system/utils"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// Codes avoid 0/O and 1/I so they survive being read aloud.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 7

	codeAllocationAttempts = 10
)

var codePattern = regexp.MustCompile(`^[A-Z2-9]{7}$`)

// ReferralService runs the referral/waitlist admission state machine:
// code generation and validation, capacity-checked attribution, code
// deactivation and bulk waitlist approval.
type ReferralService struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

func NewReferralService(db *gorm.DB, clock clockwork.Clock) *ReferralService {
	return &ReferralService{DB: db, Clock: clock}
}

// GenerateCode allocates a code no existing profile holds, retrying on the
// (rare) collision.
func (s *ReferralService) GenerateCode(db *gorm.DB) (string, error) {
	for attempt := 0; attempt < codeAllocationAttempts; attempt++ {
		code := randomCode()
		var count int64
		if err := db.Model(&models.Profile{}).Where("referral_code = ?", code).Count(&count).Error; err != nil {
			return "", utils.Wrap(utils.KindStorage, "failed to check referral code", err)
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", utils.E(utils.KindStorage, "could not allocate a unique referral code")
}

func randomCode() string {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}

// ValidationResult is the answer to "can this code admit someone right
// now", with enough detail for the signup UI.
type ValidationResult struct {
	Valid        bool   `json:"valid"`
	Exists       bool   `json:"exists"`
	CanAccept    bool   `json:"canAccept"`
	AtCapacity   bool   `json:"atCapacity"`
	ReferrerID   string `json:"referrerId,omitempty"`
	ReferrerName string `json:"referrerName,omitempty"`
}

// Validate checks format first (cheap rejection), then existence, then
// capacity. The capacity answer is advisory — attribution re-checks it
// atomically at claim time.
func (s *ReferralService) Validate(code string) (*ValidationResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !codePattern.MatchString(code) {
		return nil, utils.E(utils.KindValidation, "malformed referral code")
	}

	var referrer models.Profile
	err := s.DB.Where("referral_code = ?", code).First(&referrer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ValidationResult{Exists: false}, nil
	}
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, "failed to look up referral code", err)
	}

	var codeRow models.Referral
	deactivated := false
	if err := s.DB.Where("code = ? AND referred_profile_id IS NULL", code).First(&codeRow).Error; err == nil {
		deactivated = codeRow.DeactivatedAt != nil
		if codeRow.AttributedAt == nil && !deactivated {
			// First-click attribution timestamp; best-effort.
			now := s.Clock.Now().UTC()
			if uerr := s.DB.Model(&models.Referral{}).
				Where("id = ? AND attributed_at IS NULL", codeRow.ID).
				Update("attributed_at", now).Error; uerr != nil {
				log.Printf("⚠️ [REFERRAL] failed to stamp first click for code %s: %v", code, uerr)
			}
		}
	}

	active, err := s.countActive(s.DB, referrer.ID)
	if err != nil {
		return nil, err
	}
	atCapacity := active >= int64(referrer.MaxReferrals)

	return &ValidationResult{
		Valid:        !deactivated,
		Exists:       true,
		CanAccept:    !deactivated && !atCapacity,
		AtCapacity:   atCapacity,
		ReferrerID:   referrer.ID,
		ReferrerName: referrer.DisplayName,
	}, nil
}

func (s *ReferralService) countActive(db *gorm.DB, referrerID string) (int64, error) {
	var count int64
	err := db.Model(&models.Referral{}).
		Where("referrer_profile_id = ? AND referred_profile_id IS NOT NULL AND is_active = ?", referrerID, true).
		Count(&count).Error
	if err != nil {
		return 0, utils.Wrap(utils.KindStorage, "failed to count active referrals", err)
	}
	return count, nil
}

// Attribute records that referredID was brought in by referrerID. The claim
// row is inserted inactive, then activated by a conditional update whose
// WHERE clause re-counts active referrals against the referrer's capacity —
// two concurrent attributions cannot both win the last slot. Returns
// whether the referral came out active (capacity available) or queued.
func (s *ReferralService) Attribute(db *gorm.DB, referrerID, referredID, code string) (bool, error) {
	if referrerID == referredID {
		return false, utils.E(utils.KindValidation, "self-referral is not allowed")
	}

	// The code row must still be live at claim time. Checked here, in the
	// same transaction as the claim insert, so a deactivation racing the
	// caller's earlier validation cannot be claimed through.
	var deactivated int64
	if err := db.Model(&models.Referral{}).
		Where("code = ? AND referred_profile_id IS NULL AND deactivated_at IS NOT NULL", code).
		Count(&deactivated).Error; err != nil {
		return false, utils.Wrap(utils.KindStorage, "failed to check referral code state", err)
	}
	if deactivated > 0 {
		return false, utils.E(utils.KindInvalidState, "referral code is deactivated")
	}

	now := s.Clock.Now().UTC()
	claim := models.Referral{
		Code:              code,
		ReferrerProfileID: referrerID,
		ReferredProfileID: &referredID,
		IsActive:          false,
		AttributedAt:      &now,
	}
	if err := db.Create(&claim).Error; err != nil {
		// The unique index on referred_profile_id makes a second referral
		// for the same profile fail deterministically.
		return false, utils.E(utils.KindInvalidState, "profile already has a referral")
	}

	res := db.Exec(`
		UPDATE referrals SET is_active = ?, activated_at = ?
		WHERE id = ?
		  AND (SELECT COUNT(*) FROM referrals r
		         WHERE r.referrer_profile_id = ?
		           AND r.referred_profile_id IS NOT NULL
		           AND r.is_active = ?) <
		      (SELECT max_referrals FROM profiles WHERE id = ?)`,
		true, now, claim.ID, referrerID, true, referrerID)
	if res.Error != nil {
		return false, utils.Wrap(utils.KindStorage, "failed to activate referral", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// HasReferral reports whether the profile was already referred by someone.
func (s *ReferralService) HasReferral(profileID string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.Referral{}).
		Where("referred_profile_id = ?", profileID).
		Count(&count).Error
	if err != nil {
		return false, utils.Wrap(utils.KindStorage, "failed to look up referral", err)
	}
	return count > 0, nil
}

// Deactivate retires an unused code. Only the owner may do it, only while
// the code row is unused, and only once.
func (s *ReferralService) Deactivate(callerProfileID, codeID string) error {
	var row models.Referral
	err := s.DB.Where("id = ?", codeID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.E(utils.KindNotFound, "referral code not found")
	}
	if err != nil {
		return utils.Wrap(utils.KindStorage, "failed to load referral code", err)
	}
	if row.ReferrerProfileID != callerProfileID {
		return utils.E(utils.KindForbidden, "not the owner of this referral code")
	}
	if row.ReferredProfileID != nil {
		return utils.E(utils.KindInvalidState, "referral code already used")
	}
	if row.DeactivatedAt != nil {
		return utils.E(utils.KindInvalidState, "referral code already deactivated")
	}
	// Claims live in their own rows; a code that has been claimed is used
	// even though the code row itself keeps referred_profile_id null.
	var claims int64
	if err := s.DB.Model(&models.Referral{}).
		Where("code = ? AND referred_profile_id IS NOT NULL", row.Code).
		Count(&claims).Error; err != nil {
		return utils.Wrap(utils.KindStorage, "failed to count referral claims", err)
	}
	if claims > 0 {
		return utils.E(utils.KindInvalidState, "referral code already used")
	}

	// Guarded update so a concurrent use or deactivation stays honest.
	res := s.DB.Model(&models.Referral{}).
		Where("id = ? AND referred_profile_id IS NULL AND deactivated_at IS NULL", codeID).
		Update("deactivated_at", s.Clock.Now().UTC())
	if res.Error != nil {
		return utils.Wrap(utils.KindStorage, "failed to deactivate referral code", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.E(utils.KindInvalidState, "referral code already used or deactivated")
	}
	return nil
}

// AccessUpdate is one profile touched by a bulk access change.
type AccessUpdate struct {
	ProfileID         string `json:"profile_id"`
	DisplayName       string `json:"display_name"`
	GameAccessGranted bool   `json:"game_access_granted"`
}

// EnqueueWaitlist assigns the next waitlist position in a single statement.
// The unique index on waitlist_position turns a concurrent double-assignment
// into a storage error, which the signup transaction retries.
func (s *ReferralService) EnqueueWaitlist(db *gorm.DB, profileID string) (int64, error) {
	res := db.Exec(`
		UPDATE profiles
		SET waitlist_position = (SELECT COALESCE(MAX(waitlist_position), 0) + 1 FROM profiles)
		WHERE id = ?`, profileID)
	if res.Error != nil {
		return 0, utils.Wrap(utils.KindStorage, "failed to enqueue on waitlist", res.Error)
	}

	var profile models.Profile
	if err := db.First(&profile, "id = ?", profileID).Error; err != nil {
		return 0, utils.Wrap(utils.KindStorage, "failed to read waitlist position", err)
	}
	if profile.WaitlistPosition == nil {
		return 0, utils.E(utils.KindStorage, "waitlist position not assigned")
	}
	return *profile.WaitlistPosition, nil
}

// GrantAccess flips the access flag and clears the waitlist position —
// the position is cleared exactly once, when access is granted.
func (s *ReferralService) GrantAccess(db *gorm.DB, profileID string) error {
	err := db.Model(&models.Profile{}).Where("id = ?", profileID).
		Updates(map[string]interface{}{
			"game_access_granted": true,
			"waitlist_position":   nil,
		}).Error
	if err != nil {
		return utils.Wrap(utils.KindStorage, "failed to grant access", err)
	}
	return nil
}

// BulkApproveCount admits up to count profiles in ascending waitlist order
// among those without access. Approving zero eligible profiles is not an
// error.
func (s *ReferralService) BulkApproveCount(count int) ([]AccessUpdate, error) {
	if count <= 0 {
		return nil, utils.E(utils.KindValidation, "count must be positive")
	}

	var approved []AccessUpdate
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var profiles []models.Profile
		if err := tx.Where("game_access_granted = ? AND waitlist_position IS NOT NULL", false).
			Order("waitlist_position ASC").
			Limit(count).
			Find(&profiles).Error; err != nil {
			return err
		}
		for i := range profiles {
			if err := s.GrantAccess(tx, profiles[i].ID); err != nil {
				return err
			}
			approved = append(approved, AccessUpdate{
				ProfileID:         profiles[i].ID,
				DisplayName:       profiles[i].DisplayName,
				GameAccessGranted: true,
			})
		}
		return nil
	})
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, "bulk approval failed", err)
	}
	return approved, nil
}

// SetAccess applies a grant or revoke unconditionally to explicit ids.
func (s *ReferralService) SetAccess(ids []string, grant bool) ([]AccessUpdate, error) {
	if len(ids) == 0 {
		return nil, utils.E(utils.KindValidation, "no profile ids given")
	}

	var updated []AccessUpdate
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var profiles []models.Profile
		if err := tx.Where("id IN ?", ids).Find(&profiles).Error; err != nil {
			return err
		}
		for i := range profiles {
			if grant {
				if err := s.GrantAccess(tx, profiles[i].ID); err != nil {
					return err
				}
			} else {
				if err := tx.Model(&models.Profile{}).Where("id = ?", profiles[i].ID).
					Update("game_access_granted", false).Error; err != nil {
					return err
				}
			}
			updated = append(updated, AccessUpdate{
				ProfileID:         profiles[i].ID,
				DisplayName:       profiles[i].DisplayName,
				GameAccessGranted: grant,
			})
		}
		return nil
	})
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, "bulk access update failed", err)
	}
	return updated, nil
}
