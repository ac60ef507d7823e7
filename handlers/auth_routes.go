// handlers/auth_routes.go
package handlers

import (
	"errors"
	"log"
	"strings"
	"time"

	"player-identity-system/chains"
	"player-identity-system/middleware"
	"player-identity-system/models"
	"player-identity-system/services"
	"player-identity-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// AuthDeps bundles everything the auth surface needs. Constructed once in
// main and shared read-only across requests.
type AuthDeps struct {
	DB         *gorm.DB
	Clock      clockwork.Clock
	Chains     *chains.Registry
	Challenges *services.ChallengeService
	Sessions   *services.SessionService
	Linker     *services.AccountLinker
	Referrals  *services.ReferralService
	Identity   services.IdentityResolver

	// PrimaryChain is the chain tag external-identity wallets live on;
	// SecondaryChain is the one cross-chain linking targets.
	PrimaryChain   string
	SecondaryChain string

	// SignupGated puts new profiles without an active referral on the
	// waitlist instead of granting access immediately.
	SignupGated bool

	DefaultMaxReferrals int
}

func SetupAuthRoutes(app *fiber.App, d AuthDeps) {
	app.Post("/auth/challenge", func(c *fiber.Ctx) error {
		var req struct {
			Chain   string `json:"chain"`
			Address string `json:"address"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fail(c, utils.E(utils.KindValidation, "invalid request body"))
		}
		if !d.Chains.Supported(req.Chain) {
			return fail(c, utils.E(utils.KindValidation, "invalid chain"))
		}
		address, err := d.Chains.NormalizeAddress(req.Chain, req.Address)
		if err != nil {
			return fail(c, err)
		}

		challenge, err := d.Challenges.Issue(strings.ToLower(req.Chain), address)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(challenge)
	})

	app.Post("/auth/verify", func(c *fiber.Ctx) error {
		var req struct {
			Email        string `json:"email"`
			Chain        string `json:"chain"`
			Address      string `json:"address"`
			Signature    string `json:"signature"`
			ReferralCode string `json:"referralCode"`
			Payload      struct {
				Nonce     string    `json:"nonce"`
				IssuedAt  time.Time `json:"issuedAt"`
				ExpiresAt time.Time `json:"expiresAt"`
			} `json:"payload"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fail(c, utils.E(utils.KindValidation, "invalid request body"))
		}
		if !d.Chains.Supported(req.Chain) {
			return fail(c, utils.E(utils.KindValidation, "invalid chain"))
		}
		chain := strings.ToLower(req.Chain)
		address, err := d.Chains.NormalizeAddress(chain, req.Address)
		if err != nil {
			return fail(c, err)
		}

		nonce, err := d.Challenges.Pending(chain, address)
		if err != nil {
			return fail(c, err)
		}
		if req.Payload.Nonce != "" && req.Payload.Nonce != nonce.Value {
			return fail(c, utils.E(utils.KindInvalidChallenge, "nonce mismatch"))
		}

		challenge := chains.Challenge{
			Nonce:     nonce.Value,
			Statement: d.Challenges.Statement,
			Domain:    d.Challenges.Domain,
			IssuedAt:  nonce.IssuedAt,
			ExpiresAt: nonce.ExpiresAt,
		}
		result, err := d.Chains.Verify(chain, address, req.Signature, challenge)
		if err != nil {
			return fail(c, err)
		}

		rawToken := utils.NewRawToken()
		meta := clientMeta(c)
		var profile *models.Profile
		var sess *models.Session

		attempt := func() error {
			return d.DB.Transaction(func(tx *gorm.DB) error {
				var err error
				profile, err = findOrCreateProfileByAccount(tx, d, chain, result.NormalizedAddress, req.Email, req.ReferralCode)
				if err != nil {
					return err
				}
				if _, err = d.Linker.Link(tx, profile.ID, chain, result.NormalizedAddress, services.LinkOptions{IsPrimary: true}); err != nil {
					return err
				}
				// Challenges are single-use: gone once redeemed.
				if err = d.Challenges.Consume(tx, chain, address); err != nil {
					return err
				}
				sess, err = d.Sessions.Create(tx, profile.ID, rawToken, "", meta)
				return err
			})
		}
		if err := attempt(); err != nil {
			// A concurrent signup for the same new address can win the
			// account creation race; the rerun converges on the existing
			// account instead of creating a second profile.
			kind := utils.KindOf(err)
			if kind != utils.KindAccountConflict && kind != utils.KindStorage {
				return fail(c, err)
			}
			if err := attempt(); err != nil {
				return fail(c, err)
			}
		}

		setSessionCookie(c, rawToken, sess.ExpiresAt)
		return c.JSON(fiber.Map{"ok": true, "profileId": profile.ID})
	})

	app.Post("/auth/external", func(c *fiber.Ctx) error {
		var req struct {
			Token string `json:"token"`
			// Advisory only; the resolver's answer is authoritative.
			UserID        string `json:"userId"`
			WalletAddress string `json:"walletAddress"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fail(c, utils.E(utils.KindValidation, "invalid request body"))
		}
		token := req.Token
		if token == "" {
			token = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			return fail(c, utils.E(utils.KindValidation, "missing credential token"))
		}

		identity, err := d.Identity.Resolve(c.UserContext(), token)
		if err != nil {
			return fail(c, utils.E(utils.KindUpstreamIdentity, "could not validate credential"))
		}
		if identity == nil {
			return fail(c, utils.E(utils.KindUnauthenticated, "invalid or expired credential"))
		}
		if req.UserID != "" && req.UserID != identity.UserID {
			log.Printf("⚠️ [AUTH] client-claimed user id %s differs from resolved %s", req.UserID, identity.UserID)
		}
		if req.WalletAddress != "" && !strings.EqualFold(req.WalletAddress, identity.WalletAddress) {
			log.Printf("⚠️ [AUTH] client-claimed wallet differs from resolved wallet for user %s", identity.UserID)
		}

		address, err := d.Chains.NormalizeAddress(d.PrimaryChain, identity.WalletAddress)
		if err != nil {
			return fail(c, utils.E(utils.KindUpstreamIdentity, "identity service returned an unusable wallet address"))
		}

		// The cookie carries the external credential itself so refresh can
		// re-validate it against the authority.
		meta := clientMeta(c)
		var profile *models.Profile
		var sess *models.Session

		attempt := func() error {
			return d.DB.Transaction(func(tx *gorm.DB) error {
				var err error
				profile, err = findOrCreateProfileByIdentity(tx, d, identity, address)
				if err != nil {
					return err
				}
				if _, err = d.Linker.Link(tx, profile.ID, d.PrimaryChain, address, services.LinkOptions{IsPrimary: true}); err != nil {
					return err
				}
				sess, err = d.Sessions.Create(tx, profile.ID, token, identity.UserID, meta)
				return err
			})
		}
		if err := attempt(); err != nil {
			kind := utils.KindOf(err)
			if kind != utils.KindAccountConflict && kind != utils.KindStorage {
				return fail(c, err)
			}
			if err := attempt(); err != nil {
				return fail(c, err)
			}
		}

		hasLinkedSecondary, err := d.Linker.Exists(profile.ID, d.SecondaryChain)
		if err != nil {
			return fail(c, err)
		}

		setSessionCookie(c, token, sess.ExpiresAt)
		return c.JSON(fiber.Map{
			"ok":                 true,
			"profileId":          profile.ID,
			"hasLinkedSecondary": hasLinkedSecondary,
			"contact": fiber.Map{
				"email": identity.Email,
				"phone": identity.Phone,
			},
		})
	})

	app.Post("/auth/refresh", func(c *fiber.Ctx) error {
		raw := c.Cookies(utils.SessionCookieName)
		sess, err := d.Sessions.Refresh(c.UserContext(), raw)
		if err != nil {
			return fail(c, err)
		}
		setSessionCookie(c, raw, sess.ExpiresAt)
		return c.JSON(fiber.Map{
			"ok":        true,
			"expiresAt": sess.ExpiresAt,
			"profileId": sess.ProfileID,
		})
	})

	app.Post("/auth/logout", func(c *fiber.Ctx) error {
		raw := c.Cookies(utils.SessionCookieName)
		if sess, err := d.Sessions.Validate(raw); err == nil {
			if rerr := d.Sessions.Revoke(sess.ID); rerr != nil {
				log.Printf("⚠️ [AUTH] logout revoke failed: %v", rerr)
			}
		}
		clearSessionCookie(c)
		return c.JSON(fiber.Map{"ok": true})
	})

	secured := app.Group("/s", middleware.SessionAuthMiddleware(d.Sessions, d.DB))

	secured.Get("/verify-access", func(c *fiber.Ctx) error {
		profile := middleware.ProfileFromCtx(c)
		return c.JSON(fiber.Map{
			"profileId":         profile.ID,
			"gameAccessGranted": profile.GameAccessGranted,
			"waitlistPosition":  profile.WaitlistPosition,
		})
	})
}

// findOrCreateProfileByAccount resolves the profile owning (chain, address)
// or creates a fresh one for a never-before-seen address.
func findOrCreateProfileByAccount(tx *gorm.DB, d AuthDeps, chain, address, email, referralCode string) (*models.Profile, error) {
	var acct models.Account
	err := tx.Where("chain = ? AND address = ?", chain, address).First(&acct).Error
	switch {
	case err == nil:
		var profile models.Profile
		if perr := tx.First(&profile, "id = ?", acct.ProfileID).Error; perr != nil {
			return nil, utils.Wrap(utils.KindStorage, "failed to load profile", perr)
		}
		return &profile, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return createProfile(tx, d, email, defaultDisplayName(address), "", referralCode)
	default:
		return nil, utils.Wrap(utils.KindStorage, "failed to look up account", err)
	}
}

// findOrCreateProfileByIdentity resolves a profile for an externally
// validated identity: by external id first, then by the resolved wallet,
// creating one if neither exists.
func findOrCreateProfileByIdentity(tx *gorm.DB, d AuthDeps, identity *services.Identity, address string) (*models.Profile, error) {
	var profile models.Profile
	err := tx.Where("external_identity_id = ?", identity.UserID).First(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.Wrap(utils.KindStorage, "failed to look up profile", err)
	}

	var acct models.Account
	err = tx.Where("chain = ? AND address = ?", d.PrimaryChain, address).First(&acct).Error
	if err == nil {
		if perr := tx.First(&profile, "id = ?", acct.ProfileID).Error; perr != nil {
			return nil, utils.Wrap(utils.KindStorage, "failed to load profile", perr)
		}
		if profile.ExternalIdentityID == "" {
			if uerr := tx.Model(&models.Profile{}).Where("id = ?", profile.ID).
				Update("external_identity_id", identity.UserID).Error; uerr != nil {
				return nil, utils.Wrap(utils.KindStorage, "failed to bind external identity", uerr)
			}
			profile.ExternalIdentityID = identity.UserID
		}
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.Wrap(utils.KindStorage, "failed to look up account", err)
	}

	displayName := identity.Email
	if displayName == "" {
		displayName = defaultDisplayName(address)
	}
	return createProfile(tx, d, identity.Email, displayName, identity.UserID, "")
}

// createProfile builds a new profile with its own referral code row, runs
// referral attribution when a code accompanied signup, and applies the
// admission decision (immediate access or waitlist).
func createProfile(tx *gorm.DB, d AuthDeps, email, displayName, externalID, referralCode string) (*models.Profile, error) {
	code, err := d.Referrals.GenerateCode(tx)
	if err != nil {
		return nil, err
	}

	profile := &models.Profile{
		Email:              email,
		DisplayName:        displayName,
		Handle:             slug.Make(displayName),
		ExternalIdentityID: externalID,
		ReferralCode:       code,
		MaxReferrals:       d.DefaultMaxReferrals,
		Role:               models.RolePlayer,
	}
	if err := tx.Create(profile).Error; err != nil {
		return nil, utils.Wrap(utils.KindStorage, "failed to create profile", err)
	}
	if err := tx.Create(&models.Referral{Code: code, ReferrerProfileID: profile.ID}).Error; err != nil {
		return nil, utils.Wrap(utils.KindStorage, "failed to create referral code", err)
	}

	admitted := !d.SignupGated
	if referralCode != "" {
		referralCode = strings.ToUpper(strings.TrimSpace(referralCode))
		var referrer models.Profile
		rerr := tx.Where("referral_code = ?", referralCode).First(&referrer).Error
		switch {
		case rerr == nil:
			active, aerr := d.Referrals.Attribute(tx, referrer.ID, profile.ID, referralCode)
			switch {
			case aerr == nil:
				if active {
					admitted = true
				}
			case utils.KindOf(aerr) == utils.KindInvalidState:
				// Deactivated code: signup proceeds without the referral.
				log.Printf("⚠️ [SIGNUP] referral code %s not usable, continuing without it: %v", referralCode, aerr)
			default:
				return nil, aerr
			}
		case errors.Is(rerr, gorm.ErrRecordNotFound):
			log.Printf("⚠️ [SIGNUP] unknown referral code %s, continuing without it", referralCode)
		default:
			return nil, utils.Wrap(utils.KindStorage, "failed to look up referral code", rerr)
		}
	}

	if admitted {
		if err := tx.Model(&models.Profile{}).Where("id = ?", profile.ID).
			Update("game_access_granted", true).Error; err != nil {
			return nil, utils.Wrap(utils.KindStorage, "failed to grant access", err)
		}
		profile.GameAccessGranted = true
	} else {
		pos, err := d.Referrals.EnqueueWaitlist(tx, profile.ID)
		if err != nil {
			return nil, err
		}
		profile.WaitlistPosition = &pos
	}
	return profile, nil
}

func defaultDisplayName(address string) string {
	if len(address) > 10 {
		return "player-" + strings.ToLower(address[2:8])
	}
	return "player-" + strings.ToLower(address)
}
