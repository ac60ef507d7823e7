// handlers/link_routes.go
package handlers

import (
	"errors"
	"strings"

	"player-identity-system/chains"
	"player-identity-system/middleware"
	"player-identity-system/services"
	"player-identity-system/utils"

	"github.com/gofiber/fiber/v2"
)

// SetupLinkRoutes wires cross-chain account linking: a session-bound
// challenge token, then a proof of control over the target-chain address.
func SetupLinkRoutes(app *fiber.App, d AuthDeps) {
	secured := app.Group("/s", middleware.SessionAuthMiddleware(d.Sessions, d.DB))

	secured.Post("/link/challenge", func(c *fiber.Ctx) error {
		profile := middleware.ProfileFromCtx(c)

		base, err := d.Linker.PrimaryForChain(profile.ID, d.PrimaryChain)
		if err != nil {
			return fail(c, err)
		}
		if base == nil {
			return fail(c, utils.E(utils.KindValidation, "no base account to derive from"))
		}

		token, expiresAt, err := d.Challenges.IssueLinkChallenge(profile.ID, base.Address)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"token":        token,
			"expiresAt":    expiresAt,
			"ttlMs":        d.Challenges.LinkTTL.Milliseconds(),
			"boundAddress": base.Address,
		})
	})

	secured.Post("/link/verify", func(c *fiber.Ctx) error {
		profile := middleware.ProfileFromCtx(c)

		var req struct {
			Chain          string `json:"chain"`
			TargetAddress  string `json:"targetAddress"`
			Proof          string `json:"proof"`
			ChallengeToken string `json:"challengeToken"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fail(c, utils.E(utils.KindValidation, "invalid request body"))
		}
		if req.TargetAddress == "" || req.Proof == "" || req.ChallengeToken == "" {
			return fail(c, utils.E(utils.KindValidation, "targetAddress, proof and challengeToken are required"))
		}
		chain := strings.ToLower(req.Chain)
		if chain == "" {
			chain = d.SecondaryChain
		}
		if !d.Chains.Supported(chain) {
			return fail(c, utils.E(utils.KindValidation, "invalid chain"))
		}

		claims, err := d.Challenges.ParseLinkChallenge(req.ChallengeToken)
		if err != nil {
			return fail(c, err)
		}
		// The challenge must belong to the authenticated caller; anything
		// else is a replay across sessions.
		if claims.ProfileID != profile.ID {
			return fail(c, chains.ErrChallengeOwnerMismatch)
		}

		challenge := chains.Challenge{
			ProfileID: claims.ProfileID,
			Token:     req.ChallengeToken,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		}
		result, err := d.Chains.Verify(chain, req.TargetAddress, req.Proof, challenge)
		if err != nil {
			// On this surface a bad proof is an invalid payload, not an
			// authentication failure: the caller already holds a session.
			if errors.Is(err, chains.ErrSignatureMismatch) {
				return fail(c, utils.E(utils.KindValidation, "proof does not verify for the target address"))
			}
			return fail(c, err)
		}

		acct, err := d.Linker.Link(d.DB, profile.ID, chain, result.NormalizedAddress, services.LinkOptions{
			DerivedFromChain:   d.PrimaryChain,
			DerivedFromAddress: claims.SourceAddress,
		})
		if err != nil {
			return fail(c, err)
		}

		return c.JSON(fiber.Map{
			"ok":                true,
			"normalizedAddress": result.NormalizedAddress,
			"proofRef":          acct.ID,
		})
	})
}
