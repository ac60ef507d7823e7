// handlers/referral_routes.go
package handlers

import (
	"strings"

	"player-identity-system/middleware"
	"player-identity-system/utils"

	"github.com/gofiber/fiber/v2"
)

// SetupReferralRoutes wires code validation (public) and the
// session-scoped attach/deactivate operations.
func SetupReferralRoutes(app *fiber.App, d AuthDeps) {
	app.Get("/referral/validate", func(c *fiber.Ctx) error {
		code := c.Query("code")
		result, err := d.Referrals.Validate(code)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(result)
	})

	secured := app.Group("/s", middleware.SessionAuthMiddleware(d.Sessions, d.DB))

	secured.Post("/referral/attach", func(c *fiber.Ctx) error {
		profile := middleware.ProfileFromCtx(c)

		var req struct {
			Code string `json:"code"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fail(c, utils.E(utils.KindValidation, "invalid request body"))
		}

		already, err := d.Referrals.HasReferral(profile.ID)
		if err != nil {
			return fail(c, err)
		}
		if already {
			return fail(c, utils.E(utils.KindInvalidState, "profile already has a referral"))
		}

		result, err := d.Referrals.Validate(req.Code)
		if err != nil {
			return fail(c, err)
		}
		if !result.Exists || !result.Valid {
			return fail(c, utils.E(utils.KindValidation, "invalid referral code"))
		}
		if result.ReferrerID == profile.ID {
			return fail(c, utils.E(utils.KindValidation, "self-referral is not allowed"))
		}

		isActive, err := d.Referrals.Attribute(d.DB, result.ReferrerID, profile.ID, strings.ToUpper(strings.TrimSpace(req.Code)))
		if err != nil {
			return fail(c, err)
		}

		// An active referral admits the profile immediately.
		if isActive && !profile.GameAccessGranted {
			if err := d.Referrals.GrantAccess(d.DB, profile.ID); err != nil {
				return fail(c, err)
			}
		}

		return c.JSON(fiber.Map{"ok": true, "isActive": isActive})
	})

	secured.Post("/referral/deactivate", func(c *fiber.Ctx) error {
		profile := middleware.ProfileFromCtx(c)

		var req struct {
			CodeID string `json:"codeId"`
		}
		if err := c.BodyParser(&req); err != nil || req.CodeID == "" {
			return fail(c, utils.E(utils.KindValidation, "codeId is required"))
		}

		if err := d.Referrals.Deactivate(profile.ID, req.CodeID); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"ok": true})
	})
}
