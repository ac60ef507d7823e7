// middleware/auth.go
package middleware

import (
	"errors"

	"player-identity-system/models"
	"player-identity-system/services"
	"player-identity-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SessionAuthMiddleware resolves the session cookie into a profile and
// attaches both to the request context. Applied to every route under /s/.
func SessionAuthMiddleware(sessions *services.SessionService, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(utils.SessionCookieName)
		sess, err := sessions.Validate(raw)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   string(utils.KindUnauthenticated),
				"message": "valid session required",
			})
		}

		var profile models.Profile
		if derr := db.First(&profile, "id = ?", sess.ProfileID).Error; derr != nil {
			if !errors.Is(derr, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": string(utils.KindStorage),
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   string(utils.KindUnauthenticated),
				"message": "profile no longer exists",
			})
		}

		c.Locals("session", sess)
		c.Locals("profile", &profile)
		return c.Next()
	}
}

// RequireCapability gates a route on the profile's role. Must run after
// SessionAuthMiddleware.
func RequireCapability(cap models.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		profile, ok := c.Locals("profile").(*models.Profile)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": string(utils.KindUnauthenticated),
			})
		}
		if !profile.Role.Can(cap) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   string(utils.KindForbidden),
				"message": "insufficient permission",
			})
		}
		return c.Next()
	}
}

// ProfileFromCtx returns the authenticated profile set by
// SessionAuthMiddleware.
func ProfileFromCtx(c *fiber.Ctx) *models.Profile {
	profile, _ := c.Locals("profile").(*models.Profile)
	return profile
}

// SessionFromCtx returns the validated session set by
// SessionAuthMiddleware.
func SessionFromCtx(c *fiber.Ctx) *models.Session {
	sess, _ := c.Locals("session").(*models.Session)
	return sess
}
