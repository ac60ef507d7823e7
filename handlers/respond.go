// handlers/respond.go
package handlers

import (
	"errors"
	"log"
	"time"

	"player-identity-system/chains"
	"player-identity-system/services"
	"player-identity-system/utils"

	"github.com/gofiber/fiber/v2"
)

// fail normalizes any error leaving the core into a stable machine-readable
// kind plus message. Raw driver errors never reach the caller.
func fail(c *fiber.Ctx, err error) error {
	var ae *utils.AppError
	if errors.As(err, &ae) {
		if ae.Kind == utils.KindStorage || ae.Kind == utils.KindUpstreamIdentity {
			log.Printf("❌ [%s] %s: %v", ae.Kind, c.Path(), err)
		}
		return c.Status(ae.Kind.HTTPStatus()).JSON(fiber.Map{
			"error":   string(ae.Kind),
			"message": ae.Message,
		})
	}

	switch {
	case errors.Is(err, chains.ErrUnknownChain):
		return fail(c, utils.E(utils.KindValidation, "unsupported chain"))
	case errors.Is(err, chains.ErrInvalidAddressFormat):
		return fail(c, utils.E(utils.KindValidation, "invalid address format"))
	case errors.Is(err, chains.ErrChallengeExpired):
		return fail(c, utils.E(utils.KindInvalidChallenge, "challenge expired"))
	case errors.Is(err, chains.ErrChallengeOwnerMismatch):
		return fail(c, utils.E(utils.KindForbidden, "challenge was issued for a different profile"))
	case errors.Is(err, chains.ErrSignatureMismatch):
		return fail(c, utils.E(utils.KindSignatureMismatch, "signature does not match the claimed address"))
	}

	log.Printf("❌ [UNCLASSIFIED] %s: %v", c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   string(utils.KindStorage),
		"message": "internal error",
	})
}

func setSessionCookie(c *fiber.Ctx, raw string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     utils.SessionCookieName,
		Value:    raw,
		Expires:  expiresAt,
		Path:     "/",
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     utils.SessionCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		Path:     "/",
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func clientMeta(c *fiber.Ctx) services.ClientMeta {
	return services.ClientMeta{
		IP:        c.IP(),
		UserAgent: c.Get("User-Agent"),
	}
}
