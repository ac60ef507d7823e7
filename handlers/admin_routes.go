// handlers/admin_routes.go
package handlers

import (
	"player-identity-system/middleware"
	"player-identity-system/models"
	"player-identity-system/services"
	"player-identity-system/utils"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminRoutes wires the elevated access-management surface: bulk
// grant/revoke by explicit ids and waitlist approval by count.
func SetupAdminRoutes(app *fiber.App, d AuthDeps) {
	admin := app.Group("/s/admin",
		middleware.SessionAuthMiddleware(d.Sessions, d.DB),
		middleware.RequireCapability(models.CapManageAccess),
	)

	admin.Post("/access", func(c *fiber.Ctx) error {
		var req struct {
			Action string   `json:"action"` // grant | revoke | approve
			IDs    []string `json:"ids"`
			Count  int      `json:"count"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fail(c, utils.E(utils.KindValidation, "invalid request body"))
		}

		var updated []services.AccessUpdate
		var err error
		switch req.Action {
		case "approve":
			if len(req.IDs) > 0 {
				updated, err = d.Referrals.SetAccess(req.IDs, true)
			} else if req.Count > 0 {
				updated, err = d.Referrals.BulkApproveCount(req.Count)
			} else {
				return fail(c, utils.E(utils.KindValidation, "approve requires ids or a positive count"))
			}
		case "grant":
			updated, err = d.Referrals.SetAccess(req.IDs, true)
		case "revoke":
			updated, err = d.Referrals.SetAccess(req.IDs, false)
		default:
			return fail(c, utils.E(utils.KindValidation, "action must be grant, revoke or approve"))
		}
		if err != nil {
			return fail(c, err)
		}

		if updated == nil {
			updated = []services.AccessUpdate{}
		}
		return c.JSON(fiber.Map{
			"updated": len(updated),
			"players": updated,
		})
	})
}
