// handlers/profile_routes.go
package handlers

import (
	"context"
	"strings"

	"player-identity-system/middleware"
	"player-identity-system/services"
	"player-identity-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
)

// SetupProfileRoutes wires the session-scoped profile read/update surface.
func SetupProfileRoutes(app *fiber.App, d AuthDeps) {
	secured := app.Group("/s", middleware.SessionAuthMiddleware(d.Sessions, d.DB))

	secured.Get("/profile", func(c *fiber.Ctx) error {
		profile := middleware.ProfileFromCtx(c)

		accounts, err := d.Linker.ForProfile(profile.ID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"profile":  profile,
			"accounts": accounts,
		})
	})

	secured.Patch("/profile", func(c *fiber.Ctx) error {
		profile := middleware.ProfileFromCtx(c)

		var req struct {
			DisplayName *string `json:"displayName"`
			AvatarURL   *string `json:"avatarUrl"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fail(c, utils.E(utils.KindValidation, "invalid request body"))
		}
		if req.DisplayName == nil && req.AvatarURL == nil {
			return fail(c, utils.E(utils.KindValidation, "nothing to update"))
		}

		updates := map[string]any{}
		if req.DisplayName != nil {
			name := strings.TrimSpace(*req.DisplayName)
			if name == "" || len(name) > 64 {
				return fail(c, utils.E(utils.KindValidation, "displayName must be 1-64 characters"))
			}
			updates["display_name"] = name
			updates["handle"] = slug.Make(name)
		}

		oldAvatar := profile.AvatarURL
		if req.AvatarURL != nil {
			updates["avatar_url"] = strings.TrimSpace(*req.AvatarURL)
		}

		if err := d.DB.Model(profile).Updates(updates).Error; err != nil {
			return fail(c, utils.Wrap(utils.KindStorage, "failed to update profile", err))
		}
		if v, ok := updates["display_name"]; ok {
			profile.DisplayName = v.(string)
			profile.Handle = updates["handle"].(string)
		}
		if req.AvatarURL != nil {
			profile.AvatarURL = updates["avatar_url"].(string)
		}

		// The superseded avatar object is orphaned once the row points
		// elsewhere. Cleanup must never block or fail the update.
		if req.AvatarURL != nil && oldAvatar != "" && oldAvatar != *req.AvatarURL && utils.R2Enabled() {
			if key := utils.ObjectKeyFromURL(oldAvatar); key != "" {
				services.BestEffort("avatar-cleanup", func(ctx context.Context) error {
					return utils.DeleteObjectFromR2(ctx, key)
				})
			}
		}

		return c.JSON(fiber.Map{"ok": true, "profile": profile})
	})
}
