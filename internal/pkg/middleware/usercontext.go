package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/database"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/session"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the caller's identity once per request and
// puts an unambiguous UserContext into Locals. Inside the core the owner id
// is this single value; nothing downstream re-derives it.
func UserContextMiddleware(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		c.Locals("USER_CONTEXT", usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	userID := sess.Get(usercontext.KeyUserID)
	if userID == nil {
		c.Locals("USER_CONTEXT", usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	username := session.GetSessionValue(c, usercontext.KeyUsername)
	isAdmin := sess.Get(usercontext.KeyIsAdmin)

	// Plan tier with session-first strategy; fall back to the plan table.
	tier := session.GetSessionValue(c, "plan_tier")
	if tier == "" {
		tier = "free"
		if db := database.GetDB(); db != nil {
			if up, err := models.GetOrCreateUserPlan(db, userID.(uint)); err == nil && up != nil && up.PlanTier != "" {
				tier = up.PlanTier
			}
		}
		_ = session.SetSessionValue(c, "plan_tier", tier)
	}

	c.Locals("USER_CONTEXT", usercontext.UserContext{
		UserID:     userID.(uint),
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin != nil && isAdmin.(bool),
		PlanTier:   tier,
	})
	return c.Next()
}
