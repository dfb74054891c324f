package apiv1

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/MarkusWeidner/ImmoFox/internal/pkg/guard"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/lifecycle"
)

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func serverError(c *fiber.Ctx, err error) error {
	log.Errorf("[API] internal error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// engineError maps lifecycle and guard errors onto HTTP responses. Denials are
// regular outcomes, not server faults, so everything here answers with a
// structured body instead of a bare status.
func engineError(c *fiber.Ctx, err error) error {
	var limitErr *lifecycle.LimitError
	if errors.As(err, &limitErr) {
		body := fiber.Map{
			"error":  "plan limit",
			"action": string(limitErr.Action),
			"reason": limitErr.Decision.Reason,
			"tier":   string(limitErr.Decision.Tier),
			"count":  limitErr.Decision.Count,
		}
		if !limitErr.Decision.Limit.IsUnlimited() {
			body["limit"] = int64(limitErr.Decision.Limit)
		}
		return c.Status(fiber.StatusForbidden).JSON(body)
	}

	var transitionErr *lifecycle.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  "invalid transition",
			"status": transitionErr.From,
		})
	}

	switch {
	case errors.Is(err, lifecycle.ErrListingNotFound), errors.Is(err, guard.ErrOwnerNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, lifecycle.ErrNotOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your listing"})
	case errors.Is(err, lifecycle.ErrNoMedia):
		return badRequest(c, "listing needs at least one image before publishing")
	case errors.Is(err, lifecycle.ErrNotActive):
		return badRequest(c, "listing is not publicly visible")
	default:
		return serverError(c, err)
	}
}
