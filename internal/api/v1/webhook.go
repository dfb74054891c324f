package apiv1

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/MarkusWeidner/ImmoFox/internal/pkg/billing"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/plansweep"
)

// PostBillingWebhook receives provider subscription events. The signature
// check replaces auth here; the provider is the caller.
func (s *APIServer) PostBillingWebhook(c *fiber.Ctx) error {
	service := billing.NewService(plansweep.GetManager().GetJobs())
	err := service.HandleWebhook(c.UserContext(), c.Body(), c.Get("X-Billing-Signature"))
	switch {
	case err == nil:
		return c.SendStatus(fiber.StatusNoContent)
	case errors.Is(err, billing.ErrInvalidSignature):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
	case errors.Is(err, billing.ErrInvalidPayload):
		return badRequest(c, err.Error())
	default:
		return serverError(c, err)
	}
}
