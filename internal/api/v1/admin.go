package apiv1

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MarkusWeidner/ImmoFox/internal/pkg/entitlements"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/plansweep"
)

// SetPlanRequest is the admin payload for a manual plan change.
type SetPlanRequest struct {
	PlanTier    string     `json:"plan_tier" validate:"required,oneof=free basic professional"`
	PlanEndDate *time.Time `json:"plan_end_date"`
	NonExpiring bool       `json:"non_expiring"`
}

// PutUserPlan applies a plan change for a user, enforcing listing limits in
// the same pass a real billing webhook would.
func (s *APIServer) PutUserPlan(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID <= 0 {
		return badRequest(c, "invalid user id")
	}

	var req SetPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	tier := entitlements.NormalizePlan(req.PlanTier)
	if tier != entitlements.PlanFree && req.PlanEndDate == nil && !req.NonExpiring {
		return badRequest(c, "paid plans need an end date or non_expiring")
	}

	jobs := plansweep.GetManager().GetJobs()
	result, err := jobs.ApplyPlanChange(c.UserContext(), uint(userID), tier, req.PlanEndDate, req.NonExpiring)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(fiber.Map{
		"plan_tier":   string(tier),
		"deactivated": len(result.Deactivated),
		"reactivated": result.Reactivated,
	})
}

// PostExpirationSweep triggers the plan expiration sweep out of schedule.
func (s *APIServer) PostExpirationSweep(c *fiber.Ctx) error {
	stats, err := plansweep.GetManager().GetSweeper().RunExpirationSweep(c.UserContext())
	if err != nil {
		return serverError(c, err)
	}
	return c.JSON(stats)
}

// PostWarningSweep triggers the expiry warning sweep out of schedule.
func (s *APIServer) PostWarningSweep(c *fiber.Ctx) error {
	stats, err := plansweep.GetManager().GetSweeper().RunExpiringWarningSweep(c.UserContext())
	if err != nil {
		return serverError(c, err)
	}
	return c.JSON(stats)
}
