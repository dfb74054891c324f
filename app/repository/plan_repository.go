package repository

import (
	"time"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// planRepository implements the PlanStore interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanStore {
	return &planRepository{db: db}
}

// GetByUser retrieves the plan state for a user
func (r *planRepository) GetByUser(userID uint) (*models.UserPlan, error) {
	var plan models.UserPlan
	err := r.db.Where("user_id = ?", userID).First(&plan).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &plan, nil
}

// SetTier writes the tier and end date billing decided for a user
func (r *planRepository) SetTier(userID uint, tier string, endDate *time.Time, nonExpiring bool) error {
	plan, err := models.GetOrCreateUserPlan(r.db, userID)
	if err != nil {
		return err
	}
	plan.PlanTier = string(entitlements.NormalizePlan(tier))
	plan.PlanEndDate = endDate
	plan.NonExpiring = nonExpiring
	return r.db.Save(plan).Error
}

// FindExpired returns paid plans whose end date is in the past
func (r *planRepository) FindExpired(asOf time.Time) ([]models.UserPlan, error) {
	var plans []models.UserPlan
	err := r.db.
		Where("plan_tier <> ? AND non_expiring = ? AND plan_end_date IS NOT NULL AND plan_end_date < ?",
			string(entitlements.PlanFree), false, asOf).
		Order("plan_end_date ASC, id ASC").Find(&plans).Error
	return plans, err
}

// FindExpiringBetween returns paid plans whose end date falls in the window
func (r *planRepository) FindExpiringBetween(from, to time.Time) ([]models.UserPlan, error) {
	var plans []models.UserPlan
	err := r.db.
		Where("plan_tier <> ? AND non_expiring = ? AND plan_end_date >= ? AND plan_end_date < ?",
			string(entitlements.PlanFree), false, from, to).
		Order("plan_end_date ASC, id ASC").Find(&plans).Error
	return plans, err
}
