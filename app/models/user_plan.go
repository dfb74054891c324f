package models

import (
	"time"

	"gorm.io/gorm"
)

// UserPlan stores the plan state billing decided for a user. This table is the
// single source of truth for an owner's current entitlement; the core only
// consumes it, billing writes it.
type UserPlan struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   uint   `gorm:"uniqueIndex" json:"user_id"`
	PlanTier string `gorm:"column:plan_tier;type:varchar(50);default:'free';index" json:"plan_tier"`
	// PlanEndDate is null on the free tier. On paid tiers it must be set unless
	// NonExpiring is true (founder grants and similar).
	PlanEndDate *time.Time     `gorm:"column:plan_end_date;type:datetime;default:null;index" json:"plan_end_date"`
	NonExpiring bool           `gorm:"default:false" json:"non_expiring"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// GetOrCreateUserPlan returns existing plan state or creates a free-tier row.
func GetOrCreateUserPlan(db *gorm.DB, userID uint) (*UserPlan, error) {
	var up UserPlan
	if err := db.Where("user_id = ?", userID).First(&up).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			up = UserPlan{UserID: userID, PlanTier: "free"}
			if err := db.Create(&up).Error; err != nil {
				return nil, err
			}
			return &up, nil
		}
		return nil, err
	}
	return &up, nil
}
