package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification kinds emitted by the lifecycle core. Delivery (mail/push) is a
// separate concern that drains this table.
const (
	NotificationKindPlanExpiring       = "plan_expiring"
	NotificationKindPlanExpired        = "plan_expired"
	NotificationKindListingExpiring    = "listing_expiring"
	NotificationKindListingDeactivated = "listing_deactivated"
	NotificationKindListingReactivated = "listing_reactivated"
	NotificationKindFavoritePublished  = "favorite_listing_published"
)

// Notification is a stored notification intent: who should be told, what about,
// and the metadata a template needs. SentAt stays null until the delivery
// worker picks it up.
type Notification struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index" json:"user_id"`
	User        User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Kind        string         `gorm:"type:varchar(50);index" json:"kind" validate:"oneof=plan_expiring plan_expired listing_expiring listing_deactivated listing_reactivated favorite_listing_published"`
	Payload     JSON           `gorm:"type:json" json:"payload"`
	ReferenceID uint           `json:"reference_id"` // id of the listing or plan row the intent refers to
	SentAt      *time.Time     `gorm:"type:datetime;default:null;index" json:"sent_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// MarkSent stamps the delivery time once the external channel accepted the intent.
func (n *Notification) MarkSent(db *gorm.DB) error {
	now := time.Now()
	n.SentAt = &now
	return db.Model(n).Update("sent_at", n.SentAt).Error
}
