package repository

import (
	"time"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"gorm.io/gorm"
)

// notificationRepository implements the NotificationStore interface
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository instance
func NewNotificationRepository(db *gorm.DB) NotificationStore {
	return &notificationRepository{db: db}
}

// Create persists a notification intent
func (r *notificationRepository) Create(notification *models.Notification) error {
	return r.db.Create(notification).Error
}

// FindUnsent returns stored intents the delivery worker has not drained yet
func (r *notificationRepository) FindUnsent(limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	q := r.db.Where("sent_at IS NULL").Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&notifications).Error
	return notifications, err
}

// MarkSent stamps the delivery time on a drained intent
func (r *notificationRepository) MarkSent(id uint, at time.Time) error {
	return r.db.Model(&models.Notification{}).Where("id = ?", id).
		Update("sent_at", at).Error
}
