package repository

import (
	"context"
	"errors"
	"time"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned by all stores when a record does not exist, so core
// packages can distinguish missing rows without depending on the SQL layer.
var ErrNotFound = errors.New("record not found")

// ListingStore defines the listing-side database operations the lifecycle core
// depends on. Finder ordering is part of the contract: the expiration job
// deactivates oldest-published first, the reactivation job restores
// newest-deactivated first.
type ListingStore interface {
	Create(listing *models.Listing) error
	GetByID(id uint) (*models.Listing, error)
	GetByUUID(uuid string) (*models.Listing, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Listing, error)
	CountActive(userID uint) (int64, error)
	CountFeaturedSince(userID uint, since time.Time) (int64, error)
	CountImages(listingID uint) (int64, error)
	CreateImage(image *models.ListingImage) error
	FindActiveOldestFirst(userID uint) ([]models.Listing, error)
	FindDowngradeDeactivated(userID uint) ([]models.Listing, error)
	FindPublishedExpiredBefore(cutoff time.Time, limit int) ([]models.Listing, error)
	FindPublishedExpiringBetween(from, to time.Time) ([]models.Listing, error)
	FindFavoriteUserIDs(listingID uint) ([]uint, error)
	AddFavorite(userID, listingID uint) error
	RemoveFavorite(userID, listingID uint) error
	SetPublished(id uint, publishedAt, expiresAt time.Time) error
	SetStatus(id uint, status string) error
	SetActive(id uint, active bool, reason string, at *time.Time) error
	// SetFeatured flips the boost flag. featuredAt is written only when
	// non-nil, so unfeaturing leaves the quota record in place.
	SetFeatured(id uint, featured bool, featuredAt, expiresAt *time.Time) error
}

// PlanStore defines access to the billing-owned plan state.
type PlanStore interface {
	GetByUser(userID uint) (*models.UserPlan, error)
	SetTier(userID uint, tier string, endDate *time.Time, nonExpiring bool) error
	FindExpired(asOf time.Time) ([]models.UserPlan, error)
	FindExpiringBetween(from, to time.Time) ([]models.UserPlan, error)
}

// NotificationStore persists notification intents for the delivery worker.
type NotificationStore interface {
	Create(notification *models.Notification) error
	FindUnsent(limit int) ([]models.Notification, error)
	MarkSent(id uint, at time.Time) error
}

// Stores bundles the transaction-scoped stores handed to a locked section.
type Stores struct {
	Listings ListingStore
	Plans    PlanStore
}

// OwnerLocker serializes all mutations for one owner. The callback runs inside
// a transaction that holds a row lock on the owner's plan row, so a count
// check and the write it gates share one lock scope.
type OwnerLocker interface {
	WithOwnerLock(ctx context.Context, userID uint, fn func(s Stores) error) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Listing      ListingStore
	Plan         PlanStore
	Notification NotificationStore
	Locker       OwnerLocker
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Listing:      NewListingRepository(db),
		Plan:         NewPlanRepository(db),
		Notification: NewNotificationRepository(db),
		Locker:       NewOwnerLocker(db),
	}
}
