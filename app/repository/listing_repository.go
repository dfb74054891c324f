package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"gorm.io/gorm"
)

// listingRepository implements the ListingStore interface
type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a new listing repository instance
func NewListingRepository(db *gorm.DB) ListingStore {
	return &listingRepository{db: db}
}

// Create creates a new listing in the database
func (r *listingRepository) Create(listing *models.Listing) error {
	return r.db.Create(listing).Error
}

// GetByID retrieves a listing by its ID
func (r *listingRepository) GetByID(id uint) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.Preload("Images").First(&listing, id).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &listing, nil
}

// GetByUUID retrieves a listing by its UUID
func (r *listingRepository) GetByUUID(uuid string) (*models.Listing, error) {
	listing, err := models.FindListingByUUID(r.db.Preload("Images"), uuid)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return listing, nil
}

// GetByUserID retrieves listings belonging to a specific user with pagination
func (r *listingRepository) GetByUserID(userID uint, offset, limit int) ([]models.Listing, error) {
	var listings []models.Listing
	err := r.db.Preload("Images").Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&listings).Error
	return listings, err
}

// CountActive returns the number of publicly visible listings for a user
func (r *listingRepository) CountActive(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Listing{}).
		Where("user_id = ? AND is_active = ?", userID, true).Count(&count).Error
	return count, err
}

// CountFeaturedSince counts featurings the user started since the given
// instant, for the per-period featuring limit. It reads featured_at, which
// unfeaturing does not clear, so a feature-then-unfeature still consumes the
// monthly quota.
func (r *listingRepository) CountFeaturedSince(userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Listing{}).
		Where("user_id = ? AND featured_at IS NOT NULL AND featured_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// CountImages returns the number of stored image references for a listing
func (r *listingRepository) CountImages(listingID uint) (int64, error) {
	return models.CountListingImages(r.db, listingID)
}

// CreateImage stores a new image reference for a listing
func (r *listingRepository) CreateImage(image *models.ListingImage) error {
	return r.db.Create(image).Error
}

// FindActiveOldestFirst returns a user's visible listings ordered by
// published_at ascending. The expiration job relies on this order: the oldest
// listings are the ones deactivated when a limit shrinks.
func (r *listingRepository) FindActiveOldestFirst(userID uint) ([]models.Listing, error) {
	var listings []models.Listing
	err := r.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("published_at ASC, id ASC").Find(&listings).Error
	return listings, err
}

// FindDowngradeDeactivated returns listings the engine hid on a downgrade,
// newest deactivation first, still published and therefore restorable.
func (r *listingRepository) FindDowngradeDeactivated(userID uint) ([]models.Listing, error) {
	var listings []models.Listing
	err := r.db.
		Where("user_id = ? AND is_active = ? AND status = ? AND deactivated_reason = ?",
			userID, false, models.ListingStatusPublished, models.DeactivatedReasonPlanDowngrade).
		Order("deactivated_at DESC, id DESC").Find(&listings).Error
	return listings, err
}

// FindPublishedExpiredBefore returns published listings whose publication
// window passed before the cutoff.
func (r *listingRepository) FindPublishedExpiredBefore(cutoff time.Time, limit int) ([]models.Listing, error) {
	var listings []models.Listing
	q := r.db.Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
		models.ListingStatusPublished, cutoff).
		Order("expires_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&listings).Error
	return listings, err
}

// FindPublishedExpiringBetween returns published, visible listings expiring in
// the given window, for warning notifications.
func (r *listingRepository) FindPublishedExpiringBetween(from, to time.Time) ([]models.Listing, error) {
	var listings []models.Listing
	err := r.db.Where("status = ? AND is_active = ? AND expires_at >= ? AND expires_at < ?",
		models.ListingStatusPublished, true, from, to).
		Order("expires_at ASC, id ASC").Find(&listings).Error
	return listings, err
}

// FindFavoriteUserIDs returns ids of all users who favorited the listing
func (r *listingRepository) FindFavoriteUserIDs(listingID uint) ([]uint, error) {
	return models.FindFavoriteUserIDs(r.db, listingID)
}

// AddFavorite stores a favorite mark, tolerating repeats
func (r *listingRepository) AddFavorite(userID, listingID uint) error {
	fav := models.ListingFavorite{UserID: userID, ListingID: listingID}
	err := r.db.Create(&fav).Error
	if err != nil && strings.Contains(err.Error(), "Duplicate entry") {
		return nil
	}
	return err
}

// RemoveFavorite drops a favorite mark if present
func (r *listingRepository) RemoveFavorite(userID, listingID uint) error {
	return r.db.Where("user_id = ? AND listing_id = ?", userID, listingID).
		Delete(&models.ListingFavorite{}).Error
}

// SetPublished flips a listing into the published state and opens its
// publication window.
func (r *listingRepository) SetPublished(id uint, publishedAt, expiresAt time.Time) error {
	return r.updateListing(id, map[string]interface{}{
		"status":             models.ListingStatusPublished,
		"is_active":          true,
		"published_at":       publishedAt,
		"expires_at":         expiresAt,
		"deactivated_reason": nil,
		"deactivated_at":     nil,
	})
}

// SetStatus updates only the status column
func (r *listingRepository) SetStatus(id uint, status string) error {
	return r.updateListing(id, map[string]interface{}{"status": status})
}

// SetActive flips the visibility flag. When hiding, the reason and timestamp
// are recorded; when restoring, both are cleared.
func (r *listingRepository) SetActive(id uint, active bool, reason string, at *time.Time) error {
	updates := map[string]interface{}{"is_active": active}
	if active {
		updates["deactivated_reason"] = nil
		updates["deactivated_at"] = nil
	} else {
		updates["deactivated_reason"] = reason
		updates["deactivated_at"] = at
		// a hidden listing cannot stay featured
		updates["featured"] = false
	}
	return r.updateListing(id, updates)
}

// SetFeatured flips the featured flag and its expiry. The featuring start is
// only ever written, never cleared.
func (r *listingRepository) SetFeatured(id uint, featured bool, featuredAt, expiresAt *time.Time) error {
	updates := map[string]interface{}{
		"featured":         featured,
		"featured_expires": expiresAt,
	}
	if featuredAt != nil {
		updates["featured_at"] = featuredAt
	}
	return r.updateListing(id, updates)
}

func (r *listingRepository) updateListing(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Listing{}).Where("id = ?", id).Updates(updates).Error
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
