package models

import (
	"time"

	"gorm.io/gorm"
)

// ListingFavorite marks a listing a user wants to follow. Favoriters get a
// notification intent when the listing is published.
type ListingFavorite struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index:idx_fav_user_listing,unique" json:"user_id"`
	ListingID uint           `gorm:"index:idx_fav_user_listing,unique" json:"listing_id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// FindFavoriteUserIDs returns the ids of all users who favorited a listing.
func FindFavoriteUserIDs(db *gorm.DB, listingID uint) ([]uint, error) {
	var userIDs []uint
	err := db.Model(&ListingFavorite{}).Where("listing_id = ?", listingID).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}
