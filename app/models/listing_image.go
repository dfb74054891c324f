package models

import (
	"time"

	"gorm.io/gorm"
)

// ListingImage is one uploaded photo of a listing. The binary itself lives in
// object storage under StorageKey; we only track the reference here.
type ListingImage struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ListingID  uint           `gorm:"index;not null" json:"listing_id"`
	StorageKey string         `gorm:"type:varchar(255)" json:"storage_key"`
	URL        string         `gorm:"type:varchar(255)" json:"url"`
	SortOrder  int            `gorm:"default:0" json:"sort_order"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// CountListingImages returns the number of stored image references for a listing.
func CountListingImages(db *gorm.DB, listingID uint) (int64, error) {
	var count int64
	err := db.Model(&ListingImage{}).Where("listing_id = ?", listingID).Count(&count).Error
	return count, err
}
