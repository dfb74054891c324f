package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing status values. Status changes are owned by the lifecycle engine;
// nothing else writes the status column.
const (
	ListingStatusDraft     = "DRAFT"
	ListingStatusPublished = "PUBLISHED"
	ListingStatusExpired   = "EXPIRED"
	ListingStatusArchived  = "ARCHIVED"
)

// Reasons a listing was taken out of public visibility without touching status.
const (
	DeactivatedReasonPlanDowngrade = "plan_downgrade"
	DeactivatedReasonManual        = "manual"
	DeactivatedReasonTimeExpired   = "time_expired"
)

type Listing struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	UUID        string `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	UserID      uint   `gorm:"index" json:"user_id"`
	User        User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Title       string `gorm:"type:varchar(255)" json:"title" validate:"required,min=3,max=255"`
	Description string `gorm:"type:text" json:"description"`
	City        string `gorm:"type:varchar(150)" json:"city"`
	PostalCode  string `gorm:"type:varchar(20)" json:"postal_code"`
	Price       int64  `gorm:"type:bigint" json:"price"` // monthly rent or sale price in cents
	Status      string `gorm:"type:varchar(20);default:'DRAFT';index" json:"status"`
	// IsActive is the public visibility flag. It is flipped independently of
	// Status when plan limits are enforced: a PUBLISHED listing can be hidden
	// and later restored without re-running publish preconditions.
	IsActive          bool       `gorm:"column:is_active;default:false;index" json:"is_active"`
	Featured bool `gorm:"column:featured;default:false" json:"featured"`
	// FeaturedAt records when the most recent featuring started. It survives
	// unfeaturing, so the monthly quota cannot be released early.
	FeaturedAt        *time.Time `gorm:"column:featured_at;type:datetime;default:null" json:"featured_at"`
	FeaturedExpires   *time.Time `gorm:"column:featured_expires;type:datetime;default:null" json:"featured_expires"`
	PublishedAt       *time.Time `gorm:"type:datetime;default:null" json:"published_at"`
	ExpiresAt         *time.Time `gorm:"type:datetime;default:null;index" json:"expires_at"`
	DeactivatedReason string     `gorm:"column:deactivated_reason;type:varchar(50);default:null" json:"deactivated_reason"`
	DeactivatedAt     *time.Time `gorm:"column:deactivated_at;type:datetime;default:null" json:"deactivated_at"`
	// counters, batched in from Redis by metrics/counter
	ViewCount    int64 `gorm:"default:0" json:"view_count"`
	ContactCount int64 `gorm:"default:0" json:"contact_count"`
	// relations
	Images    []ListingImage    `gorm:"foreignKey:ListingID" json:"images,omitempty"`
	Favorites []ListingFavorite `gorm:"foreignKey:ListingID" json:"favorites,omitempty"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt    `gorm:"index" json:"-"`
}

// BeforeCreate generates the UUID if the caller did not set one.
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == "" {
		l.UUID = uuid.New().String()
	}
	return nil
}

// IsPublished reports whether the listing reached the published state,
// regardless of the visibility flag.
func (l *Listing) IsPublished() bool {
	return l.Status == ListingStatusPublished
}

// FindListingByUUID findet ein Inserat anhand seiner UUID
func FindListingByUUID(db *gorm.DB, uuid string) (*Listing, error) {
	var listing Listing
	result := db.Where("uuid = ?", uuid).First(&listing)
	return &listing, result.Error
}
